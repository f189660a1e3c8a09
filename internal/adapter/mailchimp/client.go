package mailchimp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shorelinesci/flood-drift-etl/internal/config"
	"github.com/shorelinesci/flood-drift-etl/internal/domain"
)

// Client delivers flood alerts through the Mailchimp Marketing API. Each
// alert creates a plaintext campaign targeted at the subscribers who opted
// into the place's interest group and sends it immediately.
type Client struct {
	apiKey             string
	listID             string
	interestCategoryID string
	httpClient         *http.Client
	baseURL            string
	logger             *slog.Logger
}

// NewClient creates a Mailchimp client from config.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		apiKey:             cfg.MailchimpKey,
		listID:             cfg.MailchimpListID,
		interestCategoryID: cfg.MailchimpInterestID,
		httpClient: &http.Client{
			Timeout: cfg.MailchimpTimeout,
		},
		baseURL: fmt.Sprintf("https://%s.api.mailchimp.com/3.0", cfg.MailchimpServer),
		logger:  logger,
	}
}

// Notify composes and sends the flood-alert campaign for a place. Returns a
// wrapped domain.ErrNotRegistered when the place has no interest group on
// the list; any other error is retryable transport or API failure.
func (c *Client) Notify(ctx context.Context, place string) error {
	formatted := strings.ReplaceAll(place, "North Carolina", "NC")

	interestID, err := c.lookupInterest(ctx, formatted)
	if err != nil {
		return fmt.Errorf("look up interest group: %w", err)
	}
	if interestID == "" {
		return fmt.Errorf("%s: %w", formatted, domain.ErrNotRegistered)
	}

	campaignID, err := c.createCampaign(ctx, formatted, interestID)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	if err := c.setContent(ctx, campaignID, formatted); err != nil {
		return fmt.Errorf("set campaign content: %w", err)
	}
	if err := c.send(ctx, campaignID); err != nil {
		return fmt.Errorf("send campaign: %w", err)
	}

	c.logger.Info("alert campaign sent", "place", formatted, "campaign_id", campaignID)
	return nil
}

type interest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type interestList struct {
	Interests []interest `json:"interests"`
}

// lookupInterest resolves a place name to its interest-group ID, or "" when
// the place is not an option on the list.
func (c *Client) lookupInterest(ctx context.Context, place string) (string, error) {
	u := fmt.Sprintf("%s/lists/%s/interest-categories/%s/interests",
		c.baseURL, c.listID, c.interestCategoryID)

	var list interestList
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &list); err != nil {
		return "", err
	}
	for _, i := range list.Interests {
		if i.Name == place {
			return i.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCampaign(ctx context.Context, place, interestID string) (string, error) {
	now := domain.Now()
	body := map[string]any{
		"type": "plaintext",
		"recipients": map[string]any{
			"list_id": c.listID,
			"segment_opts": map[string]any{
				"match": "all",
				"conditions": []map[string]any{{
					"condition_type": "Interests",
					"field":          "interests-" + c.interestCategoryID,
					"op":             "interestcontains",
					"value":          []string{interestID},
				}},
			},
		},
		"tracking": map[string]any{"opens": false, "text_clicks": false},
		"settings": map[string]any{
			"subject_line": "Flood Alert",
			"preview_text": "Flood alert for " + place,
			"title":        fmt.Sprintf("%s Flood Alert - %s", place, now.Format("01/02/2006")),
			"from_name":    "Flood Monitoring",
			"auto_footer":  false,
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	u := c.baseURL + "/campaigns"
	if err := c.doJSON(ctx, http.MethodPost, u, body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("campaign created without id")
	}
	return created.ID, nil
}

func (c *Client) setContent(ctx context.Context, campaignID, place string) error {
	text := fmt.Sprintf(
		"Flood Alert for %s\n--------------------------------\n\n"+
			"Water estimated on or near the roadway at %s.\n\n"+
			"This alert is informed by preliminary data and is for informational purposes only.",
		place, domain.Now().Format("15:04 MST on 01/02/2006"))

	u := fmt.Sprintf("%s/campaigns/%s/content", c.baseURL, campaignID)
	return c.doJSON(ctx, http.MethodPut, u, map[string]any{"plain_text": text}, nil)
}

func (c *Client) send(ctx context.Context, campaignID string) error {
	u := fmt.Sprintf("%s/campaigns/%s/actions/send", c.baseURL, campaignID)
	return c.doJSON(ctx, http.MethodPost, u, nil, nil)
}

// doJSON performs one authenticated API call, encoding body and decoding the
// response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth("anystring", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mailchimp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mailchimp API error: status %d: %s", resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
