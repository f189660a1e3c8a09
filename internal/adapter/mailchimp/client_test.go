package mailchimp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shorelinesci/flood-drift-etl/internal/domain"
)

const (
	testKey    = "test-key"
	testListID = "list-1"
	testCatID  = "cat-1"
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:             testKey,
		listID:             testListID,
		interestCategoryID: testCatID,
		httpClient:         &http.Client{Timeout: 5 * time.Second},
		baseURL:            baseURL,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestNotify_Success(t *testing.T) {
	var campaignCreated, contentSet, sent bool

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "anystring", user)
		assert.Equal(t, testKey, pass)

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/lists/list-1/interest-categories/cat-1/interests":
			json.NewEncoder(w).Encode(interestList{Interests: []interest{
				{ID: "int-99", Name: "Beaufort, NC"},
			}})
		case r.Method == http.MethodPost && r.URL.Path == "/campaigns":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "plaintext", body["type"])
			campaignCreated = true
			json.NewEncoder(w).Encode(map[string]string{"id": "camp-1"})
		case r.Method == http.MethodPut && r.URL.Path == "/campaigns/camp-1/content":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body["plain_text"], "Flood Alert for Beaufort, NC")
			contentSet = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && r.URL.Path == "/campaigns/camp-1/actions/send":
			sent = true
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	// The place name is shortened before the interest lookup.
	err := c.Notify(context.Background(), "Beaufort, North Carolina")

	require.NoError(t, err)
	assert.True(t, campaignCreated)
	assert.True(t, contentSet)
	assert.True(t, sent)
}

func TestNotify_NotRegistered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(interestList{Interests: []interest{
			{ID: "int-1", Name: "Somewhere Else, NC"},
		}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Notify(context.Background(), "Beaufort, North Carolina")

	assert.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestNotify_APIErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"nope"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Notify(context.Background(), "Beaufort, North Carolina")

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotRegistered)
	assert.Contains(t, err.Error(), "status 500")
}

func TestNotify_SendFailureAfterCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/lists/list-1/interest-categories/cat-1/interests":
			json.NewEncoder(w).Encode(interestList{Interests: []interest{
				{ID: "int-99", Name: "Beaufort, NC"},
			}})
		case r.URL.Path == "/campaigns":
			json.NewEncoder(w).Encode(map[string]string{"id": "camp-1"})
		case r.URL.Path == "/campaigns/camp-1/content":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	err := c.Notify(context.Background(), "Beaufort, North Carolina")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "send campaign")
}
