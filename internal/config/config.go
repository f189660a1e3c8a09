package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL     string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RunInterval     time.Duration

	// Pipeline tuning.
	Lookback         time.Duration
	QARateThreshold  float64 // depth units per minute
	RollingWindow    time.Duration
	BaselineLowerPct float64
	BaselineUpperPct float64
	StaleCutoff      time.Duration

	// Mailchimp alert delivery. Alerts are enabled when an API key is set,
	// overridable via ALERTS_ENABLED.
	MailchimpKey        string
	MailchimpServer     string
	MailchimpListID     string
	MailchimpInterestID string
	MailchimpTimeout    time.Duration
	AlertsEnabled       bool

	// Optional Kafka publishing of alert events.
	KafkaBrokers    []string
	KafkaAlertTopic string
	KafkaEnabled    bool
}

// Load reads configuration from the environment (and a .env file when
// present), applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := durationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	runInterval, err := durationEnv("RUN_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, err
	}
	lookback, err := durationEnv("LOOKBACK", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	rollingWindow, err := durationEnv("ROLLING_WINDOW", 48*time.Hour)
	if err != nil {
		return nil, err
	}
	staleCutoff, err := durationEnv("STALE_CUTOFF", 40*time.Minute)
	if err != nil {
		return nil, err
	}
	mailchimpTimeout, err := durationEnv("MAILCHIMP_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	qaRate, err := floatEnv("QA_RATE_THRESHOLD", 0.1)
	if err != nil {
		return nil, err
	}
	lowerPct, err := floatEnv("BASELINE_LOWER_PCT", 0.01)
	if err != nil {
		return nil, err
	}
	upperPct, err := floatEnv("BASELINE_UPPER_PCT", 0.75)
	if err != nil {
		return nil, err
	}

	mailchimpKey := os.Getenv("MAILCHIMP_KEY")
	alertsEnabled := mailchimpKey != ""
	if v := os.Getenv("ALERTS_ENABLED"); v != "" {
		alertsEnabled = v == "true"
	}

	kafkaEnabled := false
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RunInterval:     runInterval,

		Lookback:         lookback,
		QARateThreshold:  qaRate,
		RollingWindow:    rollingWindow,
		BaselineLowerPct: lowerPct,
		BaselineUpperPct: upperPct,
		StaleCutoff:      staleCutoff,

		MailchimpKey:        mailchimpKey,
		MailchimpServer:     envOrDefault("MAILCHIMP_SERVER", "us20"),
		MailchimpListID:     os.Getenv("MAILCHIMP_LIST_ID"),
		MailchimpInterestID: os.Getenv("MAILCHIMP_INTEREST_ID"),
		MailchimpTimeout:    mailchimpTimeout,
		AlertsEnabled:       alertsEnabled,

		KafkaBrokers:    splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAlertTopic: envOrDefault("KAFKA_ALERT_TOPIC", "flood-alerts"),
		KafkaEnabled:    kafkaEnabled,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.Lookback <= 0 {
		return nil, errors.New("LOOKBACK must be positive")
	}
	if cfg.RollingWindow <= 0 {
		return nil, errors.New("ROLLING_WINDOW must be positive")
	}
	if cfg.QARateThreshold <= 0 {
		return nil, errors.New("QA_RATE_THRESHOLD must be positive")
	}
	if cfg.BaselineLowerPct < 0 || cfg.BaselineUpperPct > 1 || cfg.BaselineLowerPct >= cfg.BaselineUpperPct {
		return nil, errors.New("baseline percentile bounds must satisfy 0 <= lower < upper <= 1")
	}
	if cfg.AlertsEnabled && (cfg.MailchimpKey == "" || cfg.MailchimpListID == "" || cfg.MailchimpInterestID == "") {
		return nil, errors.New("alerts enabled but MAILCHIMP_KEY, MAILCHIMP_LIST_ID or MAILCHIMP_INTEREST_ID is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
