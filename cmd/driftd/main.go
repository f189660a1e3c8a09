package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/shorelinesci/flood-drift-etl/internal/adapter/http"
	kafkaadapter "github.com/shorelinesci/flood-drift-etl/internal/adapter/kafka"
	"github.com/shorelinesci/flood-drift-etl/internal/adapter/mailchimp"
	"github.com/shorelinesci/flood-drift-etl/internal/adapter/postgres"
	"github.com/shorelinesci/flood-drift-etl/internal/config"
	"github.com/shorelinesci/flood-drift-etl/internal/domain"
	"github.com/shorelinesci/flood-drift-etl/internal/observability"
	"github.com/shorelinesci/flood-drift-etl/internal/pipeline"
)

func main() {
	once := flag.Bool("once", false, "run a single batch and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Alert delivery is feature-flagged via MAILCHIMP_KEY / ALERTS_ENABLED.
	var notifier pipeline.Notifier
	if cfg.AlertsEnabled {
		notifier = mailchimp.NewClient(cfg, logger)
		logger.Info("mailchimp alerting enabled", "server", cfg.MailchimpServer, "list_id", cfg.MailchimpListID)
	} else {
		notifier = pipeline.NoopNotifier{}
		logger.Info("mailchimp alerting disabled; flood episodes stay unalerted")
	}

	var publisher pipeline.AlertPublisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka alert publishing enabled", "topic", cfg.KafkaAlertTopic)
	}

	p := pipeline.New(store, notifier, publisher, logger, metrics, pipeline.Config{
		Lookback:        cfg.Lookback,
		QARateThreshold: cfg.QARateThreshold,
		Baseline: domain.BaselineConfig{
			Window:   cfg.RollingWindow,
			LowerPct: cfg.BaselineLowerPct,
			UpperPct: cfg.BaselineUpperPct,
		},
		Flood: domain.FloodConfig{StaleCutoff: cfg.StaleCutoff},
	})

	if *once {
		if err := p.RunOnce(ctx); err != nil {
			logger.Error("batch run failed", "error", err)
			os.Exit(1)
		}
		closeWriter(writer, logger)
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go runLoop(ctx, p, cfg.RunInterval, logger)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeWriter(writer, logger)

	logger.Info("shutdown complete")
}

// runLoop runs one batch immediately, then on every interval tick until the
// context is cancelled.
func runLoop(ctx context.Context, p *pipeline.Pipeline, interval time.Duration, logger *slog.Logger) {
	if err := p.RunOnce(ctx); err != nil {
		logger.Error("batch run failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				logger.Error("batch run failed", "error", err)
			}
		}
	}
}

func closeWriter(w *kafkaadapter.Writer, logger *slog.Logger) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
