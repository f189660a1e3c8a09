package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shorelinesci/flood-drift-etl/internal/domain"
	"github.com/shorelinesci/flood-drift-etl/internal/observability"
)

// Store is the persistence surface the pipeline depends on.
type Store interface {
	Readings(ctx context.Context, start, end time.Time) ([]domain.Reading, error)
	Surveys(ctx context.Context) ([]domain.SurveyRecord, error)
	LatestFloodStatus(ctx context.Context) ([]domain.FloodStatus, error)
	UpsertCorrected(ctx context.Context, rows []domain.CorrectedReading) error
	AppendFloodStatus(ctx context.Context, rows []domain.FloodStatus) error
}

// Notifier delivers a flood alert for a place. A wrapped
// domain.ErrNotRegistered marks the place as having no recipients.
type Notifier interface {
	Notify(ctx context.Context, place string) error
}

// AlertPublisher broadcasts a delivered alert to downstream consumers.
type AlertPublisher interface {
	Publish(ctx context.Context, event domain.AlertEvent) error
}

// NoopNotifier reports every alert as undeliverable, used when no mail
// provider is configured. Flood episodes stay unalerted so they are retried
// once delivery is enabled.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, string) error {
	return errors.New("alert delivery disabled")
}

// Config holds the pipeline tuning knobs.
type Config struct {
	Lookback        time.Duration
	QARateThreshold float64 // depth units per minute
	Baseline        domain.BaselineConfig
	Flood           domain.FloodConfig
}

// Pipeline runs one drift-correction batch: quality flagging, survey
// matching, baseline estimation, drift correction, flood detection, and
// alerting. Failures are isolated per sensor and per place.
type Pipeline struct {
	store   Store
	alerter *AlertStateMachine
	logger  *slog.Logger
	metrics *observability.Metrics
	cfg     Config
	ready   atomic.Bool
}

// New creates a Pipeline. publisher may be nil to disable event publishing.
func New(store Store, notifier Notifier, publisher AlertPublisher, logger *slog.Logger, metrics *observability.Metrics, cfg Config) *Pipeline {
	return &Pipeline{
		store:   store,
		alerter: NewAlertStateMachine(store, notifier, publisher, logger, metrics),
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
	}
}

// CheckReadiness returns nil once the pipeline has completed at least one run.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// RunOnce executes one batch over the configured lookback window ending now.
// Storage reads that fail or return nothing are logged and yield an empty
// stage; only nothing-to-do runs return early, never with an error.
func (p *Pipeline) RunOnce(ctx context.Context) error {
	runStart := time.Now()
	p.metrics.PipelineActive.Set(1)
	defer p.metrics.PipelineActive.Set(0)

	now := domain.Now()
	start := now.Add(-p.cfg.Lookback)
	// Readings before the window exist only as rolling-window context.
	buffered := start.Add(-p.cfg.Lookback)

	readings, err := p.store.Readings(ctx, buffered, now)
	if err != nil {
		p.logger.Warn("reading fetch failed", "error", err)
	}
	if len(readings) == 0 {
		p.logger.Warn("no readings in requested window", "start", buffered, "end", now)
		p.finishRun(runStart, "ok")
		return nil
	}
	p.metrics.ReadingsProcessed.Add(float64(len(readings)))

	surveys, err := p.store.Surveys(ctx)
	if err != nil {
		p.logger.Warn("survey fetch failed", "error", err)
	}
	if len(surveys) == 0 {
		p.logger.Warn("no survey data; skipping baseline work")
	}

	corrected := p.correctAll(readings, surveys, start, now)

	if len(corrected) > 0 {
		if err := p.store.UpsertCorrected(ctx, corrected); err != nil {
			p.logger.Warn("corrected data write failed", "error", err, "rows", len(corrected))
		} else {
			p.metrics.CorrectedRows.Add(float64(len(corrected)))
			p.logger.Info("drift-corrected data written", "rows", len(corrected))
		}
	}

	reports := domain.DetectFlooding(corrected, p.cfg.Flood)
	for _, r := range reports {
		if r.AboveThreshold && !r.Status.IsFlooding {
			p.logger.Info("sensor above threshold but feed is fresh; not flagged",
				"place", r.Status.Place, "sensor", r.Status.SensorID,
				"min_sample_interval", r.MinSampleInterval)
		}
	}
	p.alerter.Process(ctx, reports)

	p.finishRun(runStart, "ok")
	p.ready.Store(true)
	return nil
}

func (p *Pipeline) finishRun(runStart time.Time, outcome string) {
	p.metrics.RunDuration.Observe(time.Since(runStart).Seconds())
	p.metrics.RunsTotal.WithLabelValues(outcome).Inc()
}

// correctAll runs quality flagging through drift correction for every
// sensor, returning corrected rows clipped to [start, end].
func (p *Pipeline) correctAll(readings []domain.Reading, surveys []domain.SurveyRecord, start, end time.Time) []domain.CorrectedReading {
	flagged := domain.FlagRates(readings, p.cfg.QARateThreshold)
	clean := domain.DropFlagged(flagged)
	p.metrics.ReadingsFlagged.Add(float64(len(flagged) - len(clean)))

	surveysBySensor := make(map[string][]domain.SurveyRecord)
	for _, s := range surveys {
		surveysBySensor[s.SensorID] = append(surveysBySensor[s.SensorID], s)
	}
	cleanBySensor := make(map[string][]domain.FlaggedReading)
	for _, r := range clean {
		cleanBySensor[r.SensorID] = append(cleanBySensor[r.SensorID], r)
	}

	sensors := make([]string, 0, len(cleanBySensor))
	for id := range cleanBySensor {
		sensors = append(sensors, id)
	}
	sort.Strings(sensors)

	var corrected []domain.CorrectedReading
	for _, sensorID := range sensors {
		rows, err := p.correctSensor(sensorID, cleanBySensor[sensorID], surveysBySensor[sensorID])
		if err != nil {
			if errors.Is(err, domain.ErrNoSurveys) {
				p.logger.Warn("missing survey data; sensor will not be processed", "sensor", sensorID)
				p.metrics.SensorsSkipped.Inc()
			} else {
				p.logger.Error("sensor processing failed", "sensor", sensorID, "error", err)
			}
			continue
		}
		corrected = append(corrected, rows...)
	}

	return domain.ClipWindow(corrected, start, end)
}

// correctSensor estimates baselines per survey segment for one sensor and
// applies drift correction. FlagRates output keeps each sensor's readings
// time ascending, which segment grouping preserves.
func (p *Pipeline) correctSensor(sensorID string, readings []domain.FlaggedReading, surveys []domain.SurveyRecord) ([]domain.CorrectedReading, error) {
	res, err := domain.MatchToSurveys(readings, surveys)
	if err != nil {
		return nil, err
	}
	if n := len(res.Unmatched); n > 0 {
		p.logger.Warn("data precede the survey dates", "sensor", sensorID, "readings", n)
		p.metrics.UnmatchedReadings.Add(float64(n))
	}

	segments := make(map[time.Time][]domain.MatchedReading)
	var epochs []time.Time
	for _, m := range res.Matched {
		epoch := *m.SurveyEpoch
		if _, seen := segments[epoch]; !seen {
			epochs = append(epochs, epoch)
		}
		segments[epoch] = append(segments[epoch], m)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i].Before(epochs[j]) })

	var out []domain.CorrectedReading
	for _, epoch := range epochs {
		segReadings := segments[epoch]
		seg := domain.EstimateBaseline(sensorID, epoch, segReadings, p.cfg.Baseline)
		p.metrics.BaselineSegments.WithLabelValues(string(seg.Strategy)).Inc()
		for i, m := range segReadings {
			out = append(out, domain.Correct(m, seg.Points[i].Depth))
		}
	}
	return out, nil
}
