package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shorelinesci/flood-drift-etl/internal/domain"
	"github.com/shorelinesci/flood-drift-etl/internal/observability"
)

// AlertStateMachine turns per-sensor flood reports into at-most-one
// notification per flooding episode per place. The only cross-run memory is
// the persisted flood status: the latest rows per place decide whether an
// episode has already been alerted, and one new row per (place, sensor) is
// appended every run.
type AlertStateMachine struct {
	store     Store
	notifier  Notifier
	publisher AlertPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewAlertStateMachine wires the state machine. publisher may be nil.
func NewAlertStateMachine(store Store, notifier Notifier, publisher AlertPublisher, logger *slog.Logger, metrics *observability.Metrics) *AlertStateMachine {
	return &AlertStateMachine{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

// placeState summarises the persisted rows for one place.
type placeState struct {
	anySent   bool
	anyUnsent bool
}

// Process evaluates every place seen this run and appends the resulting
// status rows. Per-place failures are isolated.
func (a *AlertStateMachine) Process(ctx context.Context, reports []domain.SensorFloodReport) {
	if len(reports) == 0 {
		return
	}

	prev, err := a.store.LatestFloodStatus(ctx)
	stateUnknown := err != nil
	if stateUnknown {
		// Without prior state a send could duplicate an alert; defer
		// notification to a later run and persist the candidates unalerted.
		a.logger.Warn("flood status fetch failed; deferring alert decisions", "error", err)
		prev = nil
	}

	states := make(map[string]placeState)
	for _, s := range prev {
		st := states[s.Place]
		if s.AlertSent {
			st.anySent = true
		} else {
			st.anyUnsent = true
		}
		states[s.Place] = st
	}

	byPlace := make(map[string][]domain.SensorFloodReport)
	var places []string
	for _, r := range reports {
		place := r.Status.Place
		if _, seen := byPlace[place]; !seen {
			places = append(places, place)
		}
		byPlace[place] = append(byPlace[place], r)
	}

	var toPersist []domain.FloodStatus
	for _, place := range places {
		toPersist = append(toPersist, a.decide(ctx, place, byPlace[place], states[place], stateUnknown)...)
	}

	if len(toPersist) == 0 {
		return
	}
	if err := a.store.AppendFloodStatus(ctx, toPersist); err != nil {
		a.logger.Warn("flood status write failed", "error", err, "rows", len(toPersist))
		return
	}
	a.metrics.FloodStatusesPersisted.Add(float64(len(toPersist)))
}

// decide applies the per-place transition and returns the rows to persist.
func (a *AlertStateMachine) decide(ctx context.Context, place string, reports []domain.SensorFloodReport, prev placeState, stateUnknown bool) []domain.FloodStatus {
	statuses := make([]domain.FloodStatus, len(reports))
	var flooding []string
	for i, r := range reports {
		statuses[i] = r.Status
		if r.Status.IsFlooding {
			flooding = append(flooding, r.Status.SensorID)
		}
	}

	if len(flooding) == 0 {
		a.logger.Info("no flooding detected", "place", place)
		return statuses
	}

	if stateUnknown {
		return statuses
	}

	if prev.anySent {
		if prev.anyUnsent {
			a.logger.Error("conflicting persisted alert state; suppressing duplicate alert", "place", place)
		} else {
			a.logger.Info("flooding continues, alert previously sent", "place", place)
		}
		markSent(statuses)
		return statuses
	}

	switch err := a.notifier.Notify(ctx, place); {
	case err == nil:
		a.logger.Info("flood alert sent", "place", place, "sensors", flooding)
		a.metrics.AlertsSent.Inc()
		markSent(statuses)
		a.publish(ctx, place, flooding)
	case errors.Is(err, domain.ErrNotRegistered):
		// Handled, not retryable: persist as sent so the episode does not
		// retry against a place with no recipients.
		a.logger.Warn("place not registered for alerts", "place", place)
		a.metrics.AlertSkips.Inc()
		markSent(statuses)
	default:
		// Retryable: leave alert_sent false so the next run tries again.
		a.logger.Error("alert delivery failed; will retry next run", "place", place, "error", err)
		a.metrics.AlertFailures.Inc()
	}
	return statuses
}

func (a *AlertStateMachine) publish(ctx context.Context, place string, sensors []string) {
	if a.publisher == nil {
		return
	}
	event := domain.AlertEvent{Place: place, DetectedAt: domain.Now(), Sensors: sensors}
	if err := a.publisher.Publish(ctx, event); err != nil {
		a.logger.Warn("alert event publish failed", "place", place, "error", err)
	}
}

func markSent(statuses []domain.FloodStatus) {
	for i := range statuses {
		statuses[i].AlertSent = true
	}
}
