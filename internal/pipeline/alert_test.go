package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shorelinesci/flood-drift-etl/internal/domain"
	"github.com/shorelinesci/flood-drift-etl/internal/observability"
	"github.com/shorelinesci/flood-drift-etl/internal/pipeline"
)

func report(place, sensor string, flooding bool) domain.SensorFloodReport {
	return domain.SensorFloodReport{Status: domain.FloodStatus{
		Place:             place,
		SensorID:          sensor,
		LatestMeasurement: testNow.Add(-time.Hour),
		EvaluatedAt:       testNow,
		IsFlooding:        flooding,
	}}
}

func newAlerter(store *mockStore, notifier *mockNotifier, publisher *mockPublisher) *pipeline.AlertStateMachine {
	var pub pipeline.AlertPublisher
	if publisher != nil {
		pub = publisher
	}
	return pipeline.NewAlertStateMachine(store, notifier, pub, testLogger(), observability.NewMetricsForTesting())
}

func TestAlert_NoFloodingResetsState(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{
		report("P", "s1", false),
		report("P", "s2", false),
	})

	assert.Empty(t, notifier.places)
	require.Len(t, store.appended, 2)
	for _, s := range store.appended {
		assert.False(t, s.AlertSent)
	}
}

func TestAlert_FirstFloodNotifiesOnce(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	publisher := &mockPublisher{}
	a := newAlerter(store, notifier, publisher)

	a.Process(context.Background(), []domain.SensorFloodReport{
		report("P", "s1", true),
		report("P", "s2", false),
	})

	assert.Equal(t, []string{"P"}, notifier.places)
	require.Len(t, store.appended, 2)
	assert.True(t, store.appended[0].AlertSent)
	assert.True(t, store.appended[1].AlertSent)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, []string{"s1"}, publisher.events[0].Sensors)
}

func TestAlert_AtMostOnceAcrossConsecutiveRuns(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	a := newAlerter(store, notifier, nil)

	// Run 1: flooding starts, alert goes out.
	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})
	require.Len(t, notifier.places, 1)

	// Run 2: flooding persists; the persisted rows are now the prior state.
	store.statuses = store.appended
	store.appended = nil
	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	assert.Len(t, notifier.places, 1, "notify must be invoked exactly once across the two runs")
	require.Len(t, store.appended, 1)
	assert.True(t, store.appended[0].AlertSent, "state stays alerted while flooding persists")
}

func TestAlert_PriorAlertSuppressesNotify(t *testing.T) {
	store := &mockStore{statuses: []domain.FloodStatus{
		{Place: "P", SensorID: "s1", AlertSent: true},
	}}
	notifier := &mockNotifier{}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	assert.Empty(t, notifier.places)
	require.Len(t, store.appended, 1)
	assert.True(t, store.appended[0].AlertSent)
}

func TestAlert_NotRegisteredIsHandledNotRetried(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{err: domain.ErrNotRegistered}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	require.Len(t, store.appended, 1)
	assert.True(t, store.appended[0].AlertSent, "unregistered place is persisted as handled")
}

func TestAlert_TransportFailureRetriesNextRun(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{err: errors.New("smtp timeout")}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	require.Len(t, store.appended, 1)
	assert.False(t, store.appended[0].AlertSent, "failed delivery stays unalerted for retry")

	// Next run, delivery recovers: the alert goes out then.
	store.statuses = store.appended
	store.appended = nil
	notifier.err = nil
	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	assert.Equal(t, []string{"P", "P"}, notifier.places)
	require.Len(t, store.appended, 1)
	assert.True(t, store.appended[0].AlertSent)
}

func TestAlert_ConflictingPriorStateSuppressesDuplicate(t *testing.T) {
	store := &mockStore{statuses: []domain.FloodStatus{
		{Place: "P", SensorID: "s1", AlertSent: true},
		{Place: "P", SensorID: "s2", AlertSent: false},
	}}
	notifier := &mockNotifier{}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	assert.Empty(t, notifier.places, "ambiguous state must not duplicate an alert")
	require.Len(t, store.appended, 1)
	assert.True(t, store.appended[0].AlertSent)
}

func TestAlert_PriorStateUnavailableDefersNotify(t *testing.T) {
	store := &mockStore{statusErr: errors.New("query timeout")}
	notifier := &mockNotifier{}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", true)})

	assert.Empty(t, notifier.places)
	require.Len(t, store.appended, 1)
	assert.False(t, store.appended[0].AlertSent, "deferred episode retries next run")
}

func TestAlert_PlacesDecidedIndependently(t *testing.T) {
	store := &mockStore{statuses: []domain.FloodStatus{
		{Place: "P", SensorID: "s1", AlertSent: true},
	}}
	notifier := &mockNotifier{}
	a := newAlerter(store, notifier, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{
		report("P", "s1", true), // already alerted
		report("Q", "s9", true), // new episode
	})

	assert.Equal(t, []string{"Q"}, notifier.places)
	require.Len(t, store.appended, 2)
}

func TestAlert_AppendFailureDoesNotPanic(t *testing.T) {
	store := &mockStore{appendErr: errors.New("constraint violation")}
	a := newAlerter(store, &mockNotifier{}, nil)

	a.Process(context.Background(), []domain.SensorFloodReport{report("P", "s1", false)})
	assert.Empty(t, store.appended)
}
