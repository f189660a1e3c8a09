package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corrected(place, sensor string, ts time.Time, roadAdj, threshold float64) CorrectedReading {
	return CorrectedReading{
		MatchedReading: MatchedReading{FlaggedReading: FlaggedReading{Reading: Reading{
			Place:          place,
			SensorID:       sensor,
			Time:           ts,
			AlertThreshold: threshold,
		}}},
		RoadWaterLevelAdj: roadAdj,
	}
}

func freezeAt(t *testing.T, now time.Time) {
	t.Helper()
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })
}

func TestDetectFlooding_StaleAboveThreshold(t *testing.T) {
	now := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	freezeAt(t, now)

	cfg := FloodConfig{StaleCutoff: 40 * time.Minute}
	rows := []CorrectedReading{
		corrected("P", "s1", now.Add(-time.Hour), 0.5, 0.2), // stale and above
	}

	reports := DetectFlooding(rows, cfg)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Stale)
	assert.True(t, reports[0].AboveThreshold)
	assert.True(t, reports[0].Status.IsFlooding)
	assert.False(t, reports[0].Status.AlertSent)
	assert.True(t, reports[0].Status.EvaluatedAt.Equal(now))
	assert.True(t, reports[0].Status.LatestMeasurement.Equal(now.Add(-time.Hour)))
}

func TestDetectFlooding_FreshAboveThresholdNotFlagged(t *testing.T) {
	now := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	freezeAt(t, now)

	cfg := FloodConfig{StaleCutoff: 40 * time.Minute}
	rows := []CorrectedReading{
		corrected("P", "s1", now.Add(-5*time.Minute), 0.5, 0.2),
	}

	reports := DetectFlooding(rows, cfg)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Stale)
	assert.True(t, reports[0].AboveThreshold)
	assert.False(t, reports[0].Status.IsFlooding, "staleness is part of the flood condition")
}

func TestDetectFlooding_StaleBelowThreshold(t *testing.T) {
	now := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	freezeAt(t, now)

	cfg := FloodConfig{StaleCutoff: 40 * time.Minute}
	rows := []CorrectedReading{
		corrected("P", "s1", now.Add(-2*time.Hour), 0.1, 0.2),
	}

	reports := DetectFlooding(rows, cfg)
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Status.IsFlooding)
}

func TestDetectFlooding_UsesLatestReadingPerSensor(t *testing.T) {
	now := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	freezeAt(t, now)

	cfg := FloodConfig{StaleCutoff: 40 * time.Minute}
	rows := []CorrectedReading{
		corrected("P", "s1", now.Add(-4*time.Hour), 0.9, 0.2), // older, above
		corrected("P", "s1", now.Add(-3*time.Hour), 0.9, 0.2),
		corrected("P", "s1", now.Add(-90*time.Minute), 0.9, 0.2),
		corrected("P", "s1", now.Add(-50*time.Minute), 0.05, 0.2), // latest, below
	}

	reports := DetectFlooding(rows, cfg)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].Status.LatestMeasurement.Equal(now.Add(-50*time.Minute)))
	assert.False(t, reports[0].Status.IsFlooding)
	assert.Equal(t, 40*time.Minute, reports[0].MinSampleInterval,
		"smallest gap across the last three readings")
}

func TestDetectFlooding_OneReportPerSensor(t *testing.T) {
	now := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	freezeAt(t, now)

	cfg := FloodConfig{StaleCutoff: 40 * time.Minute}
	rows := []CorrectedReading{
		corrected("P", "s2", now.Add(-time.Hour), 0.5, 0.2),
		corrected("P", "s1", now.Add(-time.Hour), 0.0, 0.2),
		corrected("Q", "s3", now.Add(-10*time.Minute), 0.5, 0.2),
	}

	reports := DetectFlooding(rows, cfg)
	require.Len(t, reports, 3)
	assert.Equal(t, "s1", reports[0].Status.SensorID)
	assert.False(t, reports[0].Status.IsFlooding)
	assert.Equal(t, "s2", reports[1].Status.SensorID)
	assert.True(t, reports[1].Status.IsFlooding)
	assert.Equal(t, "s3", reports[2].Status.SensorID)
	assert.False(t, reports[2].Status.IsFlooding, "fresh reading")
}
