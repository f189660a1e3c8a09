package domain

import (
	"sort"
	"time"
)

// FloodConfig controls flood evaluation.
type FloodConfig struct {
	// StaleCutoff is how old the latest measurement must be before the
	// staleness condition holds.
	StaleCutoff time.Duration
}

// SensorFloodReport is one sensor's flood evaluation plus diagnostics that
// are logged but not persisted.
type SensorFloodReport struct {
	Status         FloodStatus
	AboveThreshold bool
	Stale          bool
	// MinSampleInterval is the smallest spacing across the sensor's last
	// three readings; zero when fewer than two readings exist.
	MinSampleInterval time.Duration
}

// DetectFlooding evaluates the most recent corrected reading per sensor at
// the current clock time. A sensor is above-threshold when its adjusted road
// water level meets its alert threshold.
//
// The persisted flag couples staleness with the threshold: is_flooding is
// true only when the feed is stale AND the last value was above threshold.
// A fresh above-threshold reading is intentionally not flagged; pending
// product clarification this matches the deployed behaviour, and the
// fresh-above case is surfaced through AboveThreshold for logging.
func DetectFlooding(rows []CorrectedReading, cfg FloodConfig) []SensorFloodReport {
	now := clock.Now()

	bySensor := make(map[string][]CorrectedReading)
	for _, r := range rows {
		bySensor[r.SensorID] = append(bySensor[r.SensorID], r)
	}

	sensors := make([]string, 0, len(bySensor))
	for id := range bySensor {
		sensors = append(sensors, id)
	}
	sort.Strings(sensors)

	reports := make([]SensorFloodReport, 0, len(sensors))
	for _, id := range sensors {
		group := bySensor[id]
		sort.Slice(group, func(i, j int) bool { return group[i].Time.Before(group[j].Time) })
		if len(group) > 3 {
			group = group[len(group)-3:]
		}

		var minInterval time.Duration
		for i := 1; i < len(group); i++ {
			d := group[i].Time.Sub(group[i-1].Time)
			if minInterval == 0 || d < minInterval {
				minInterval = d
			}
		}

		last := group[len(group)-1]
		above := last.RoadWaterLevelAdj >= last.AlertThreshold
		stale := now.Sub(last.Time) > cfg.StaleCutoff

		reports = append(reports, SensorFloodReport{
			Status: FloodStatus{
				Place:             last.Place,
				SensorID:          id,
				LatestMeasurement: last.Time,
				EvaluatedAt:       now,
				IsFlooding:        stale && above,
				AlertSent:         false,
			},
			AboveThreshold:    above,
			Stale:             stale,
			MinSampleInterval: minInterval,
		})
	}
	return reports
}
