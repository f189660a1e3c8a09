package domain

import (
	"math"
	"sort"
)

// FlagRates annotates readings with a quality flag. Readings are grouped by
// sensor and sorted by time; a reading is flagged when the absolute rate of
// change from the previous reading of the same sensor exceeds
// maxRatePerMinute (depth units per minute). The first reading of each
// sensor has no predecessor and is never flagged.
//
// Output is ordered by sensor, then time ascending.
func FlagRates(readings []Reading, maxRatePerMinute float64) []FlaggedReading {
	bySensor := make(map[string][]Reading)
	for _, r := range readings {
		bySensor[r.SensorID] = append(bySensor[r.SensorID], r)
	}

	sensors := make([]string, 0, len(bySensor))
	for id := range bySensor {
		sensors = append(sensors, id)
	}
	sort.Strings(sensors)

	out := make([]FlaggedReading, 0, len(readings))
	for _, id := range sensors {
		group := bySensor[id]
		sort.Slice(group, func(i, j int) bool { return group[i].Time.Before(group[j].Time) })

		for i, r := range group {
			f := FlaggedReading{Reading: r}
			if i > 0 {
				prev := group[i-1]
				minutes := r.Time.Sub(prev.Time).Minutes()
				rate := (r.WaterDepth - prev.WaterDepth) / minutes
				f.QAFlag = math.Abs(rate) > maxRatePerMinute
			}
			out = append(out, f)
		}
	}
	return out
}

// DropFlagged filters out quality-flagged readings.
func DropFlagged(readings []FlaggedReading) []FlaggedReading {
	out := make([]FlaggedReading, 0, len(readings))
	for _, r := range readings {
		if !r.QAFlag {
			out = append(out, r)
		}
	}
	return out
}
