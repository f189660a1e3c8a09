package domain

import "time"

// Correct combines a matched reading with its smoothed baseline depth into
// drift-corrected water levels:
//
//	sensor_water_level     = sensor_elevation + water_depth
//	road_water_level       = sensor_water_level - road_elevation
//	*_adj                  = level - smoothed baseline depth
//
// The reading must carry elevation data; unmatched readings are routed away
// before this point.
func Correct(m MatchedReading, baselineDepth float64) CorrectedReading {
	c := CorrectedReading{MatchedReading: m, SmoothedMinWaterDepth: baselineDepth}
	c.SensorWaterLevel = m.Elevation.SensorElevation + m.WaterDepth
	c.RoadWaterLevel = c.SensorWaterLevel - m.Elevation.RoadElevation
	c.SensorWaterLevelAdj = c.SensorWaterLevel - baselineDepth
	c.RoadWaterLevelAdj = c.RoadWaterLevel - baselineDepth
	return c
}

type correctedKey struct {
	place    string
	sensorID string
	unixNano int64
}

// ClipWindow restricts corrected rows to [start, end] and drops duplicate
// (place, sensor, time) keys. Rows outside the window exist only as lookback
// context for the rolling-window computation.
func ClipWindow(rows []CorrectedReading, start, end time.Time) []CorrectedReading {
	seen := make(map[correctedKey]struct{}, len(rows))
	out := make([]CorrectedReading, 0, len(rows))
	for _, r := range rows {
		if r.Time.Before(start) || r.Time.After(end) {
			continue
		}
		key := correctedKey{place: r.Place, sensorID: r.SensorID, unixNano: r.Time.UnixNano()}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
