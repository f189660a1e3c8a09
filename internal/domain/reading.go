package domain

import "time"

// Reading is one raw water-depth measurement as ingested from a sensor.
// Immutable once stored; AlertThreshold is the per-sensor flood threshold
// carried on the measurement row.
type Reading struct {
	Place          string
	SensorID       string
	Time           time.Time
	Voltage        float64
	WaterDepth     float64
	Lat            float64
	Lng            float64
	AlertThreshold float64
}

// FlaggedReading is a Reading annotated by the quality filter. QAFlag marks
// an implausible rate of change versus the previous reading of the same
// sensor; flagged readings are excluded from baseline and drift work.
type FlaggedReading struct {
	Reading
	QAFlag bool
}

// SurveyRecord is one physical elevation survey for a sensor. Surveys reset
// the elevation calibration, so each one opens a new baseline segment.
type SurveyRecord struct {
	Place           string
	SensorID        string
	SurveyedAt      time.Time
	SensorElevation float64
	RoadElevation   float64
	Notes           string
}

// Elevation holds the calibration fields joined from a matched survey.
type Elevation struct {
	SensorElevation float64
	RoadElevation   float64
}

// MatchedReading is a flagged reading assigned to its governing survey.
// SurveyEpoch and Elevation are nil when the reading predates every survey
// for its sensor; such readings carry no calibration and must never reach
// the water-level arithmetic.
type MatchedReading struct {
	FlaggedReading
	SurveyEpoch *time.Time
	Elevation   *Elevation
}

// CorrectedReading is the terminal artifact written to the display store.
type CorrectedReading struct {
	MatchedReading
	SmoothedMinWaterDepth float64
	SensorWaterLevel      float64
	RoadWaterLevel        float64
	SensorWaterLevelAdj   float64
	RoadWaterLevelAdj     float64
}

// FloodStatus is the only state that survives across runs. One row is
// appended per (place, sensor) per run; the most recent row per key is the
// authoritative input to alert deduplication.
type FloodStatus struct {
	Place             string
	SensorID          string
	LatestMeasurement time.Time
	EvaluatedAt       time.Time
	IsFlooding        bool
	AlertSent         bool
}

// AlertEvent is the message published when a flood alert goes out.
type AlertEvent struct {
	Place      string    `json:"place"`
	DetectedAt time.Time `json:"detected_at"`
	Sensors    []string  `json:"sensors"`
}
