// Package domain models roadway water-level sensor data and the math that
// turns raw depth readings into drift-corrected water levels.
//
// # Sensor Drift
//
// Ultrasonic water-depth sensors drift over their deployment: mounting
// hardware settles, brackets get re-tightened, sediment accumulates. The raw
// depth therefore wanders even when the water does not. The correction model
// estimates each sensor's "dry baseline" — the depth the sensor reports when
// no water is on the road — and subtracts it, so adjusted levels read near
// zero in dry conditions regardless of how far the sensor has wandered.
//
// # Processing Stages
//
// Each batch run applies, in order:
//
//	FlagRates         rate-of-change quality filter; readings whose depth
//	                  changes faster than a plausible physical rate versus
//	                  the previous reading of the same sensor are excluded.
//	MatchToSurveys    assigns each reading to the elevation survey governing
//	                  its timestamp. Surveys re-measure the sensor and road
//	                  elevation in the field; each one resets calibration and
//	                  opens a new baseline segment.
//	EstimateBaseline  per (sensor, survey epoch) segment: a trailing
//	                  time-based rolling minimum, candidate changepoints where
//	                  that minimum shifts, a percentile band filter to reject
//	                  flood troughs and outliers, then a smoothing strategy
//	                  chosen by surviving-changepoint count (copy the rolling
//	                  min, step-fill, or a robust LOWESS fit).
//	Correct           water-level arithmetic:
//
//	                    sensor_water_level = sensor_elevation + water_depth
//	                    road_water_level   = sensor_water_level - road_elevation
//	                    *_adj              = level - smoothed baseline depth
//
//	DetectFlooding    evaluates the latest corrected reading per sensor. The
//	                  persisted flag requires the feed to be stale AND the
//	                  adjusted road level at or above the sensor's threshold.
//
// # Time
//
// Evaluation time comes from the package clock (see [SetClock]) so tests can
// freeze it. All timestamps are stored and compared in UTC.
package domain
