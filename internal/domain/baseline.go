package domain

import (
	"math"
	"sort"
	"time"
)

// SmoothingStrategy identifies how a segment's baseline curve was produced.
type SmoothingStrategy string

const (
	// StrategyRollingMin copies the raw rolling minimum; used when no
	// changepoints survive the percentile filter.
	StrategyRollingMin SmoothingStrategy = "rolling_min"
	// StrategyStepFill forward/back-fills one or two changepoint values into
	// a piecewise-constant baseline.
	StrategyStepFill SmoothingStrategy = "step_fill"
	// StrategyLowess fits a locally weighted regression through three or
	// more changepoints and interpolates it onto every timestamp.
	StrategyLowess SmoothingStrategy = "lowess"
)

// BaselineConfig controls dry-baseline estimation.
type BaselineConfig struct {
	// Window is the trailing rolling-minimum window, time based.
	Window time.Duration
	// LowerPct and UpperPct bound the rolling-minimum percentile band a
	// changepoint must fall inside to survive. Deep troughs below the band
	// are likely real floods; values above it are elevated outliers.
	LowerPct float64
	UpperPct float64
}

// DefaultBaselineConfig mirrors the operational defaults: a two-day window
// and the [1st, 75th] percentile band.
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{Window: 48 * time.Hour, LowerPct: 0.01, UpperPct: 0.75}
}

// BaselinePoint is one sample of the smoothed baseline curve.
type BaselinePoint struct {
	Time  time.Time
	Depth float64
}

// BaselineSegment is the smoothed dry-depth curve for one (sensor, survey
// epoch) segment, defined at every input timestamp.
type BaselineSegment struct {
	SensorID    string
	SurveyEpoch time.Time
	Strategy    SmoothingStrategy
	Points      []BaselinePoint
}

// changepoint is a candidate anchor for baseline smoothing.
type changepoint struct {
	time  time.Time
	depth float64
}

// EstimateBaseline computes the smoothed dry-baseline curve for one segment.
// Readings must belong to a single (sensor, survey epoch) segment and be
// sorted by time ascending; Points[i] corresponds to readings[i].
//
// The smoothing strategy is a pure function of the surviving changepoint
// count: zero keeps the raw rolling minimum, one or two step-fill, three or
// more fit a LOWESS curve. Short or degenerate segments fall through to the
// simplest applicable strategy rather than failing.
func EstimateBaseline(sensorID string, epoch time.Time, readings []MatchedReading, cfg BaselineConfig) BaselineSegment {
	seg := BaselineSegment{SensorID: sensorID, SurveyEpoch: epoch}
	if len(readings) == 0 {
		return seg
	}

	mins := rollingMin(readings, cfg.Window)
	cands := candidateChangepoints(readings, mins)
	survivors := filterByPercentile(cands, mins, cfg.LowerPct, cfg.UpperPct)

	switch {
	case len(survivors) == 0:
		seg.Strategy = StrategyRollingMin
		seg.Points = make([]BaselinePoint, len(readings))
		for i, r := range readings {
			seg.Points[i] = BaselinePoint{Time: r.Time, Depth: mins[i]}
		}
	case len(survivors) < 3:
		seg.Strategy = StrategyStepFill
		seg.Points = stepFill(readings, survivors)
	default:
		seg.Strategy = StrategyLowess
		seg.Points = lowessFill(readings, survivors)
	}
	return seg
}

// rollingMin computes the trailing time-based rolling minimum of water depth
// over (t - window, t] at each reading. Monotonic-deque sweep, O(n).
func rollingMin(readings []MatchedReading, window time.Duration) []float64 {
	mins := make([]float64, len(readings))
	var deque []int // indices with increasing depth
	for i, r := range readings {
		cutoff := r.Time.Add(-window)
		for len(deque) > 0 && !readings[deque[0]].Time.After(cutoff) {
			deque = deque[1:]
		}
		for len(deque) > 0 && readings[deque[len(deque)-1]].WaterDepth >= r.WaterDepth {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		mins[i] = readings[deque[0]].WaterDepth
	}
	return mins
}

// candidateChangepoints selects points where the rolling minimum shifted
// from its predecessor. The first point has no predecessor and counts as a
// candidate; the last point of a segment always does.
func candidateChangepoints(readings []MatchedReading, mins []float64) []changepoint {
	var cands []changepoint
	for i := range readings {
		switch {
		case i == 0, i == len(readings)-1, mins[i] != mins[i-1]:
			cands = append(cands, changepoint{time: readings[i].Time, depth: mins[i]})
		}
	}
	return cands
}

// filterByPercentile keeps candidates whose depth lies within the
// [lower, upper] percentile band of the segment's rolling-minimum values.
func filterByPercentile(cands []changepoint, mins []float64, lower, upper float64) []changepoint {
	if len(cands) == 0 {
		return nil
	}
	sorted := make([]float64, len(mins))
	copy(sorted, mins)
	sort.Float64s(sorted)

	lo := quantile(sorted, lower)
	hi := quantile(sorted, upper)

	kept := cands[:0:0]
	for _, c := range cands {
		if c.depth >= lo && c.depth <= hi {
			kept = append(kept, c)
		}
	}
	return kept
}

// quantile returns the q-th quantile of sorted values, linearly interpolated
// between order statistics.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// stepFill builds a piecewise-constant baseline: every timestamp inherits
// the most recent changepoint value, and timestamps before the first
// changepoint back-fill from it.
func stepFill(readings []MatchedReading, cps []changepoint) []BaselinePoint {
	points := make([]BaselinePoint, len(readings))
	k := 0
	for i, r := range readings {
		for k+1 < len(cps) && !cps[k+1].time.After(r.Time) {
			k++
		}
		depth := cps[k].depth
		if cps[k].time.After(r.Time) {
			depth = cps[0].depth
		}
		points[i] = BaselinePoint{Time: r.Time, Depth: depth}
	}
	return points
}

// lowessFill fits a LOWESS curve through the changepoints (time as the
// numeric axis) and interpolates it onto every reading timestamp, extending
// flat beyond the first and last changepoint.
func lowessFill(readings []MatchedReading, cps []changepoint) []BaselinePoint {
	xs := make([]float64, len(cps))
	ys := make([]float64, len(cps))
	for i, c := range cps {
		xs[i] = float64(c.time.UnixNano()) / float64(time.Second)
		ys[i] = c.depth
	}
	fitted := Lowess(xs, ys, DefaultLowessFrac, DefaultLowessIters)

	points := make([]BaselinePoint, len(readings))
	for i, r := range readings {
		x := float64(r.Time.UnixNano()) / float64(time.Second)
		points[i] = BaselinePoint{Time: r.Time, Depth: interpolateAt(xs, fitted, x)}
	}
	return points
}

// interpolateAt linearly interpolates the curve (xs, ys) at x, clamping to
// the end values outside the fitted range. xs must be ascending.
func interpolateAt(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	i := sort.SearchFloat64s(xs, x)
	if xs[i] == x {
		return ys[i]
	}
	span := xs[i] - xs[i-1]
	if span == 0 {
		return ys[i]
	}
	frac := (x - xs[i-1]) / span
	return ys[i-1]*(1-frac) + ys[i]*frac
}
