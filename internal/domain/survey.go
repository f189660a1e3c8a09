package domain

import (
	"errors"
	"sort"
)

// ErrNoSurveys indicates a sensor has no survey records at all. Its readings
// cannot be calibrated and the sensor is excluded from the run.
var ErrNoSurveys = errors.New("no survey data for sensor")

// MatchResult partitions one sensor's readings into those assigned a survey
// interval and the side channel of readings that predate every survey.
type MatchResult struct {
	Matched   []MatchedReading
	Unmatched []FlaggedReading
}

// MatchToSurveys assigns each reading to the survey interval containing its
// timestamp. Surveys partition the timeline into half-open intervals
// [surveyed_at[k], surveyed_at[k+1]), with the newest survey governing
// everything from its date onward. Readings earlier than the first survey
// are routed to the unmatched side channel; matched readings carry the
// survey's epoch and elevation fields.
func MatchToSurveys(readings []FlaggedReading, surveys []SurveyRecord) (MatchResult, error) {
	if len(surveys) == 0 {
		return MatchResult{}, ErrNoSurveys
	}

	sorted := make([]SurveyRecord, len(surveys))
	copy(sorted, surveys)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SurveyedAt.Before(sorted[j].SurveyedAt) })

	var res MatchResult
	for _, r := range readings {
		// Greatest surveyed_at <= reading time.
		idx := sort.Search(len(sorted), func(i int) bool { return sorted[i].SurveyedAt.After(r.Time) }) - 1
		if idx < 0 {
			res.Unmatched = append(res.Unmatched, r)
			continue
		}

		s := sorted[idx]
		epoch := s.SurveyedAt
		res.Matched = append(res.Matched, MatchedReading{
			FlaggedReading: r,
			SurveyEpoch:    &epoch,
			Elevation: &Elevation{
				SensorElevation: s.SensorElevation,
				RoadElevation:   s.RoadElevation,
			},
		})
	}
	return res, nil
}
