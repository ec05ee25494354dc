package cot

import "time"

// Staleness classifies how current a position series is.
type Staleness string

const (
	// StalenessFresh: the latest report is within the expected cadence.
	StalenessFresh Staleness = "FRESH"

	// StalenessLagging: data exists but the latest report is older than
	// the threshold. A signal for the consumer, never an error.
	StalenessLagging Staleness = "LAGGING"

	// StalenessUnavailable: no data at all. Kept distinct from LAGGING so
	// consumers can tell "nothing" from "old".
	StalenessUnavailable Staleness = "UNAVAILABLE"
)

// DefaultStalenessThresholdDays is the weekly CFTC cadence plus a few
// days of publication lag.
const DefaultStalenessThresholdDays = 14

// Classify compares the last report date against now. It returns the
// classification and the whole days elapsed since the last report
// (zero for an empty series).
func Classify(series PositionSeries, now time.Time, thresholdDays int) (Staleness, int) {
	last, ok := series.Last()
	if !ok {
		return StalenessUnavailable, 0
	}

	days := int(now.Sub(last.ReportDate).Hours() / 24)
	if days < 0 {
		days = 0
	}
	if days < thresholdDays {
		return StalenessFresh, days
	}
	return StalenessLagging, days
}
