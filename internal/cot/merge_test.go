package cot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(t *testing.T, date string, net int64) PositionRecord {
	t.Helper()
	return PositionRecord{InstrumentID: "GOLD", ReportDate: mustDate(t, date), NetPosition: net}
}

func TestMergeDedupUniqueness(t *testing.T) {
	history := PositionSeries{
		rec(t, "2025-11-11", 100),
		rec(t, "2025-11-18", 200),
	}
	latest := PositionSeries{
		rec(t, "2025-11-18", 250), // same week, fresher value
		rec(t, "2025-11-25", 300),
	}

	merged := MergeDedup(history, latest, 0)
	require.Len(t, merged, 3)

	seen := map[time.Time]bool{}
	for _, r := range merged {
		assert.False(t, seen[r.ReportDate], "duplicate report date %s", r.ReportDate)
		seen[r.ReportDate] = true
	}

	// The latest-week value wins on the conflicting date.
	assert.Equal(t, int64(250), merged[1].NetPosition)
}

func TestMergeDedupStrictlyIncreasing(t *testing.T) {
	history := PositionSeries{
		rec(t, "2025-11-25", 3),
		rec(t, "2025-11-11", 1),
		rec(t, "2025-11-18", 2),
	}
	merged := MergeDedup(history, nil, 0)
	require.Len(t, merged, 3)
	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].ReportDate.Before(merged[i].ReportDate),
			"report dates must be strictly increasing")
	}
}

func TestMergeDedupEmptyLatest(t *testing.T) {
	history := PositionSeries{
		rec(t, "2025-11-11", 100),
		rec(t, "2025-11-11", 100), // stale duplicate inside history itself
		rec(t, "2025-11-18", 200),
	}
	merged := MergeDedup(history, nil, 0)
	require.Len(t, merged, 2)
	assert.Equal(t, int64(100), merged[0].NetPosition)
	assert.Equal(t, int64(200), merged[1].NetPosition)
}

func TestMergeDedupIdempotent(t *testing.T) {
	history := PositionSeries{
		rec(t, "2025-11-11", 100),
		rec(t, "2025-11-18", 200),
		rec(t, "2025-11-25", 300),
	}
	once := MergeDedup(history, nil, 0)
	twice := MergeDedup(once, nil, 0)
	assert.Equal(t, once, twice)
}

func TestMergeDedupWindow(t *testing.T) {
	var history PositionSeries
	start := mustDate(t, "2024-01-02")
	for i := 0; i < 10; i++ {
		history = append(history, PositionRecord{
			InstrumentID: "GOLD",
			ReportDate:   start.AddDate(0, 0, 7*i),
			NetPosition:  int64(i),
		})
	}

	merged := MergeDedup(history, nil, 4)
	require.Len(t, merged, 4)
	// Most recent observations retained, oldest dropped.
	assert.Equal(t, int64(6), merged[0].NetPosition)
	assert.Equal(t, int64(9), merged[3].NetPosition)
}

func TestClassifySpecDates(t *testing.T) {
	now := mustDate(t, "2025-12-08")

	lagging := PositionSeries{rec(t, "2025-10-28", 1)}
	st, days := Classify(lagging, now, DefaultStalenessThresholdDays)
	assert.Equal(t, StalenessLagging, st)
	assert.Equal(t, 41, days)

	fresh := PositionSeries{rec(t, "2025-12-02", 1)}
	st, days = Classify(fresh, now, DefaultStalenessThresholdDays)
	assert.Equal(t, StalenessFresh, st)
	assert.Equal(t, 6, days)
}

func TestClassifyUnavailable(t *testing.T) {
	st, days := Classify(nil, mustDate(t, "2025-12-08"), DefaultStalenessThresholdDays)
	assert.Equal(t, StalenessUnavailable, st)
	assert.Equal(t, 0, days)
}
