package cot

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BuildSeries filters a raw table to one instrument and computes its net
// speculative positioning, ordered ascending by report date.
//
// Rows whose date does not parse are dropped individually rather than
// failing the table. A table with zero matching rows yields an empty
// series; that is a per-instrument outcome, not an error for the table.
func BuildSeries(table *RawTable, cm ColumnMap, inst Instrument) PositionSeries {
	if table == nil {
		return nil
	}

	var series PositionSeries
	for _, row := range table.Rows {
		if len(row) <= cm.MaxIndex() {
			continue
		}
		if !inst.Matches(row[cm.Name]) {
			continue
		}
		date, ok := parseReportDate(row[cm.Date])
		if !ok {
			continue
		}
		long, okL := parseNumber(row[cm.Long])
		short, okS := parseNumber(row[cm.Short])
		if !okL || !okS {
			continue
		}
		series = append(series, PositionRecord{
			InstrumentID: inst.ID,
			ReportDate:   date,
			NetPosition:  int64(math.Round(long - short)),
		})
	}

	sort.SliceStable(series, func(i, j int) bool {
		return series[i].ReportDate.Before(series[j].ReportDate)
	})
	return series
}

// MergeDedup concatenates the history series with the latest-week series
// and enforces the uniqueness invariant: ascending report dates with at
// most one record per date, the later-concatenated (latest-week) value
// winning on conflict. The result is truncated to the trailing window of
// most recent observations; window <= 0 keeps everything.
func MergeDedup(history, latest PositionSeries, window int) PositionSeries {
	byDate := make(map[time.Time]PositionRecord, len(history)+len(latest))
	for _, rec := range history {
		byDate[rec.ReportDate] = rec
	}
	for _, rec := range latest {
		byDate[rec.ReportDate] = rec
	}

	merged := make(PositionSeries, 0, len(byDate))
	for _, rec := range byDate {
		merged = append(merged, rec)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ReportDate.Before(merged[j].ReportDate)
	})

	if window > 0 && len(merged) > window {
		merged = merged[len(merged)-window:]
	}
	return merged
}

// reportDateLayouts are the date shapes seen across report vintages:
// ISO, US slash dates, and the bare YYMMDD column of the legacy files.
var reportDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"060102",
}

// parseReportDate parses a report as-of date in any known vintage format.
func parseReportDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range reportDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseNumber parses a position count, tolerating thousands separators,
// surrounding quotes, and the "." placeholder CFTC uses for no data.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "." {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
