// Package cot implements the CFTC Commitments-of-Traders acquisition and
// normalization pipeline: source location, download, schema resolution
// across report vintages, per-instrument net positioning, merge/dedup of
// the annual history bundle with the latest-week snapshot, and staleness
// classification.
package cot

import (
	"fmt"
	"strings"
	"time"
)

// ReportType selects which CFTC report family the pipeline reads.
type ReportType string

const (
	// ReportLegacy is the Legacy Futures-Only report. Speculative
	// positioning is the Non-Commercial category.
	ReportLegacy ReportType = "legacy"

	// ReportDisaggregated is the Disaggregated Futures-Only report.
	// Speculative positioning is the Managed Money category.
	ReportDisaggregated ReportType = "disaggregated"
)

// SourceKind identifies which of the two upstream files a table came from.
type SourceKind string

const (
	// SourceAnnualHistory is the yearly compressed bundle with one row per
	// (instrument, report date) for the year to date.
	SourceAnnualHistory SourceKind = "ANNUAL_HISTORY"

	// SourceLatestWeek is the small headerless snapshot holding only the
	// most recent report week.
	SourceLatestWeek SourceKind = "LATEST_WEEK"
)

// RawTable is an untyped tabular dataset as delivered by the source.
// Columns is empty for the headerless latest-week file; its rows are
// aligned positionally to the history file's resolved ColumnMap.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// ColumnMap maps the four logical fields onto concrete column indices of
// a specific RawTable. A ColumnMap is only ever fully populated; partial
// resolution is rejected by the schema resolver.
type ColumnMap struct {
	Name  int
	Date  int
	Long  int
	Short int

	// Width is the column count of the table the map was resolved
	// against. Headerless snapshot tables must match it exactly.
	Width int
}

// MaxIndex returns the highest column index the map references.
func (m ColumnMap) MaxIndex() int {
	max := m.Name
	for _, i := range []int{m.Date, m.Long, m.Short} {
		if i > max {
			max = i
		}
	}
	return max
}

// Instrument is one tracked futures contract.
type Instrument struct {
	// ID is the canonical identifier exposed downstream, e.g. "GOLD".
	ID string

	// Keywords match the contract's market name with OR semantics: a row
	// belongs to this instrument if its upper-cased name contains at
	// least one keyword.
	Keywords []string
}

// Matches reports whether the given market name belongs to this instrument.
func (in Instrument) Matches(marketName string) bool {
	upper := strings.ToUpper(marketName)
	for _, kw := range in.Keywords {
		if strings.Contains(upper, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}

// PositionRecord is one instrument at one report date.
type PositionRecord struct {
	InstrumentID string    `json:"instrument_id"`
	ReportDate   time.Time `json:"report_date"`
	NetPosition  int64     `json:"net_position"` // long − short, rounded
}

// PositionSeries is an ordered-by-date sequence of PositionRecord for a
// single instrument. After merge/dedup, report dates are strictly
// increasing and unique.
type PositionSeries []PositionRecord

// Last returns the most recent record, or false for an empty series.
func (s PositionSeries) Last() (PositionRecord, bool) {
	if len(s) == 0 {
		return PositionRecord{}, false
	}
	return s[len(s)-1], true
}

// FetchResult is the tagged outcome of one fetch attempt: either a raw
// table with its source identity, or a failure with its reason.
type FetchResult struct {
	Source SourceKind
	Year   int // report year used; zero for LATEST_WEEK
	Table  *RawTable
	Err    error
}

// OK reports whether the fetch yielded a usable table.
func (r FetchResult) OK() bool { return r.Err == nil && r.Table != nil }

// --- Error taxonomy ---

// SourceError reports a failed candidate fetch: timeout, non-2xx status,
// or a malformed archive. Recovered by trying the next candidate or by
// proceeding with whichever source succeeded.
type SourceError struct {
	Source SourceKind
	Year   int
	URL    string
	Err    error
}

func (e *SourceError) Error() string {
	if e.Year > 0 {
		return fmt.Sprintf("cot source %s year %d unavailable: %v", e.Source, e.Year, e.Err)
	}
	return fmt.Sprintf("cot source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// SchemaError reports that one or more logical columns could not be
// located by keyword matching. Never retried: renaming is a vendor-side
// change a retry cannot fix.
type SchemaError struct {
	Missing []string
	Columns []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("cot schema unresolved: missing %v in columns %v", e.Missing, e.Columns)
}
