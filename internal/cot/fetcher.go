package cot

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"macrodesk/internal/infra"
)

const (
	// The annual ZIP runs to a few MB; cap reads well above that.
	maxArchiveBytes = 64 << 20

	defaultHistoryTimeout = 45 * time.Second
	defaultLatestTimeout  = 8 * time.Second
)

// Fetcher retrieves raw report tables from CFTC candidates. All failures
// come back inside the FetchResult; it never panics and never retries
// beyond the caller's year fallback.
type Fetcher struct {
	breaker        *gobreaker.CircuitBreaker
	log            *zap.Logger
	historyTimeout time.Duration
	latestTimeout  time.Duration
}

// NewFetcher creates a fetcher with a circuit breaker sized for a flaky
// upstream: the government server intermittently blocks or stalls, and
// hammering it while broken only prolongs the outage.
func NewFetcher(log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	f := &Fetcher{
		log:            log,
		historyTimeout: defaultHistoryTimeout,
		latestTimeout:  defaultLatestTimeout,
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cftc",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 3 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return f
}

// SetTimeouts overrides the per-kind fetch timeouts. Useful in tests.
func (f *Fetcher) SetTimeouts(history, latest time.Duration) {
	f.historyTimeout = history
	f.latestTimeout = latest
}

// Fetch retrieves one candidate and returns a tagged result. Annual
// history candidates are unzipped and parsed with a header row; the
// latest-week snapshot is parsed headerless.
func (f *Fetcher) Fetch(ctx context.Context, c Candidate) FetchResult {
	timeout := f.historyTimeout
	if c.Kind == SourceLatestWeek {
		timeout = f.latestTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := f.breaker.Execute(func() (any, error) {
		return infra.DoGetBytes(cctx, c.URL, map[string]string{
			"Accept": "text/csv, application/zip, */*",
		}, maxArchiveBytes)
	})
	if err != nil {
		f.log.Warn("cot fetch failed",
			zap.String("kind", string(c.Kind)),
			zap.Int("year", c.Year),
			zap.Error(err))
		return FetchResult{
			Source: c.Kind,
			Year:   c.Year,
			Err:    &SourceError{Source: c.Kind, Year: c.Year, URL: c.URL, Err: err},
		}
	}
	data := raw.([]byte)

	if c.Kind == SourceAnnualHistory {
		data, err = unzipMember(data, c.Member)
		if err != nil {
			return FetchResult{
				Source: c.Kind,
				Year:   c.Year,
				Err:    &SourceError{Source: c.Kind, Year: c.Year, URL: c.URL, Err: err},
			}
		}
	}

	table, err := parseTable(data, c.Kind == SourceAnnualHistory)
	if err != nil {
		return FetchResult{
			Source: c.Kind,
			Year:   c.Year,
			Err:    &SourceError{Source: c.Kind, Year: c.Year, URL: c.URL, Err: err},
		}
	}

	f.log.Info("cot fetch ok",
		zap.String("kind", string(c.Kind)),
		zap.Int("year", c.Year),
		zap.Int("rows", len(table.Rows)))
	return FetchResult{Source: c.Kind, Year: c.Year, Table: table}
}

// FetchFirst tries candidates in order and returns the first success.
// On total failure it returns the last failure result, so the reason
// stays inspectable.
func (f *Fetcher) FetchFirst(ctx context.Context, candidates []Candidate) FetchResult {
	var last FetchResult
	for _, c := range candidates {
		last = f.Fetch(ctx, c)
		if last.OK() {
			return last
		}
		if ctx.Err() != nil {
			break
		}
	}
	return last
}

// unzipMember extracts the named member from a ZIP archive. When the
// member is absent it falls back to the first .txt entry, then to the
// first entry of any name; CFTC has renamed members between vintages.
func unzipMember(data []byte, member string) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, fmt.Errorf("archive is empty")
	}

	pick := zr.File[0]
	for _, zf := range zr.File {
		base := path.Base(zf.Name)
		if strings.EqualFold(base, member) {
			pick = zf
			break
		}
		if strings.HasSuffix(strings.ToLower(base), ".txt") && pick == zr.File[0] {
			pick = zf
		}
	}

	rc, err := pick.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive member %s: %w", pick.Name, err)
	}
	defer rc.Close()

	out, err := io.ReadAll(io.LimitReader(rc, maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("read archive member %s: %w", pick.Name, err)
	}
	return out, nil
}

// parseTable parses comma-separated report content. CFTC quotes market
// names inconsistently and pads some rows, so the reader is lenient
// about quoting and per-row field counts.
func parseTable(data []byte, hasHeader bool) (*RawTable, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	rows := records[:0]
	for _, rec := range records {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		rows = append(rows, rec)
	}

	table := &RawTable{}
	if hasHeader {
		if len(rows) == 0 {
			return nil, fmt.Errorf("missing header row")
		}
		header := rows[0]
		table.Columns = make([]string, len(header))
		for i, col := range header {
			table.Columns[i] = strings.TrimSpace(col)
		}
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data rows")
	}
	table.Rows = rows
	return table, nil
}
