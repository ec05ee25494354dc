package cot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func legacyColumns() []string {
	return []string{
		"Market and Exchange Names",
		"As of Date in Form YYYY-MM-DD",
		"Noncommercial Positions-Long (All)",
		"Noncommercial Positions-Short (All)",
	}
}

func testPipeline() *Pipeline {
	return NewPipeline(NewFetcher(zap.NewNop()), Config{
		Instruments: []Instrument{
			{ID: "GOLD", Keywords: []string{"GOLD"}},
			{ID: "EURO", Keywords: []string{"EURO FX"}},
		},
	}, zap.NewNop())
}

func TestAssembleMergesHistoryAndLatest(t *testing.T) {
	now := time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC)
	history := FetchResult{
		Source: SourceAnnualHistory,
		Year:   2025,
		Table: &RawTable{
			Columns: legacyColumns(),
			Rows: [][]string{
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-11-18", "40000", "31000"},
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-11-25", "44000", "32000"},
				{"EURO FX - CHICAGO MERCANTILE EXCHANGE", "2025-11-25", "90000", "110000"},
			},
		},
	}
	latest := FetchResult{
		Source: SourceLatestWeek,
		Table: &RawTable{
			Rows: [][]string{
				// Same week as history's last row but fresher, plus a new week.
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-11-25", "45000", "32000"},
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-12-02", "47000", "30000"},
				{"EURO FX - CHICAGO MERCANTILE EXCHANGE", "2025-12-02", "95000", "105000"},
			},
		},
	}

	res := testPipeline().RunFromResults(now, history, latest)

	if res.ReportYear != 2025 {
		t.Errorf("expected report year 2025, got %d", res.ReportYear)
	}
	if res.HistoryErr != "" || res.LatestErr != "" {
		t.Errorf("unexpected errors: %q %q", res.HistoryErr, res.LatestErr)
	}
	if len(res.Instruments) != 2 {
		t.Fatalf("expected 2 instruments, got %d", len(res.Instruments))
	}

	gold := res.Instruments[0]
	if gold.InstrumentID != "GOLD" {
		t.Fatalf("expected GOLD first, got %s", gold.InstrumentID)
	}
	if len(gold.History) != 3 {
		t.Fatalf("expected 3 deduplicated observations, got %d", len(gold.History))
	}
	// The latest-week value wins on the duplicated 2025-11-25 week.
	if gold.History[1].NetPosition != 13000 {
		t.Errorf("expected latest-week value 13000 on duplicate date, got %d", gold.History[1].NetPosition)
	}
	if gold.NetPosition != 17000 || gold.ReportDate != "2025-12-02" {
		t.Errorf("unexpected head record: %d @ %s", gold.NetPosition, gold.ReportDate)
	}
	if gold.Staleness != StalenessFresh || gold.DaysSinceLastReport != 6 {
		t.Errorf("expected FRESH at 6 days, got %s at %d", gold.Staleness, gold.DaysSinceLastReport)
	}

	euro := res.Instruments[1]
	if euro.NetPosition != -10000 {
		t.Errorf("expected euro net -10000, got %d", euro.NetPosition)
	}
}

func TestAssembleDegradesToHistoryOnly(t *testing.T) {
	now := time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC)
	history := FetchResult{
		Source: SourceAnnualHistory,
		Year:   2025,
		Table: &RawTable{
			Columns: legacyColumns(),
			Rows: [][]string{
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-10-28", "40000", "31000"},
			},
		},
	}
	latest := FetchResult{
		Source: SourceLatestWeek,
		Err:    &SourceError{Source: SourceLatestWeek, Err: context.DeadlineExceeded},
	}

	res := testPipeline().RunFromResults(now, history, latest)

	if res.LatestErr == "" {
		t.Error("latest failure must stay inspectable")
	}
	gold := res.Instruments[0]
	if gold.Staleness != StalenessLagging || gold.DaysSinceLastReport != 41 {
		t.Errorf("expected LAGGING at 41 days, got %s at %d", gold.Staleness, gold.DaysSinceLastReport)
	}
	if gold.NetPosition != 9000 {
		t.Errorf("history-only data must still be served, got %d", gold.NetPosition)
	}
}

func TestAssembleSchemaUnresolved(t *testing.T) {
	now := time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC)
	history := FetchResult{
		Source: SourceAnnualHistory,
		Year:   2025,
		Table: &RawTable{
			Columns: []string{"Totally", "Unrelated", "Header"},
			Rows:    [][]string{{"a", "b", "c"}},
		},
	}

	res := testPipeline().RunFromResults(now, history, FetchResult{
		Source: SourceLatestWeek,
		Table:  &RawTable{Rows: [][]string{{"a", "b", "c"}}},
	})

	if res.HistoryErr == "" {
		t.Error("schema failure must be surfaced")
	}
	if res.LatestErr == "" {
		t.Error("headerless snapshot is unusable without a resolved schema")
	}
	for _, inst := range res.Instruments {
		if inst.Staleness != StalenessUnavailable {
			t.Errorf("%s: expected UNAVAILABLE, got %s", inst.InstrumentID, inst.Staleness)
		}
		if inst.NetPosition != 0 || len(inst.History) != 0 {
			t.Errorf("%s: no values may be fabricated", inst.InstrumentID)
		}
	}
}

func TestAssembleLatestWidthMismatch(t *testing.T) {
	now := time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC)
	history := FetchResult{
		Source: SourceAnnualHistory,
		Year:   2025,
		Table: &RawTable{
			Columns: legacyColumns(),
			Rows: [][]string{
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-12-02", "45000", "32000"},
			},
		},
	}
	latest := FetchResult{
		Source: SourceLatestWeek,
		Table: &RawTable{
			Rows: [][]string{{"GOLD - COMMODITY EXCHANGE INC.", "2025-12-02", "45000"}},
		},
	}

	res := testPipeline().RunFromResults(now, history, latest)

	if res.LatestErr == "" {
		t.Error("positional misalignment must reject the snapshot")
	}
	// History still serves.
	if res.Instruments[0].NetPosition != 13000 {
		t.Errorf("history must survive a rejected snapshot, got %d", res.Instruments[0].NetPosition)
	}
}

func TestRunReusesCachedTables(t *testing.T) {
	body := legacyHeader + "\n" +
		`"GOLD - COMMODITY EXCHANGE INC.","2025-12-02",45000,32000` + "\n"
	var annualHits, latestHits int

	annualSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		annualHits++
		w.Write(zipWith(t, "annual.txt", body))
	}))
	defer annualSrv.Close()
	latestSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		latestHits++
		w.Write([]byte(`"GOLD - COMMODITY EXCHANGE INC.","2025-12-02",45000,32000` + "\n"))
	}))
	defer latestSrv.Close()

	p := NewPipeline(NewFetcher(zap.NewNop()), Config{
		Instruments: []Instrument{{ID: "GOLD", Keywords: []string{"GOLD"}}},
		CacheTTL:    time.Minute,
	}, zap.NewNop())
	p.SetClock(func() time.Time { return time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC) })
	p.annuals = func(time.Time, ReportType) []Candidate {
		return []Candidate{{URL: annualSrv.URL, Year: 2025, Kind: SourceAnnualHistory, Member: "annual.txt"}}
	}
	p.latest = func(ReportType) Candidate {
		return Candidate{URL: latestSrv.URL, Kind: SourceLatestWeek}
	}

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if annualHits != 1 || latestHits != 1 {
		t.Errorf("server hits = %d annual, %d latest; want 1 each", annualHits, latestHits)
	}
	if first.Instruments[0].NetPosition != second.Instruments[0].NetPosition {
		t.Errorf("cached run diverged: %d vs %d",
			first.Instruments[0].NetPosition, second.Instruments[0].NetPosition)
	}
	if second.Instruments[0].NetPosition != 13000 {
		t.Errorf("net = %d, want 13000", second.Instruments[0].NetPosition)
	}
}

func TestRunDoesNotCacheFailedRounds(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := NewPipeline(NewFetcher(zap.NewNop()), Config{
		Instruments: []Instrument{{ID: "GOLD", Keywords: []string{"GOLD"}}},
		CacheTTL:    time.Minute,
	}, zap.NewNop())
	p.annuals = func(time.Time, ReportType) []Candidate {
		return []Candidate{{URL: srv.URL, Year: 2025, Kind: SourceAnnualHistory, Member: "annual.txt"}}
	}
	p.latest = func(ReportType) Candidate {
		return Candidate{URL: srv.URL, Kind: SourceLatestWeek}
	}

	for i := 0; i < 2; i++ {
		res, err := p.Run(context.Background())
		if err != nil {
			t.Fatalf("run #%d: %v", i, err)
		}
		if res.HistoryErr == "" {
			t.Fatalf("run #%d: fetch failure must be surfaced", i)
		}
	}
	// The second run must go back to the network rather than serve the
	// first round's failure from cache. The breaker may swallow one of
	// its two attempts, but at least one more request always lands.
	if hits < 3 {
		t.Errorf("server hits = %d, want at least 3 (no caching of failures)", hits)
	}
}

func TestAssemblePerInstrumentIsolation(t *testing.T) {
	now := time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC)
	history := FetchResult{
		Source: SourceAnnualHistory,
		Year:   2025,
		Table: &RawTable{
			Columns: legacyColumns(),
			Rows: [][]string{
				{"GOLD - COMMODITY EXCHANGE INC.", "2025-12-02", "45000", "32000"},
			},
		},
	}

	res := testPipeline().RunFromResults(now, history, FetchResult{
		Source: SourceLatestWeek,
		Err:    &SourceError{Source: SourceLatestWeek, Err: context.DeadlineExceeded},
	})

	gold := res.Instruments[0]
	euro := res.Instruments[1]
	if gold.Staleness != StalenessFresh {
		t.Errorf("gold should be FRESH, got %s", gold.Staleness)
	}
	// Euro has zero matching rows: UNAVAILABLE for it alone, gold unaffected.
	if euro.Staleness != StalenessUnavailable {
		t.Errorf("euro should be UNAVAILABLE, got %s", euro.Staleness)
	}
}
