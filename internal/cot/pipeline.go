package cot

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"macrodesk/internal/infra"
)

// Positioning is the per-instrument output surface exposed to the
// presentation layer.
type Positioning struct {
	InstrumentID        string          `json:"instrument_id"`
	NetPosition         int64           `json:"net_position"`
	ReportDate          string          `json:"report_date"` // ISO 8601; empty when unavailable
	Staleness           Staleness       `json:"staleness"`
	DaysSinceLastReport int             `json:"days_since_last_report"`
	History             []PositionPoint `json:"history"`
}

// PositionPoint is one charting observation.
type PositionPoint struct {
	Date        string `json:"date"`
	NetPosition int64  `json:"net_position"`
}

// Result is the outcome of one pipeline run. Source errors stay
// inspectable so operators can tell "we got data but couldn't understand
// it" from "we got nothing".
type Result struct {
	Instruments []Positioning `json:"instruments"`
	ReportYear  int           `json:"report_year,omitempty"`
	HistoryErr  string        `json:"history_error,omitempty"`
	LatestErr   string        `json:"latest_error,omitempty"`
	FetchedAt   time.Time     `json:"fetched_at"`
}

// Config holds the pipeline's tunables.
type Config struct {
	ReportType     ReportType
	Instruments    []Instrument
	Window         int             // trailing observations kept after merge
	ThresholdDays  int             // staleness threshold
	CacheTTL       time.Duration   // reuse window for fetched tables; 0 disables
	SchemaKeywords *SchemaKeywords // nil means defaults for ReportType
}

// DefaultWindow keeps roughly three years of weekly observations.
const DefaultWindow = 156

// Pipeline runs the full COT flow: locate, fetch both sources
// concurrently, resolve the schema once from the history header, build
// per-instrument series from both tables, merge, and classify.
type Pipeline struct {
	fetcher  *Fetcher
	cfg      Config
	keywords SchemaKeywords
	cache    *infra.Cache
	log      *zap.Logger
	now      func() time.Time

	// Candidate sources, overridable in tests.
	annuals func(time.Time, ReportType) []Candidate
	latest  func(ReportType) Candidate
}

// tablePair is the cache entry for one fetch round. The source publishes
// weekly, so reusing tables for hours changes nothing downstream;
// staleness is still recomputed against the clock on every run.
type tablePair struct {
	history FetchResult
	latest  FetchResult
}

// NewPipeline creates a pipeline. Zero-value config fields fall back to
// defaults (legacy report, default roster, 3-year window, 14-day
// threshold).
func NewPipeline(fetcher *Fetcher, cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if fetcher == nil {
		fetcher = NewFetcher(log)
	}
	if cfg.ReportType == "" {
		cfg.ReportType = ReportLegacy
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = DefaultInstruments
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ThresholdDays == 0 {
		cfg.ThresholdDays = DefaultStalenessThresholdDays
	}
	keywords := KeywordsFor(cfg.ReportType)
	if cfg.SchemaKeywords != nil {
		keywords = *cfg.SchemaKeywords
	}
	var cache *infra.Cache
	if cfg.CacheTTL > 0 {
		cache = infra.NewCache(cfg.CacheTTL)
	}
	return &Pipeline{
		fetcher:  fetcher,
		cfg:      cfg,
		keywords: keywords,
		cache:    cache,
		log:      log,
		now:      time.Now,
		annuals:  AnnualCandidates,
		latest:   LatestCandidate,
	}
}

// SetClock overrides the pipeline's clock. Useful in tests.
func (p *Pipeline) SetClock(now func() time.Time) { p.now = now }

// Run executes one pipeline pass. Each run recomputes from scratch; a
// failure of either source degrades to the other, and a failure of one
// instrument never aborts the rest.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	now := p.now()

	cacheKey := "cot:" + string(p.cfg.ReportType)
	if p.cache != nil {
		if cached, ok := p.cache.Get(cacheKey); ok {
			pair := cached.(tablePair)
			return p.assemble(now, pair.history, pair.latest), nil
		}
	}

	var history, latest FetchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		history = p.fetcher.FetchFirst(gctx, p.annuals(now, p.cfg.ReportType))
		return nil
	})
	g.Go(func() error {
		latest = p.fetcher.Fetch(gctx, p.latest(p.cfg.ReportType))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		// Cancelled mid-flight; never publish a partial table as complete.
		return nil, ctx.Err()
	}

	// Failed rounds are never cached; the next run retries the source.
	if p.cache != nil && history.OK() {
		p.cache.Set(cacheKey, tablePair{history: history, latest: latest})
	}

	return p.assemble(now, history, latest), nil
}

// RunFromResults assembles a result from already-fetched tables. Exposed
// so callers with an external FetchResult cache can skip the network.
func (p *Pipeline) RunFromResults(now time.Time, history, latest FetchResult) *Result {
	return p.assemble(now, history, latest)
}

func (p *Pipeline) assemble(now time.Time, history, latest FetchResult) *Result {
	res := &Result{FetchedAt: now}

	var (
		cm       ColumnMap
		resolved bool
	)
	if history.OK() {
		res.ReportYear = history.Year
		m, err := p.keywords.Resolve(history.Table.Columns)
		if err != nil {
			// Data arrived but we can't understand it; distinct from a
			// fetch failure and not worth retrying.
			p.log.Error("cot schema unresolved", zap.Error(err))
			res.HistoryErr = err.Error()
			history.Table = nil
		} else {
			cm = m
			resolved = true
		}
	} else if history.Err != nil {
		res.HistoryErr = history.Err.Error()
	}

	if latest.OK() {
		// The snapshot has no header; its columns align positionally to
		// the history map. Without a resolved map, or with a different
		// column count, the snapshot is unusable.
		switch {
		case !resolved:
			res.LatestErr = "latest-week snapshot unusable: no resolved history schema"
			latest.Table = nil
		case len(latest.Table.Rows[0]) != cm.Width:
			res.LatestErr = (&SchemaError{
				Missing: []string{"positional alignment"},
				Columns: latest.Table.Rows[0],
			}).Error()
			latest.Table = nil
		}
	} else if latest.Err != nil {
		res.LatestErr = latest.Err.Error()
	}

	for _, inst := range p.cfg.Instruments {
		var historySeries, latestSeries PositionSeries
		if resolved && history.Table != nil {
			historySeries = BuildSeries(history.Table, cm, inst)
		}
		if resolved && latest.Table != nil {
			latestSeries = BuildSeries(latest.Table, cm, inst)
		}

		merged := MergeDedup(historySeries, latestSeries, p.cfg.Window)
		staleness, days := Classify(merged, now, p.cfg.ThresholdDays)

		pos := Positioning{
			InstrumentID:        inst.ID,
			Staleness:           staleness,
			DaysSinceLastReport: days,
			History:             make([]PositionPoint, 0, len(merged)),
		}
		if last, ok := merged.Last(); ok {
			pos.NetPosition = last.NetPosition
			pos.ReportDate = last.ReportDate.Format("2006-01-02")
		}
		for _, rec := range merged {
			pos.History = append(pos.History, PositionPoint{
				Date:        rec.ReportDate.Format("2006-01-02"),
				NetPosition: rec.NetPosition,
			})
		}

		p.log.Info("cot instrument",
			zap.String("instrument", inst.ID),
			zap.String("staleness", string(staleness)),
			zap.Int("observations", len(merged)))
		res.Instruments = append(res.Instruments, pos)
	}

	return res
}
