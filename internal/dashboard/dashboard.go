// Package dashboard assembles the four panels (prices, COT positioning,
// macro indicators, news) into one snapshot. Panels fail independently:
// a dead source empties its panel and sets its error string, it never
// takes the rest of the dashboard down.
package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"macrodesk/internal/cot"
	"macrodesk/internal/macro"
	"macrodesk/internal/news"
	"macrodesk/internal/prices"
	"macrodesk/internal/store"
)

// Snapshot is one fully assembled dashboard state.
type Snapshot struct {
	Prices      []prices.Quote    `json:"prices,omitempty"`
	PricesErr   string            `json:"prices_error,omitempty"`
	COT         *cot.Result       `json:"cot,omitempty"`
	COTErr      string            `json:"cot_error,omitempty"`
	Macro       []macro.Indicator `json:"macro,omitempty"`
	MacroErr    string            `json:"macro_error,omitempty"`
	News        []news.Headline   `json:"news,omitempty"`
	NewsErr     string            `json:"news_error,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// PriceSource, MacroSource and NewsSource let tests substitute the
// panel clients.
type PriceSource interface {
	Snapshot(ctx context.Context) ([]prices.Quote, error)
}

type MacroSource interface {
	Snapshot(ctx context.Context) ([]macro.Indicator, error)
}

type NewsSource interface {
	Latest(ctx context.Context, limit int) ([]news.Headline, error)
}

// COTSource runs the positioning pipeline.
type COTSource interface {
	Run(ctx context.Context) (*cot.Result, error)
}

// Assembler fans out to all panel sources concurrently.
type Assembler struct {
	prices        PriceSource
	cot           COTSource
	macro         MacroSource
	news          NewsSource
	store         store.Store
	newsLimit     int
	thresholdDays int
	log           *zap.Logger
	now           func() time.Time
}

func NewAssembler(p PriceSource, c COTSource, m MacroSource, n NewsSource, s store.Store, newsLimit, thresholdDays int, log *zap.Logger) *Assembler {
	if s == nil {
		s = &store.NopStore{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if newsLimit <= 0 {
		newsLimit = 6
	}
	if thresholdDays <= 0 {
		thresholdDays = cot.DefaultStalenessThresholdDays
	}
	return &Assembler{
		prices:        p,
		cot:           c,
		macro:         m,
		news:          n,
		store:         s,
		newsLimit:     newsLimit,
		thresholdDays: thresholdDays,
		log:           log,
		now:           time.Now,
	}
}

// SetClock overrides the assembler's clock. Useful in tests.
func (a *Assembler) SetClock(now func() time.Time) { a.now = now }

// Assemble builds a snapshot. It returns an error only when the context
// is cancelled; source failures are recorded per panel instead.
func (a *Assembler) Assemble(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: a.now()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		quotes, err := a.prices.Snapshot(gctx)
		if err != nil {
			a.log.Warn("prices panel failed", zap.Error(err))
			snap.PricesErr = err.Error()
			return nil
		}
		snap.Prices = quotes
		return nil
	})

	g.Go(func() error {
		res, err := a.cot.Run(gctx)
		if err != nil {
			a.log.Warn("cot panel failed", zap.Error(err))
			snap.COTErr = err.Error()
			return nil
		}
		a.reconcileStore(gctx, res)
		snap.COT = res
		return nil
	})

	g.Go(func() error {
		indicators, err := a.macro.Snapshot(gctx)
		if err != nil {
			a.log.Warn("macro panel failed", zap.Error(err))
			snap.MacroErr = err.Error()
			return nil
		}
		snap.Macro = indicators
		return nil
	})

	g.Go(func() error {
		headlines, err := a.news.Latest(gctx, a.newsLimit)
		if err != nil {
			a.log.Warn("news panel failed", zap.Error(err))
			snap.NewsErr = err.Error()
			return nil
		}
		snap.News = headlines
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return snap, nil
}

// reconcileStore persists freshly fetched series and backfills
// instruments the pipeline could not produce from the last stored data.
// Stored observations carry their original report dates, so staleness is
// recomputed rather than reset.
func (a *Assembler) reconcileStore(ctx context.Context, res *cot.Result) {
	now := a.now()
	for i := range res.Instruments {
		pos := &res.Instruments[i]

		if len(pos.History) > 0 {
			if err := a.store.UpsertPositions(ctx, recordsFromPoints(pos.InstrumentID, pos.History)); err != nil {
				a.log.Warn("cot store upsert failed",
					zap.String("instrument", pos.InstrumentID), zap.Error(err))
			}
			continue
		}

		series, err := a.store.LoadSeries(ctx, pos.InstrumentID, 0)
		if err != nil {
			a.log.Warn("cot store load failed",
				zap.String("instrument", pos.InstrumentID), zap.Error(err))
			continue
		}
		if len(series) == 0 {
			continue
		}

		staleness, days := cot.Classify(series, now, a.thresholdDays)
		pos.Staleness = staleness
		pos.DaysSinceLastReport = days
		if last, ok := series.Last(); ok {
			pos.NetPosition = last.NetPosition
			pos.ReportDate = last.ReportDate.Format("2006-01-02")
		}
		pos.History = pointsFromRecords(series)
		a.log.Info("cot instrument served from store",
			zap.String("instrument", pos.InstrumentID),
			zap.String("staleness", string(staleness)))
	}
}

func recordsFromPoints(instrumentID string, points []cot.PositionPoint) []cot.PositionRecord {
	records := make([]cot.PositionRecord, 0, len(points))
	for _, pt := range points {
		date, err := time.Parse("2006-01-02", pt.Date)
		if err != nil {
			continue
		}
		records = append(records, cot.PositionRecord{
			InstrumentID: instrumentID,
			ReportDate:   date,
			NetPosition:  pt.NetPosition,
		})
	}
	return records
}

func pointsFromRecords(series cot.PositionSeries) []cot.PositionPoint {
	points := make([]cot.PositionPoint, 0, len(series))
	for _, rec := range series {
		points = append(points, cot.PositionPoint{
			Date:        rec.ReportDate.Format("2006-01-02"),
			NetPosition: rec.NetPosition,
		})
	}
	return points
}
