// Package prices is a thin quote wrapper over Yahoo Finance's v7 quote
// API: ticker in, last price and percent change out. Free, no API key.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"macrodesk/internal/infra"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Quote is one instrument on the dashboard tape.
type Quote struct {
	Name      string  `json:"name"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
}

// Client fetches quotes for a fixed ticker roster.
type Client struct {
	baseURL string
	tickers map[string]string // display name → Yahoo symbol
	cache   *infra.Cache
	limiter *infra.RateLimiter
	log     *zap.Logger
}

// New creates a price client for the given display-name → symbol roster.
func New(tickers map[string]string, cacheTTL time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: defaultBaseURL,
		tickers: tickers,
		cache:   infra.NewCache(cacheTTL),
		limiter: infra.NewRateLimiter(5, time.Second),
		log:     log,
	}
}

// SetBaseURL overrides the API host. Useful in tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// Snapshot returns quotes for the whole roster in a single request.
// Symbols missing from the response are skipped; an empty roster or a
// failed request returns an error, never fabricated values.
func (c *Client) Snapshot(ctx context.Context) ([]Quote, error) {
	if len(c.tickers) == 0 {
		return nil, fmt.Errorf("prices: empty ticker roster")
	}

	const cacheKey = "prices:snapshot"
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]Quote), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(c.tickers))
	for _, sym := range c.tickers {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s",
		c.baseURL, url.QueryEscape(strings.Join(symbols, ",")))
	data, err := infra.DoGetBytes(ctx, u, map[string]string{"Accept": "application/json"}, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("prices fetch: %w", err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("prices parse: %w", err)
	}

	bySymbol := make(map[string]Quote, len(resp.QuoteResponse.Result))
	for _, r := range resp.QuoteResponse.Result {
		pct := r.RegularMarketChangePercent
		if pct == 0 && r.RegularMarketPreviousClose != 0 {
			pct = (r.RegularMarketPrice - r.RegularMarketPreviousClose) / r.RegularMarketPreviousClose * 100
		}
		bySymbol[r.Symbol] = Quote{
			Symbol:    r.Symbol,
			Price:     r.RegularMarketPrice,
			ChangePct: pct,
		}
	}

	var quotes []Quote
	for name, sym := range c.tickers {
		q, ok := bySymbol[sym]
		if !ok {
			c.log.Debug("price missing from response", zap.String("symbol", sym))
			continue
		}
		q.Name = name
		quotes = append(quotes, q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Name < quotes[j].Name })

	c.cache.Set(cacheKey, quotes)
	return quotes, nil
}
