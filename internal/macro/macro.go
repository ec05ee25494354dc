// Package macro fetches headline US macro indicators from FRED
// (Federal Reserve Economic Data).
//
// Requires a free API key from https://fred.stlouisfed.org/docs/api/api_key.html
// Rate limit: 120 requests/minute.
// Docs: https://fred.stlouisfed.org/docs/api/fred/
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"macrodesk/internal/infra"
)

const defaultBaseURL = "https://api.stlouisfed.org/fred"

// FRED series IDs for the dashboard panel.
const (
	seriesUnemployment = "UNRATE"
	seriesPayrolls     = "PAYEMS"
	seriesCPI          = "CPIAUCSL"
)

// Indicator is one row of the macro panel.
type Indicator struct {
	Event string  `json:"event"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
	Date  string  `json:"date"`
}

// Client fetches macro indicators. A missing API key makes every call
// fail with ErrNoAPIKey rather than returning placeholder numbers.
type Client struct {
	baseURL string
	apiKey  string
	cache   *infra.Cache
	limiter *infra.RateLimiter
	log     *zap.Logger
}

// ErrNoAPIKey is returned when the FRED API key is not configured.
var ErrNoAPIKey = fmt.Errorf("macro: FRED API key not configured")

func New(apiKey string, cacheTTL time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		cache:   infra.NewCache(cacheTTL),
		limiter: infra.NewRateLimiter(2, time.Second),
		log:     log,
	}
}

// SetBaseURL overrides the API host. Useful in tests.
func (c *Client) SetBaseURL(u string) { c.baseURL = u }

type observationsResponse struct {
	Observations []observation `json:"observations"`
}

type observation struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

// fetchSeries returns the most recent limit observations of a series in
// ascending date order. FRED's "." placeholder observations are dropped.
func (c *Client) fetchSeries(ctx context.Context, seriesID string, limit int) ([]observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/series/observations?series_id=%s&sort_order=desc&limit=%d&api_key=%s&file_type=json",
		c.baseURL, seriesID, limit, c.apiKey)
	data, err := infra.DoGetBytes(ctx, u, map[string]string{"Accept": "application/json"}, 1<<20)
	if err != nil {
		return nil, fmt.Errorf("fred %s: %w", seriesID, err)
	}
	var resp observationsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse FRED JSON for %s: %w", seriesID, err)
	}

	obs := resp.Observations[:0]
	for _, o := range resp.Observations {
		if o.Value == "." {
			continue
		}
		obs = append(obs, o)
	}
	sort.Slice(obs, func(i, j int) bool { return obs[i].Date < obs[j].Date })
	return obs, nil
}

// Snapshot returns the unemployment rate, the latest non-farm payrolls
// change, and year-over-year CPI inflation. Indicators whose series
// cannot be fetched or computed are omitted; an error is returned only
// when every series fails.
func (c *Client) Snapshot(ctx context.Context) ([]Indicator, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	const cacheKey = "macro:snapshot"
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]Indicator), nil
	}

	var (
		out     []Indicator
		lastErr error
	)

	if obs, err := c.fetchSeries(ctx, seriesUnemployment, 1); err != nil {
		lastErr = err
	} else if len(obs) > 0 {
		last := obs[len(obs)-1]
		if v, ok := parseValue(last.Value); ok {
			out = append(out, Indicator{
				Event: "Unemployment Rate",
				Value: v,
				Unit:  "%",
				Date:  last.Date,
			})
		}
	}

	// PAYEMS is the total payroll level in thousands; NFP is the
	// month-over-month change converted to jobs.
	if obs, err := c.fetchSeries(ctx, seriesPayrolls, 2); err != nil {
		lastErr = err
	} else if len(obs) >= 2 {
		prev, ok1 := parseValue(obs[len(obs)-2].Value)
		last, ok2 := parseValue(obs[len(obs)-1].Value)
		if ok1 && ok2 {
			out = append(out, Indicator{
				Event: "Non-Farm Payrolls",
				Value: (last - prev) * 1000,
				Unit:  "jobs",
				Date:  obs[len(obs)-1].Date,
			})
		}
	}

	// YoY inflation needs the observation from twelve months earlier.
	if obs, err := c.fetchSeries(ctx, seriesCPI, 13); err != nil {
		lastErr = err
	} else if len(obs) >= 13 {
		yearAgo, ok1 := parseValue(obs[len(obs)-13].Value)
		last, ok2 := parseValue(obs[len(obs)-1].Value)
		if ok1 && ok2 && yearAgo != 0 {
			out = append(out, Indicator{
				Event: "CPI Inflation YoY",
				Value: (last - yearAgo) / yearAgo * 100,
				Unit:  "%",
				Date:  obs[len(obs)-1].Date,
			})
		}
	}

	if len(out) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, fmt.Errorf("macro: no indicators available")
	}

	c.cache.Set(cacheKey, out)
	return out, nil
}

func parseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
