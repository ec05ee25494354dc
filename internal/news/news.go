// Package news fetches macro and central-bank headlines from financial
// RSS feeds.
package news

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"macrodesk/internal/infra"
)

// Feed is one configured RSS source.
type Feed struct {
	Name string
	URL  string
}

// DefaultFeeds lists the macro news RSS sources.
var DefaultFeeds = []Feed{
	{
		Name: "Investing.com Economy",
		URL:  "https://www.investing.com/rss/news_11.rss",
	},
}

// Headline is one item on the news panel.
type Headline struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Client fetches and filters headlines across the configured feeds.
type Client struct {
	feeds   []Feed
	parser  *gofeed.Parser
	cache   *infra.Cache
	limiter *infra.RateLimiter
	log     *zap.Logger
}

func New(feeds []Feed, cacheTTL time.Duration, log *zap.Logger) *Client {
	if len(feeds) == 0 {
		feeds = DefaultFeeds
	}
	if log == nil {
		log = zap.NewNop()
	}
	parser := gofeed.NewParser()
	parser.UserAgent = infra.BrowserUserAgent
	return &Client{
		feeds:   feeds,
		parser:  parser,
		cache:   infra.NewCache(cacheTTL),
		limiter: infra.NewRateLimiter(2, time.Second),
		log:     log,
	}
}

// Latest returns up to limit headlines across all feeds, newest first.
// Failed feeds are skipped; an error is returned only when every feed
// fails.
func (c *Client) Latest(ctx context.Context, limit int) ([]Headline, error) {
	cacheKey := fmt.Sprintf("news:latest:%d", limit)
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.([]Headline), nil
	}

	var (
		all     []Headline
		lastErr error
	)
	for _, f := range c.feeds {
		items, err := c.fetchFeed(ctx, f)
		if err != nil {
			c.log.Warn("feed fetch failed", zap.String("feed", f.Name), zap.Error(err))
			lastErr = err
			continue
		}
		all = append(all, items...)
	}
	if len(all) == 0 && lastErr != nil {
		return nil, lastErr
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].PublishedAt.After(all[j].PublishedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	c.cache.Set(cacheKey, all)
	return all, nil
}

// Matching returns headlines whose title or summary mentions any of the
// given keywords, case-insensitive.
func (c *Client) Matching(ctx context.Context, keywords []string, limit int) ([]Headline, error) {
	all, err := c.Latest(ctx, 0)
	if err != nil {
		return nil, err
	}

	var filtered []Headline
	for _, h := range all {
		content := strings.ToLower(h.Title + " " + h.Summary)
		for _, kw := range keywords {
			if strings.Contains(content, strings.ToLower(kw)) {
				filtered = append(filtered, h)
				break
			}
		}
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (c *Client) fetchFeed(ctx context.Context, f Feed) ([]Headline, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := c.parser.ParseURLWithContext(f.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse RSS %s: %w", f.Name, err)
	}

	items := make([]Headline, 0, len(feed.Items))
	for _, item := range feed.Items {
		h := Headline{
			Title:   strings.TrimSpace(item.Title),
			URL:     item.Link,
			Source:  f.Name,
			Summary: cleanHTML(item.Description),
		}
		if h.Title == "" {
			continue
		}
		if item.PublishedParsed != nil {
			h.PublishedAt = *item.PublishedParsed
		}
		items = append(items, h)
	}
	return items, nil
}

// cleanHTML strips HTML tags from a string using goquery.
func cleanHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
