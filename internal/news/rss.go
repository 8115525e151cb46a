package news

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/infra"
	"github.com/vvarelai/coinscan/pkg/models"
)

// FeedSource is one crypto news RSS feed.
type FeedSource struct {
	Name   string
	RSSURL string
}

// DefaultFeedSources lists the crypto news feeds used when no search API key
// is configured.
var DefaultFeedSources = []FeedSource{
	{Name: "CoinDesk", RSSURL: "https://www.coindesk.com/arc/outboundfeeds/rss/"},
	{Name: "Cointelegraph", RSSURL: "https://cointelegraph.com/rss"},
	{Name: "Decrypt", RSSURL: "https://decrypt.co/feed"},
	{Name: "Bitcoin Magazine", RSSURL: "https://bitcoinmagazine.com/feed"},
}

// FeedReader fetches crypto headlines from public RSS feeds. It is the
// keyless fallback for news enrichment.
type FeedReader struct {
	sources []FeedSource
	cache   *infra.Cache
	limiter *infra.RateLimiter
	parser  *gofeed.Parser
	log     *zap.Logger
}

// NewFeedReader creates a feed reader with the default crypto sources.
func NewFeedReader(log *zap.Logger) *FeedReader {
	return NewFeedReaderWithSources(DefaultFeedSources, log)
}

// NewFeedReaderWithSources creates a feed reader with custom sources.
func NewFeedReaderWithSources(sources []FeedSource, log *zap.Logger) *FeedReader {
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedReader{
		sources: sources,
		cache:   infra.NewCache(10 * time.Minute),
		limiter: infra.NewRateLimiter(2, time.Second), // conservative: 2 req/s
		parser:  gofeed.NewParser(),
		log:     log,
	}
}

type feedItem struct {
	models.NewsItem
	publishedAt time.Time
}

// MarketHeadlines returns recent headlines across all configured feeds,
// newest first. Failed feeds are skipped.
func (f *FeedReader) MarketHeadlines(ctx context.Context, limit int) ([]models.NewsItem, error) {
	all, err := f.allItems(ctx)
	if err != nil {
		return nil, err
	}
	return takeItems(all, limit), nil
}

// CoinHeadlines returns recent headlines mentioning the coin by name or
// symbol, newest first. An empty result is not an error; callers decide how
// to present it.
func (f *FeedReader) CoinHeadlines(ctx context.Context, coinName, symbol string, limit int) ([]models.NewsItem, error) {
	if coinName == "" && symbol == "" {
		return nil, &Error{Outcome: OutcomeMissingInput, Cause: "no coin name or symbol given"}
	}

	all, err := f.allItems(ctx)
	if err != nil {
		return nil, err
	}

	keywords := coinKeywords(coinName, symbol)
	var filtered []feedItem
	for _, it := range all {
		if matchesAny(it.Title+" "+it.Snippet, keywords) {
			filtered = append(filtered, it)
		}
	}
	return takeItems(filtered, limit), nil
}

// allItems fetches and merges every configured feed, cached for the reader's
// cache TTL.
func (f *FeedReader) allItems(ctx context.Context) ([]feedItem, error) {
	const cacheKey = "rss:all"
	if cached, ok := f.cache.Get(cacheKey); ok {
		return cached.([]feedItem), nil
	}

	var all []feedItem
	var failures int
	for _, src := range f.sources {
		items, err := f.fetchFeed(ctx, src)
		if err != nil {
			// Non-critical: skip failed sources.
			f.log.Warn("feed fetch failed", zap.String("source", src.Name), zap.Error(err))
			failures++
			continue
		}
		all = append(all, items...)
	}
	if failures == len(f.sources) {
		return nil, &Error{Outcome: OutcomeConnectionError, Cause: "all news feeds unreachable"}
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].publishedAt.After(all[j].publishedAt)
	})

	f.cache.Set(cacheKey, all)
	return all, nil
}

func (f *FeedReader) fetchFeed(ctx context.Context, src FeedSource) ([]feedItem, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseURLWithContext(src.RSSURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse RSS %s: %w", src.Name, err)
	}

	items := make([]feedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		fi := feedItem{
			NewsItem: models.NewsItem{
				Title:   item.Title,
				URL:     item.Link,
				Snippet: cleanHTML(item.Description),
				Source:  src.Name,
			},
		}
		if item.PublishedParsed != nil {
			fi.publishedAt = *item.PublishedParsed
		}
		items = append(items, fi)
	}
	return items, nil
}

// coinKeywords builds case-insensitive match keywords for a coin. Short
// symbols are matched as whole words to avoid substring noise (e.g. "OP").
func coinKeywords(coinName, symbol string) []string {
	var keywords []string
	if coinName != "" {
		keywords = append(keywords, strings.ToLower(coinName))
	}
	if symbol != "" {
		keywords = append(keywords, " "+strings.ToLower(symbol)+" ")
	}
	return keywords
}

// matchesAny checks if text contains any of the keywords (case-insensitive).
func matchesAny(text string, keywords []string) bool {
	lower := " " + strings.ToLower(text) + " "
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func takeItems(items []feedItem, limit int) []models.NewsItem {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]models.NewsItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.NewsItem)
	}
	return out
}
