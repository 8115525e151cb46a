// Package scanner orchestrates the gainers pipeline: market snapshots are
// ranked, checked against the exchange, formatted into table rows, and held
// as the current session for the CLI and the API server. News enrichment
// runs against the session's ranked list, paced to respect the search API's
// request budget.
package scanner

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/config"
	"github.com/vvarelai/coinscan/internal/exchange"
	"github.com/vvarelai/coinscan/internal/infra"
	"github.com/vvarelai/coinscan/internal/market"
	"github.com/vvarelai/coinscan/internal/news"
	"github.com/vvarelai/coinscan/internal/ranker"
	"github.com/vvarelai/coinscan/pkg/models"
	"github.com/vvarelai/coinscan/pkg/utils"
)

// marketFetcher fetches top market snapshots.
type marketFetcher interface {
	FetchTopSnapshots(ctx context.Context, apiKey string) ([]models.CoinSnapshot, error)
}

// pairChecker checks coin availability on the exchange.
type pairChecker interface {
	QuoteAsset() string
	FetchTradablePairs(ctx context.Context) models.PairSet
	CheckCoin(ctx context.Context, baseSymbol string, pairs models.PairSet) models.ExchangeQuote
}

// newsSearcher looks up recent news for one coin.
type newsSearcher interface {
	FetchNews(ctx context.Context, coinName, apiKey string, count int) ([]models.NewsItem, error)
}

// headlineReader is the keyless RSS fallback.
type headlineReader interface {
	CoinHeadlines(ctx context.Context, coinName, symbol string, limit int) ([]models.NewsItem, error)
	MarketHeadlines(ctx context.Context, limit int) ([]models.NewsItem, error)
}

// Scanner runs the pipeline and owns the current session. All methods are
// safe for concurrent use; the API server shares one Scanner across requests.
type Scanner struct {
	cfg      *config.Config
	market   marketFetcher
	exchange pairChecker
	search   newsSearcher
	feeds    headlineReader
	pace     *infra.RateLimiter
	log      *zap.Logger

	mu     sync.RWMutex
	result *models.ScanResult
	pairs  models.PairSet
	news   map[string]models.NewsResult
}

// New creates a scanner wired to the live upstreams.
func New(cfg *config.Config, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	paceEvery := time.Duration(cfg.News.PaceMillis) * time.Millisecond
	if paceEvery <= 0 {
		paceEvery = 1100 * time.Millisecond
	}
	pairsTTL := time.Duration(cfg.Exchange.PairsCacheTTLSec) * time.Second
	return &Scanner{
		cfg:      cfg,
		market:   market.NewClient(cfg.Market.Pages, cfg.Market.PerPage, log),
		exchange: exchange.NewClient(cfg.Exchange.QuoteAsset, pairsTTL, log),
		search:   news.NewClient(log),
		feeds:    news.NewFeedReader(log),
		pace:     infra.NewRateLimiter(1, paceEvery),
		log:      log,
		news:     make(map[string]models.NewsResult),
	}
}

// UpdateKeys replaces the API keys at runtime. Empty arguments leave the
// corresponding key unchanged.
func (s *Scanner) UpdateKeys(coingeckoKey, braveKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if coingeckoKey != "" {
		s.cfg.Market.CoinGeckoKey = coingeckoKey
	}
	if braveKey != "" {
		s.cfg.News.BraveKey = braveKey
	}
}

// KeyStatus reports the configured API keys, masked. It reads the config
// under the same lock UpdateKeys writes it with, so the API server can
// serve key status concurrently with key updates.
func (s *Scanner) KeyStatus() []config.KeyStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return config.CheckAPIKeys(s.cfg)
}

// Scan runs the full pipeline and replaces the session. On a partial market
// fetch (rate limit or transient failure after the first page) it still
// builds and stores a result from what arrived, returning it alongside the
// classified error. When nothing usable arrived, the previous session is
// kept and the error returned alone.
func (s *Scanner) Scan(ctx context.Context) (*models.ScanResult, error) {
	s.mu.RLock()
	apiKey := s.cfg.Market.CoinGeckoKey
	s.mu.RUnlock()

	snapshots, fetchErr := s.market.FetchTopSnapshots(ctx, apiKey)
	if len(snapshots) == 0 {
		if fetchErr == nil {
			fetchErr = fmt.Errorf("no market data returned")
		}
		return nil, fetchErr
	}
	if fetchErr != nil {
		s.log.Warn("continuing with partial market data",
			zap.Int("snapshots", len(snapshots)), zap.Error(fetchErr))
	}

	ranked := ranker.Rank(snapshots)
	pairs := s.exchange.FetchTradablePairs(ctx)

	quotes := make([]models.ExchangeQuote, len(ranked))
	rows := make([]models.TableRow, len(ranked))
	for i, coin := range ranked {
		quotes[i] = s.exchange.CheckCoin(ctx, coin.Symbol, pairs)
		rows[i] = buildRow(coin, quotes[i])
	}

	result := &models.ScanResult{
		Ranked:    ranked,
		Quotes:    quotes,
		Rows:      rows,
		FetchedAt: utils.NowUTC(),
	}

	s.mu.Lock()
	s.result = result
	s.pairs = pairs
	// A new ranking invalidates news gathered for the old one.
	s.news = make(map[string]models.NewsResult)
	s.mu.Unlock()

	s.log.Info("scan complete",
		zap.Int("candidates", len(snapshots)),
		zap.Int("ranked", len(ranked)))
	return result, fetchErr
}

// Result returns the current session's scan result, or false when no scan
// has completed yet.
func (s *Scanner) Result() (*models.ScanResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result, s.result != nil
}

// ChartPoints returns the percentage changes of the session's ranked coins,
// skipping non-finite values so the chart never chokes on them.
func (s *Scanner) ChartPoints() []models.ChartPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return nil
	}
	points := make([]models.ChartPoint, 0, len(s.result.Ranked))
	for _, coin := range s.result.Ranked {
		pct := coin.ChangePct()
		if math.IsNaN(pct) || math.IsInf(pct, 0) {
			continue
		}
		points = append(points, models.ChartPoint{
			Symbol:    strings.ToUpper(coin.Symbol),
			ChangePct: pct,
		})
	}
	return points
}

// NewsFor fetches news for one coin by name, caching the outcome in the
// session. A repeated lookup for the same coin returns the cached result.
func (s *Scanner) NewsFor(ctx context.Context, coin models.RankedCoin) models.NewsResult {
	s.mu.RLock()
	cached, ok := s.news[coin.Name]
	braveKey := s.cfg.News.BraveKey
	count := s.cfg.News.Count
	rssFallback := s.cfg.News.RSSFallback
	s.mu.RUnlock()
	if ok {
		return cached
	}

	result := s.lookupNews(ctx, coin, braveKey, count, rssFallback)

	s.mu.Lock()
	s.news[coin.Name] = result
	s.mu.Unlock()
	return result
}

// NewsForAll enriches every ranked coin in the session, pacing lookups so
// the search API's request budget is respected. Coins already enriched are
// served from the session cache without consuming pace tokens.
func (s *Scanner) NewsForAll(ctx context.Context) (map[string]models.NewsResult, error) {
	s.mu.RLock()
	result := s.result
	s.mu.RUnlock()
	if result == nil {
		return nil, fmt.Errorf("no scan session; run a scan first")
	}

	out := make(map[string]models.NewsResult, len(result.Ranked))
	for _, coin := range result.Ranked {
		s.mu.RLock()
		cached, ok := s.news[coin.Name]
		s.mu.RUnlock()
		if ok {
			out[coin.Name] = cached
			continue
		}
		if err := s.pace.Wait(ctx); err != nil {
			return out, err
		}
		out[coin.Name] = s.NewsFor(ctx, coin)
	}
	return out, nil
}

// MarketHeadlines returns recent market-wide headlines from the RSS feeds,
// newest first. It needs no scan session and no API key.
func (s *Scanner) MarketHeadlines(ctx context.Context, limit int) ([]models.NewsItem, error) {
	if s.feeds == nil {
		return nil, fmt.Errorf("no headline feeds configured")
	}
	if limit <= 0 {
		limit = 10
	}
	return s.feeds.MarketHeadlines(ctx, limit)
}

// CachedNews returns the session's news map (a copy).
func (s *Scanner) CachedNews() map[string]models.NewsResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.NewsResult, len(s.news))
	for k, v := range s.news {
		out[k] = v
	}
	return out
}

// InvalidateNews drops all cached news so the next lookup refetches.
func (s *Scanner) InvalidateNews() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.news = make(map[string]models.NewsResult)
}

// RankedByName finds a session coin by its display name (case-insensitive).
func (s *Scanner) RankedByName(name string) (models.RankedCoin, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return models.RankedCoin{}, false
	}
	for _, coin := range s.result.Ranked {
		if strings.EqualFold(coin.Name, name) {
			return coin, true
		}
	}
	return models.RankedCoin{}, false
}

func (s *Scanner) lookupNews(ctx context.Context, coin models.RankedCoin, braveKey string, count int, rssFallback bool) models.NewsResult {
	result := models.NewsResult{Coin: coin.Name}

	if braveKey == "" && rssFallback && s.feeds != nil {
		items, err := s.feeds.CoinHeadlines(ctx, coin.Name, coin.Symbol, count)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		if len(items) == 0 {
			result.Message = fmt.Sprintf("No recent headlines mention %s.", coin.Name)
			return result
		}
		result.Items = items
		return result
	}

	items, err := s.search.FetchNews(ctx, coin.Name, braveKey, count)
	if err != nil {
		if out, ok := news.OutcomeOf(err); ok && out == news.OutcomeNoResults {
			result.Message = fmt.Sprintf("No recent news found for %s.", coin.Name)
			return result
		}
		result.Error = err.Error()
		return result
	}
	result.Items = items
	return result
}

// buildRow formats one ranked coin and its exchange quote into display
// columns. Unavailable exchange data renders as "-".
func buildRow(coin models.RankedCoin, quote models.ExchangeQuote) models.TableRow {
	row := models.TableRow{
		Name:           coin.Name,
		Symbol:         strings.ToUpper(coin.Symbol),
		MarketPrice:    utils.FormatMarketPrice(coin.PriceUSD),
		ChangePct:      utils.FormatPct(coin.ChangePct()),
		ExchangeStatus: exchange.StatusLabel(quote),
		ExchangePrice:  "-",
		ExchangeVolume: "-",
	}
	if quote.Available() {
		if quote.Price != nil {
			row.ExchangePrice = utils.FormatExchangePrice(*quote.Price)
		}
		if quote.QuoteVolume != nil {
			row.ExchangeVolume = utils.FormatVolumeUSD(*quote.QuoteVolume)
		}
	}
	return row
}
