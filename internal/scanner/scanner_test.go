package scanner

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/config"
	"github.com/vvarelai/coinscan/internal/infra"
	"github.com/vvarelai/coinscan/internal/news"
	"github.com/vvarelai/coinscan/pkg/models"
)

func fptr(v float64) *float64 { return &v }

// --- fakes ---

type fakeMarket struct {
	snaps []models.CoinSnapshot
	err   error
	calls int
}

func (f *fakeMarket) FetchTopSnapshots(_ context.Context, _ string) ([]models.CoinSnapshot, error) {
	f.calls++
	return f.snaps, f.err
}

type fakeExchange struct {
	pairs  models.PairSet
	quotes map[string]models.ExchangeQuote
}

func (f *fakeExchange) QuoteAsset() string { return "USDT" }

func (f *fakeExchange) FetchTradablePairs(_ context.Context) models.PairSet { return f.pairs }

func (f *fakeExchange) CheckCoin(_ context.Context, baseSymbol string, _ models.PairSet) models.ExchangeQuote {
	if q, ok := f.quotes[strings.ToUpper(baseSymbol)]; ok {
		return q
	}
	return models.ExchangeQuote{
		Symbol: strings.ToUpper(baseSymbol) + "USDT",
		Status: models.StatusNotListed,
	}
}

type fakeSearch struct {
	items map[string][]models.NewsItem
	err   error
	calls int
}

func (f *fakeSearch) FetchNews(_ context.Context, coinName, _ string, _ int) ([]models.NewsItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.items[coinName], nil
}

type fakeFeeds struct {
	items []models.NewsItem
	calls int
}

func (f *fakeFeeds) CoinHeadlines(_ context.Context, _, _ string, _ int) ([]models.NewsItem, error) {
	f.calls++
	return f.items, nil
}

func (f *fakeFeeds) MarketHeadlines(_ context.Context, limit int) ([]models.NewsItem, error) {
	f.calls++
	if limit > 0 && len(f.items) > limit {
		return f.items[:limit], nil
	}
	return f.items, nil
}

func testScanner(m marketFetcher, e pairChecker, s newsSearcher, f headlineReader, cfg *config.Config) *Scanner {
	if cfg == nil {
		cfg = &config.Config{
			News: config.NewsConfig{BraveKey: "test-key", Count: 3, PaceMillis: 1},
		}
	}
	return &Scanner{
		cfg:      cfg,
		market:   m,
		exchange: e,
		search:   s,
		feeds:    f,
		pace:     infra.NewRateLimiter(100, time.Millisecond),
		log:      zap.NewNop(),
		news:     make(map[string]models.NewsResult),
	}
}

func gainerSnapshots() []models.CoinSnapshot {
	return []models.CoinSnapshot{
		{ID: "solana", Name: "Solana", Symbol: "sol", PriceUSD: 150.25,
			PriceChangePct24h: fptr(12.5), Volume24h: fptr(2_000_000_000)},
		{ID: "pepe", Name: "Pepe", Symbol: "pepe", PriceUSD: 0.0000071,
			PriceChangePct24h: fptr(8.1), Volume24h: fptr(500_000_000)},
	}
}

// --- Scan ---

func TestScanBuildsSession(t *testing.T) {
	fe := &fakeExchange{
		pairs: models.PairSet{State: models.PairsFetched,
			Symbols: map[string]struct{}{"SOLUSDT": {}}},
		quotes: map[string]models.ExchangeQuote{
			"SOL": {Symbol: "SOLUSDT", Status: models.StatusListed,
				Price: fptr(150.30), QuoteVolume: fptr(1_999_123_456.78)},
		},
	}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, fe, &fakeSearch{}, nil, nil)

	result, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(result.Ranked) != 2 {
		t.Fatalf("expected 2 ranked coins, got %d", len(result.Ranked))
	}
	if result.Ranked[0].Symbol != "sol" {
		t.Errorf("expected sol ranked first, got %q", result.Ranked[0].Symbol)
	}
	if result.FetchedAt.IsZero() {
		t.Error("FetchedAt should be set")
	}

	sol := result.Rows[0]
	if sol.Symbol != "SOL" {
		t.Errorf("symbol should be uppercased, got %q", sol.Symbol)
	}
	if sol.MarketPrice != "$150.2500" {
		t.Errorf("market price: got %q", sol.MarketPrice)
	}
	if sol.ChangePct != "12.50%" {
		t.Errorf("change pct: got %q", sol.ChangePct)
	}
	if sol.ExchangeStatus != "On Binance" {
		t.Errorf("exchange status: got %q", sol.ExchangeStatus)
	}
	if sol.ExchangePrice != "$150.30" {
		t.Errorf("exchange price: got %q", sol.ExchangePrice)
	}
	if sol.ExchangeVolume != "$1,999,123,456.78" {
		t.Errorf("exchange volume: got %q", sol.ExchangeVolume)
	}

	pepe := result.Rows[1]
	if pepe.MarketPrice != "$0.00000710" {
		t.Errorf("sub-cent market price: got %q", pepe.MarketPrice)
	}
	if pepe.ExchangePrice != "-" || pepe.ExchangeVolume != "-" {
		t.Errorf("unlisted coin should render dashes, got %q / %q",
			pepe.ExchangePrice, pepe.ExchangeVolume)
	}

	if got, ok := s.Result(); !ok || got != result {
		t.Error("Result() should return the stored session")
	}
}

func TestScanPartialDataStillBuildsResult(t *testing.T) {
	fm := &fakeMarket{snaps: gainerSnapshots(), err: errors.New("rate limited after page 1")}
	s := testScanner(fm, &fakeExchange{}, &fakeSearch{}, nil, nil)

	result, err := s.Scan(context.Background())
	if err == nil {
		t.Fatal("expected the fetch error to be surfaced")
	}
	if result == nil || len(result.Ranked) != 2 {
		t.Fatalf("expected partial result, got %+v", result)
	}
}

func TestScanNoDataKeepsPreviousSession(t *testing.T) {
	fm := &fakeMarket{snaps: gainerSnapshots()}
	s := testScanner(fm, &fakeExchange{}, &fakeSearch{}, nil, nil)
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("seed scan failed: %v", err)
	}

	fm.snaps = nil
	fm.err = errors.New("unauthorized")
	result, err := s.Scan(context.Background())
	if err == nil || result != nil {
		t.Fatalf("expected error with no result, got %+v / %v", result, err)
	}
	if _, ok := s.Result(); !ok {
		t.Error("previous session should survive a failed scan")
	}
}

func TestScanClearsCachedNews(t *testing.T) {
	fs := &fakeSearch{items: map[string][]models.NewsItem{
		"Solana": {{Title: "t"}},
	}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, nil, nil)
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	coin, _ := s.RankedByName("Solana")
	s.NewsFor(context.Background(), coin)
	if len(s.CachedNews()) != 1 {
		t.Fatal("expected one cached news entry")
	}

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("rescan failed: %v", err)
	}
	if len(s.CachedNews()) != 0 {
		t.Error("rescan should clear cached news")
	}
}

// --- News ---

func TestNewsForCachesPerCoin(t *testing.T) {
	fs := &fakeSearch{items: map[string][]models.NewsItem{
		"Solana": {{Title: "Solana surges", URL: "https://x.example"}},
	}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, nil, nil)
	s.Scan(context.Background())

	coin, _ := s.RankedByName("solana") // case-insensitive
	first := s.NewsFor(context.Background(), coin)
	second := s.NewsFor(context.Background(), coin)

	if fs.calls != 1 {
		t.Errorf("expected 1 search call, got %d", fs.calls)
	}
	if len(first.Items) != 1 || first.Items[0].Title != "Solana surges" {
		t.Errorf("unexpected items: %+v", first.Items)
	}
	if second.Coin != first.Coin || len(second.Items) != len(first.Items) {
		t.Error("cached result should match the first lookup")
	}
}

func TestNewsForAllRequiresSession(t *testing.T) {
	s := testScanner(&fakeMarket{}, &fakeExchange{}, &fakeSearch{}, nil, nil)
	if _, err := s.NewsForAll(context.Background()); err == nil {
		t.Error("expected error without a scan session")
	}
}

func TestNewsForAllCoversEveryRankedCoin(t *testing.T) {
	fs := &fakeSearch{items: map[string][]models.NewsItem{
		"Solana": {{Title: "a"}},
		"Pepe":   {{Title: "b"}},
	}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, nil, nil)
	s.Scan(context.Background())

	all, err := s.NewsForAll(context.Background())
	if err != nil {
		t.Fatalf("NewsForAll() error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if fs.calls != 2 {
		t.Errorf("expected 2 search calls, got %d", fs.calls)
	}

	// A second pass serves everything from cache.
	s.NewsForAll(context.Background())
	if fs.calls != 2 {
		t.Errorf("cached pass should not refetch, got %d calls", fs.calls)
	}
}

func TestNewsNoResultsBecomesMessage(t *testing.T) {
	fs := &fakeSearch{err: &news.Error{Outcome: news.OutcomeNoResults, Coin: "Pepe"}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, nil, nil)
	s.Scan(context.Background())

	coin, _ := s.RankedByName("Pepe")
	result := s.NewsFor(context.Background(), coin)
	if result.Error != "" {
		t.Errorf("no_results should not be an error, got %q", result.Error)
	}
	if result.Message == "" {
		t.Error("expected a friendly message")
	}
}

func TestNewsFailureBecomesError(t *testing.T) {
	fs := &fakeSearch{err: &news.Error{Outcome: news.OutcomeRateLimited, Coin: "Solana"}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, nil, nil)
	s.Scan(context.Background())

	coin, _ := s.RankedByName("Solana")
	result := s.NewsFor(context.Background(), coin)
	if result.Error == "" {
		t.Error("expected an error string")
	}
	if len(result.Items) != 0 {
		t.Error("failed lookup should carry no items")
	}
}

func TestNewsFallsBackToFeedsWithoutKey(t *testing.T) {
	fs := &fakeSearch{}
	ff := &fakeFeeds{items: []models.NewsItem{{Title: "Headline", Source: "CoinDesk"}}}
	cfg := &config.Config{News: config.NewsConfig{Count: 3, RSSFallback: true, PaceMillis: 1}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, ff, cfg)
	s.Scan(context.Background())

	coin, _ := s.RankedByName("Solana")
	result := s.NewsFor(context.Background(), coin)
	if fs.calls != 0 {
		t.Error("search API should not be called without a key")
	}
	if ff.calls != 1 {
		t.Errorf("expected 1 feed call, got %d", ff.calls)
	}
	if len(result.Items) != 1 || result.Items[0].Source != "CoinDesk" {
		t.Errorf("unexpected fallback items: %+v", result.Items)
	}
}

func TestUpdateKeysEnablesSearch(t *testing.T) {
	cfg := &config.Config{News: config.NewsConfig{Count: 3, RSSFallback: true, PaceMillis: 1}}
	fs := &fakeSearch{items: map[string][]models.NewsItem{"Solana": {{Title: "t"}}}}
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, fs, &fakeFeeds{}, cfg)
	s.Scan(context.Background())

	s.UpdateKeys("", "BSA-runtime-key")
	coin, _ := s.RankedByName("Solana")
	s.NewsFor(context.Background(), coin)
	if fs.calls != 1 {
		t.Errorf("expected search call after key update, got %d", fs.calls)
	}
}

func TestUpdateKeysConcurrentWithKeyStatus(t *testing.T) {
	cfg := &config.Config{News: config.NewsConfig{Count: 3, PaceMillis: 1}}
	s := testScanner(&fakeMarket{}, &fakeExchange{}, &fakeSearch{}, nil, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.UpdateKeys("CG-race-key", "BSA-race-key")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.KeyStatus()
			}
		}()
	}
	wg.Wait()

	for _, k := range s.KeyStatus() {
		if !k.IsSet {
			t.Errorf("%s should be set after concurrent updates", k.Name)
		}
	}
}

func TestMarketHeadlines(t *testing.T) {
	ff := &fakeFeeds{items: []models.NewsItem{
		{Title: "first", Source: "CoinDesk"},
		{Title: "second", Source: "Decrypt"},
	}}
	s := testScanner(&fakeMarket{}, &fakeExchange{}, &fakeSearch{}, ff, nil)

	items, err := s.MarketHeadlines(context.Background(), 1)
	if err != nil {
		t.Fatalf("MarketHeadlines: %v", err)
	}
	if len(items) != 1 || items[0].Title != "first" {
		t.Errorf("unexpected headlines: %+v", items)
	}
}

func TestMarketHeadlinesNoFeeds(t *testing.T) {
	s := testScanner(&fakeMarket{}, &fakeExchange{}, &fakeSearch{}, nil, nil)
	if _, err := s.MarketHeadlines(context.Background(), 5); err == nil {
		t.Error("expected error when no feeds are configured")
	}
}

// --- Chart ---

func TestChartPointsMatchRanking(t *testing.T) {
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, &fakeSearch{}, nil, nil)
	s.Scan(context.Background())

	points := s.ChartPoints()
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[0].Symbol != "SOL" || points[0].ChangePct != 12.5 {
		t.Errorf("unexpected first point: %+v", points[0])
	}
}

func TestChartPointsSkipNonFinite(t *testing.T) {
	s := testScanner(&fakeMarket{}, &fakeExchange{}, &fakeSearch{}, nil, nil)
	s.result = &models.ScanResult{
		Ranked: []models.RankedCoin{
			{CoinSnapshot: models.CoinSnapshot{Symbol: "aaa", PriceChangePct24h: fptr(5)}},
			{CoinSnapshot: models.CoinSnapshot{Symbol: "bad", PriceChangePct24h: fptr(math.Inf(1))}},
			{CoinSnapshot: models.CoinSnapshot{Symbol: "nan", PriceChangePct24h: fptr(math.NaN())}},
		},
	}
	points := s.ChartPoints()
	if len(points) != 1 || points[0].Symbol != "AAA" {
		t.Errorf("expected only the finite point, got %+v", points)
	}
}

func TestChartPointsBeforeScan(t *testing.T) {
	s := testScanner(&fakeMarket{}, &fakeExchange{}, &fakeSearch{}, nil, nil)
	if points := s.ChartPoints(); points != nil {
		t.Errorf("expected nil before a scan, got %+v", points)
	}
}

// --- Lookup ---

func TestRankedByName(t *testing.T) {
	s := testScanner(&fakeMarket{snaps: gainerSnapshots()}, &fakeExchange{}, &fakeSearch{}, nil, nil)
	s.Scan(context.Background())

	if _, ok := s.RankedByName("SOLANA"); !ok {
		t.Error("lookup should be case-insensitive")
	}
	if _, ok := s.RankedByName("dogecoin"); ok {
		t.Error("unknown coin should not be found")
	}
}
