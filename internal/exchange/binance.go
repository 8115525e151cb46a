// Package exchange implements the secondary-exchange availability client.
// It resolves which ranked coins trade on Binance against the configured
// quote asset, and fetches live ticker quotes for the ones that do.
package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/infra"
	"github.com/vvarelai/coinscan/pkg/models"
)

const (
	defaultBaseURL = "https://api.binance.com"
	pairsCacheKey  = "tradable_pairs"
)

// Client checks coin availability on Binance.
type Client struct {
	baseURL       string
	quoteAsset    string
	pairsTimeout  time.Duration
	tickerTimeout time.Duration
	cache         *infra.Cache
	log           *zap.Logger
}

// NewClient creates an exchange client for the given quote asset
// (e.g. "USDT"). pairsTTL bounds how long the tradable pair set stays
// memoized; zero or negative means one hour.
func NewClient(quoteAsset string, pairsTTL time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	if pairsTTL <= 0 {
		pairsTTL = 1 * time.Hour
	}
	return &Client{
		baseURL:       defaultBaseURL,
		quoteAsset:    strings.ToUpper(quoteAsset),
		pairsTimeout:  10 * time.Second,
		tickerTimeout: 5 * time.Second,
		cache:         infra.NewCache(pairsTTL),
		log:           log,
	}
}

// QuoteAsset returns the configured quote currency.
func (c *Client) QuoteAsset() string { return c.quoteAsset }

// --- Binance API types ---

type exchangeInfoResponse struct {
	Symbols []exchangeSymbol `json:"symbols"`
}

type exchangeSymbol struct {
	Symbol     string `json:"symbol"`
	QuoteAsset string `json:"quoteAsset"`
	Status     string `json:"status"`
}

// ticker24hResponse carries the fields of /api/v3/ticker/24hr we use.
// Binance encodes numbers as strings.
type ticker24hResponse struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
}

// FetchTradablePairs returns the set of symbols trading against the quote
// asset. The result is memoized until InvalidatePairs is called; a fetch
// failure is memoized too, as a PairsFetchFailed set, so one broken session
// does not hammer the exchange per coin. This method never returns an error:
// downstream checks interpret the set state instead.
func (c *Client) FetchTradablePairs(ctx context.Context) models.PairSet {
	if cached, ok := c.cache.Get(pairsCacheKey); ok {
		return cached.(models.PairSet)
	}

	pairs := c.fetchPairs(ctx)
	c.cache.Set(pairsCacheKey, pairs)
	return pairs
}

// InvalidatePairs drops the memoized pair set so the next fetch is live.
func (c *Client) InvalidatePairs() {
	c.cache.Invalidate(pairsCacheKey)
}

func (c *Client) fetchPairs(ctx context.Context) models.PairSet {
	reqCtx, cancel := context.WithTimeout(ctx, c.pairsTimeout)
	defer cancel()

	failed := models.PairSet{State: models.PairsFetchFailed, Symbols: map[string]struct{}{}}

	body, _, err := infra.DoGet(reqCtx, c.baseURL+"/api/v3/exchangeInfo", nil)
	if err != nil {
		c.log.Warn("exchange pair fetch failed", zap.Error(err))
		return failed
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		c.log.Warn("exchange pair read failed", zap.Error(err))
		return failed
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(data, &info); err != nil {
		c.log.Warn("exchange pair parse failed", zap.Error(err))
		return failed
	}

	symbols := make(map[string]struct{})
	for _, s := range info.Symbols {
		if s.QuoteAsset == c.quoteAsset && s.Status == "TRADING" {
			symbols[s.Symbol] = struct{}{}
		}
	}
	return models.PairSet{State: models.PairsFetched, Symbols: symbols}
}

// CheckCoin resolves one coin's availability on the exchange.
//
// The pair set's state decides the cheap outcomes: never fetched means the
// check itself is unavailable, an empty set (failed fetch, or an exchange
// genuinely listing nothing against the quote asset) means the exchange is
// unavailable, and a miss means the coin is not listed. Only a pair-set hit
// costs a live ticker request.
func (c *Client) CheckCoin(ctx context.Context, baseSymbol string, pairs models.PairSet) models.ExchangeQuote {
	composed := strings.ToUpper(baseSymbol) + c.quoteAsset
	quote := models.ExchangeQuote{Symbol: composed}

	if pairs.State == models.PairsNotFetched {
		quote.Status = models.StatusCheckUnavailable
		return quote
	}
	if pairs.Len() == 0 {
		quote.Status = models.StatusExchangeUnavailable
		return quote
	}
	if !pairs.Contains(composed) {
		quote.Status = models.StatusNotListed
		return quote
	}

	return c.fetchTicker(ctx, composed)
}

func (c *Client) fetchTicker(ctx context.Context, symbol string) models.ExchangeQuote {
	quote := models.ExchangeQuote{Symbol: symbol}

	reqCtx, cancel := context.WithTimeout(ctx, c.tickerTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/v3/ticker/24hr?symbol=%s", c.baseURL, symbol)
	body, _, err := infra.DoGet(reqCtx, url, nil)
	if err != nil {
		return c.classifyTickerError(quote, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		c.log.Warn("exchange ticker read failed", zap.String("symbol", symbol), zap.Error(err))
		quote.Status = models.StatusConnectionError
		return quote
	}

	var ticker ticker24hResponse
	if err := json.Unmarshal(data, &ticker); err != nil {
		c.log.Warn("exchange ticker parse failed", zap.String("symbol", symbol), zap.Error(err))
		quote.Status = models.StatusDataError
		return quote
	}

	price, perr := strconv.ParseFloat(ticker.LastPrice, 64)
	volume, verr := strconv.ParseFloat(ticker.QuoteVolume, 64)
	if perr != nil || verr != nil {
		c.log.Warn("exchange ticker fields malformed", zap.String("symbol", symbol))
		quote.Status = models.StatusDataError
		return quote
	}

	quote.Status = models.StatusListed
	quote.Price = &price
	quote.QuoteVolume = &volume
	return quote
}

func (c *Client) classifyTickerError(quote models.ExchangeQuote, err error) models.ExchangeQuote {
	var httpErr *infra.ErrHTTP
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusBadRequest && strings.Contains(httpErr.Body, "Invalid symbol"):
			quote.Status = models.StatusInvalidSymbol
		case httpErr.StatusCode == http.StatusNotFound:
			quote.Status = models.StatusNotListed
		default:
			quote.Status = models.StatusExchangeError
			quote.HTTPStatus = httpErr.StatusCode
		}
		c.log.Warn("exchange ticker HTTP error",
			zap.String("symbol", quote.Symbol),
			zap.Int("status", httpErr.StatusCode))
		return quote
	}

	c.log.Warn("exchange ticker connection error", zap.String("symbol", quote.Symbol), zap.Error(err))
	quote.Status = models.StatusConnectionError
	return quote
}

// StatusLabel renders a listing status as the human-readable table label.
func StatusLabel(q models.ExchangeQuote) string {
	switch q.Status {
	case models.StatusListed:
		return "On Binance"
	case models.StatusNotListed:
		return "Not on Binance"
	case models.StatusInvalidSymbol:
		return "Invalid symbol (ticker)"
	case models.StatusExchangeUnavailable:
		return "Binance unavailable"
	case models.StatusCheckUnavailable:
		return "Check unavailable"
	case models.StatusExchangeError:
		return fmt.Sprintf("Binance error %d", q.HTTPStatus)
	case models.StatusConnectionError:
		return "Binance connection error"
	case models.StatusDataError:
		return "Binance data error"
	default:
		return "Check error"
	}
}
