// Package market implements the primary market-data client. It fetches
// paginated coin-market snapshots from the CoinGecko API and normalizes
// HTTP/JSON failures into a typed error taxonomy.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/infra"
	"github.com/vvarelai/coinscan/pkg/models"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// ErrorKind classifies a market-data fetch failure.
type ErrorKind string

const (
	KindMissingCredential ErrorKind = "missing_credential"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindRateLimited       ErrorKind = "rate_limited"
	KindTransient         ErrorKind = "transient"
	KindMalformed         ErrorKind = "malformed_response"
	KindNoData            ErrorKind = "no_data"
)

// FetchError is a classified market-data failure. Page is the 1-based page
// on which the failure occurred, or 0 when no request was made.
type FetchError struct {
	Kind ErrorKind
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("market fetch (%s, page %d): %v", e.Kind, e.Page, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("market fetch (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("market fetch (%s)", e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Kind returns the classification of err if it is a *FetchError.
func Kind(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// Client fetches coin-market snapshots from CoinGecko.
type Client struct {
	baseURL string
	pages   int
	perPage int
	timeout time.Duration
	log     *zap.Logger
}

// NewClient creates a market-data client fetching the configured number of
// pages per scan.
func NewClient(pages, perPage int, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if pages <= 0 {
		pages = 2
	}
	if perPage <= 0 {
		perPage = 100
	}
	return &Client{
		baseURL: defaultBaseURL,
		pages:   pages,
		perPage: perPage,
		timeout: 10 * time.Second,
		log:     log,
	}
}

// cgMarketCoin mirrors one element of the /coins/markets response. The
// percentage change and volume fields are pointers: CoinGecko omits or nulls
// them for coins without 24h data, and that absence matters to the ranker.
type cgMarketCoin struct {
	ID                string   `json:"id"`
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	CurrentPrice      float64  `json:"current_price"`
	PriceChangePct24h *float64 `json:"price_change_percentage_24h_in_currency"`
	TotalVolume       *float64 `json:"total_volume"`
}

// FetchTopSnapshots fetches the configured pages of USD-denominated market
// snapshots ordered by market cap, with 24h percentage change included.
//
// Failure semantics, per page:
//   - 401 aborts everything and discards pages already collected — an
//     untrusted credential invalidates the whole batch.
//   - 429, any other HTTP status, transport errors, and parse failures abort
//     the remaining pages but keep what was collected; the classified error
//     is returned alongside the partial result so the caller can surface it.
//   - An empty final result with no classified error becomes KindNoData.
//
// No deduplication happens here; that is the ranker's job.
func (c *Client) FetchTopSnapshots(ctx context.Context, apiKey string) ([]models.CoinSnapshot, error) {
	if apiKey == "" {
		return nil, &FetchError{Kind: KindMissingCredential, Err: errors.New("no API key configured")}
	}

	var snapshots []models.CoinSnapshot
	for page := 1; page <= c.pages; page++ {
		coins, err := c.fetchPage(ctx, apiKey, page)
		if err != nil {
			fe := classify(err, page)
			if fe.Kind == KindUnauthorized {
				return nil, fe
			}
			c.log.Warn("market page fetch failed",
				zap.Int("page", page),
				zap.String("kind", string(fe.Kind)),
				zap.Error(err))
			if len(snapshots) == 0 {
				return nil, fe
			}
			// Keep the pages we already have.
			return snapshots, fe
		}
		for _, coin := range coins {
			snapshots = append(snapshots, models.CoinSnapshot{
				ID:                coin.ID,
				Name:              coin.Name,
				Symbol:            coin.Symbol,
				PriceUSD:          coin.CurrentPrice,
				PriceChangePct24h: coin.PriceChangePct24h,
				Volume24h:         coin.TotalVolume,
			})
		}
	}

	if len(snapshots) == 0 {
		return nil, &FetchError{Kind: KindNoData, Err: errors.New("no coins returned after all pages")}
	}
	return snapshots, nil
}

// fetchPage requests a single page of /coins/markets.
func (c *Client) fetchPage(ctx context.Context, apiKey string, page int) ([]cgMarketCoin, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := fmt.Sprintf(
		"%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=%d&page=%d&sparkline=false&price_change_percentage=24h",
		c.baseURL, c.perPage, page,
	)

	body, _, err := infra.DoGet(reqCtx, url, map[string]string{
		"x-cg-demo-api-key": apiKey,
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var coins []cgMarketCoin
	if err := json.Unmarshal(data, &coins); err != nil {
		return nil, &parseError{err}
	}
	return coins, nil
}

// parseError marks a JSON decoding failure for classification.
type parseError struct{ err error }

func (e *parseError) Error() string { return "parse market response: " + e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

// classify maps a raw page error onto the fetch taxonomy.
func classify(err error, page int) *FetchError {
	var pe *parseError
	if errors.As(err, &pe) {
		return &FetchError{Kind: KindMalformed, Page: page, Err: err}
	}

	var httpErr *infra.ErrHTTP
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized:
			return &FetchError{Kind: KindUnauthorized, Page: page, Err: err}
		case http.StatusTooManyRequests:
			return &FetchError{Kind: KindRateLimited, Page: page, Err: err}
		default:
			return &FetchError{Kind: KindTransient, Page: page, Err: err}
		}
	}

	// Timeouts, connection resets, DNS failures.
	return &FetchError{Kind: KindTransient, Page: page, Err: err}
}
