// Package models defines the shared data structures for coinscan:
// market snapshots, ranked gainers, exchange availability, and news items.
package models

import "time"

// CoinSnapshot is one coin's market state as returned by the price API.
// PriceChangePct24h and Volume24h are pointers because the API may omit
// either field for thinly traded coins; absence is meaningful downstream.
type CoinSnapshot struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Symbol            string   `json:"symbol"`
	PriceUSD          float64  `json:"price_usd"`
	PriceChangePct24h *float64 `json:"price_change_pct_24h,omitempty"`
	Volume24h         *float64 `json:"volume_24h,omitempty"`
}

// RankedCoin is a CoinSnapshot that passed the gainer filters, annotated
// with its position in the ranking (0-based).
type RankedCoin struct {
	CoinSnapshot
	Rank int `json:"rank"`
}

// ChangePct returns the 24h percentage change. Ranked coins always have one.
func (r RankedCoin) ChangePct() float64 {
	if r.PriceChangePct24h == nil {
		return 0
	}
	return *r.PriceChangePct24h
}

// PairSetState distinguishes "never fetched" from "fetch failed" from
// "fetched" for the exchange pair set.
type PairSetState int

const (
	PairsNotFetched PairSetState = iota
	PairsFetchFailed
	PairsFetched
)

// PairSet is the set of tradable symbols against the fixed quote currency
// on the secondary exchange, together with how it was obtained.
type PairSet struct {
	State   PairSetState
	Symbols map[string]struct{}
}

// Contains reports whether the composed pair symbol is in the set.
func (p PairSet) Contains(symbol string) bool {
	_, ok := p.Symbols[symbol]
	return ok
}

// Len returns the number of symbols in the set.
func (p PairSet) Len() int { return len(p.Symbols) }

// ListingStatus is the outcome of checking one coin against the exchange.
type ListingStatus string

const (
	// StatusListed means the pair trades and a live quote was fetched.
	StatusListed ListingStatus = "listed"
	// StatusNotListed means the composed pair is not on the exchange
	// (or the ticker endpoint returned 404 for it).
	StatusNotListed ListingStatus = "not_listed"
	// StatusInvalidSymbol means the ticker endpoint rejected the symbol.
	StatusInvalidSymbol ListingStatus = "invalid_symbol"
	// StatusExchangeUnavailable means the pair set fetch yielded nothing,
	// so listing cannot be judged.
	StatusExchangeUnavailable ListingStatus = "exchange_unavailable"
	// StatusCheckUnavailable means no pair set was ever fetched.
	StatusCheckUnavailable ListingStatus = "check_unavailable"
	// StatusExchangeError means the ticker request failed with an HTTP error.
	StatusExchangeError ListingStatus = "exchange_error"
	// StatusConnectionError means the ticker request failed at transport level.
	StatusConnectionError ListingStatus = "connection_error"
	// StatusDataError means the ticker response could not be parsed.
	StatusDataError ListingStatus = "data_error"
)

// ExchangeQuote is the per-coin result of the exchange availability check.
// Price and QuoteVolume are set only when Status is StatusListed.
type ExchangeQuote struct {
	Symbol      string        `json:"symbol"`
	Status      ListingStatus `json:"status"`
	HTTPStatus  int           `json:"http_status,omitempty"`
	Price       *float64      `json:"price,omitempty"`
	QuoteVolume *float64      `json:"quote_volume,omitempty"`
}

// Available reports whether the quote carries live price data.
func (q ExchangeQuote) Available() bool { return q.Status == StatusListed }

// TableRow is one formatted row of the gainers table, matching the CSV and
// dashboard columns.
type TableRow struct {
	Name           string `json:"name"`
	Symbol         string `json:"symbol"`
	MarketPrice    string `json:"market_price"`
	ChangePct      string `json:"change_pct"`
	ExchangeStatus string `json:"exchange_status"`
	ExchangePrice  string `json:"exchange_price"`
	ExchangeVolume string `json:"exchange_volume"`
}

// ChartPoint is one bar of the percentage-change chart.
type ChartPoint struct {
	Symbol    string  `json:"symbol"`
	ChangePct float64 `json:"change_pct"`
}

// ScanResult is the full outcome of one pipeline run.
type ScanResult struct {
	Ranked    []RankedCoin    `json:"ranked"`
	Quotes    []ExchangeQuote `json:"quotes"`
	Rows      []TableRow      `json:"rows"`
	FetchedAt time.Time       `json:"fetched_at"`
}
