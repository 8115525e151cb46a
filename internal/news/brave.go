// Package news implements news enrichment for ranked coins: a Brave web
// search client with news/web result normalization, plus a keyless RSS
// headline fallback for sessions without a search API key.
package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/infra"
	"github.com/vvarelai/coinscan/pkg/models"
)

const defaultSearchURL = "https://api.search.brave.com/res/v1/web/search"

// DefaultCount is the default number of news items per coin.
const DefaultCount = 3

// Outcome classifies a news lookup failure.
type Outcome string

const (
	OutcomeMissingCredential Outcome = "missing_credential"
	OutcomeMissingInput      Outcome = "missing_input"
	OutcomeUnauthorized      Outcome = "unauthorized"
	OutcomeRateLimited       Outcome = "rate_limited"
	OutcomeForbidden         Outcome = "forbidden"
	OutcomeHTTPError         Outcome = "http_error"
	OutcomeConnectionError   Outcome = "connection_error"
	OutcomeParseError        Outcome = "parse_error"
	// OutcomeNoResults means the search succeeded but matched nothing.
	// It is a degraded result, not a failure.
	OutcomeNoResults Outcome = "no_results"
)

// Error is a classified news lookup failure with a human-readable cause.
type Error struct {
	Outcome Outcome
	Coin    string
	Cause   string
	Err     error
}

func (e *Error) Error() string {
	if e.Cause != "" {
		return fmt.Sprintf("news lookup for %q (%s): %s", e.Coin, e.Outcome, e.Cause)
	}
	return fmt.Sprintf("news lookup for %q (%s)", e.Coin, e.Outcome)
}

func (e *Error) Unwrap() error { return e.Err }

// OutcomeOf returns the classification of err if it is a *Error.
func OutcomeOf(err error) (Outcome, bool) {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Outcome, true
	}
	return "", false
}

// Client fetches coin news from the Brave web search API. It does not
// self-throttle; callers enriching multiple coins must pace their calls
// (see scanner).
type Client struct {
	searchURL string
	timeout   time.Duration
	log       *zap.Logger
}

// NewClient creates a news search client.
func NewClient(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		searchURL: defaultSearchURL,
		timeout:   10 * time.Second,
		log:       log,
	}
}

// --- Brave API types ---

type braveResponse struct {
	News *braveCollection `json:"news"`
	Web  *braveCollection `json:"web"`
}

type braveCollection struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
	Source      string `json:"source"`
	MetaURL     struct {
		Hostname string `json:"hostname"`
	} `json:"meta_url"`
}

// FetchNews searches for recent news about the named coin and returns up to
// count normalized items. Results from the news collection are preferred;
// when it is empty or absent, the general web collection is used instead.
// Freshness is restricted to the past day.
func (c *Client) FetchNews(ctx context.Context, coinName, apiKey string, count int) ([]models.NewsItem, error) {
	if apiKey == "" {
		return nil, &Error{Outcome: OutcomeMissingCredential, Coin: coinName, Cause: "no search API key configured"}
	}
	if coinName == "" {
		return nil, &Error{Outcome: OutcomeMissingInput, Cause: "no coin name given"}
	}
	if count <= 0 {
		count = DefaultCount
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("q", coinName+" coin news")
	params.Set("count", fmt.Sprint(count))
	params.Set("safesearch", "moderate")
	params.Set("freshness", "pd")

	body, _, err := infra.DoGet(reqCtx, c.searchURL+"?"+params.Encode(), map[string]string{
		"Accept":               "application/json",
		"X-Subscription-Token": apiKey,
	})
	if err != nil {
		return nil, c.classify(coinName, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &Error{Outcome: OutcomeConnectionError, Coin: coinName, Cause: err.Error(), Err: err}
	}

	var resp braveResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Outcome: OutcomeParseError, Coin: coinName, Cause: "malformed search response", Err: err}
	}

	items := normalize(resp.News)
	if len(items) == 0 {
		items = normalize(resp.Web)
	}
	if len(items) == 0 {
		return nil, &Error{
			Outcome: OutcomeNoResults,
			Coin:    coinName,
			Cause:   "no recent news or web results matched",
		}
	}
	return items, nil
}

func (c *Client) classify(coinName string, err error) error {
	var httpErr *infra.ErrHTTP
	if errors.As(err, &httpErr) {
		out := &Error{Coin: coinName, Err: err}
		switch httpErr.StatusCode {
		case http.StatusUnauthorized:
			out.Outcome = OutcomeUnauthorized
			out.Cause = "search API key rejected"
		case http.StatusTooManyRequests:
			out.Outcome = OutcomeRateLimited
			out.Cause = "search API rate limit reached"
		case http.StatusForbidden:
			out.Outcome = OutcomeForbidden
			out.Cause = "search API access denied; check subscription"
		default:
			out.Outcome = OutcomeHTTPError
			out.Cause = fmt.Sprintf("search API returned HTTP %d", httpErr.StatusCode)
		}
		c.log.Warn("news search failed",
			zap.String("coin", coinName),
			zap.Int("status", httpErr.StatusCode))
		return out
	}

	c.log.Warn("news search connection failed", zap.String("coin", coinName), zap.Error(err))
	return &Error{Outcome: OutcomeConnectionError, Coin: coinName, Cause: "could not reach search API", Err: err}
}

// normalize maps one result collection into NewsItems.
func normalize(col *braveCollection) []models.NewsItem {
	if col == nil {
		return nil
	}
	items := make([]models.NewsItem, 0, len(col.Results))
	for _, r := range col.Results {
		items = append(items, models.NewsItem{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: cleanHTML(coalesce(r.Description, r.Snippet)),
			Source:  coalesce(r.Source, r.MetaURL.Hostname, hostnameOf(r.URL)),
		})
	}
	return items
}

// cleanHTML strips HTML tags from a string using goquery. Brave descriptions
// carry highlight markup.
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

func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
