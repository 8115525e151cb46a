package news

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(url string) *Client {
	c := NewClient(nil)
	c.searchURL = url
	return c
}

func TestFetchNewsMissingKey(t *testing.T) {
	c := NewClient(nil)
	_, err := c.FetchNews(context.Background(), "bitcoin", "", 3)
	if out, _ := OutcomeOf(err); out != OutcomeMissingCredential {
		t.Fatalf("expected missing_credential, got %v (err: %v)", out, err)
	}
}

func TestFetchNewsMissingCoin(t *testing.T) {
	c := NewClient(nil)
	_, err := c.FetchNews(context.Background(), "", "key", 3)
	if out, _ := OutcomeOf(err); out != OutcomeMissingInput {
		t.Fatalf("expected missing_input, got %v", out)
	}
}

func TestFetchNewsFromNewsCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "brave-key" {
			t.Errorf("missing subscription token, got %q", got)
		}
		q := r.URL.Query()
		if q.Get("q") != "solana coin news" {
			t.Errorf("unexpected query %q", q.Get("q"))
		}
		if q.Get("freshness") != "pd" || q.Get("safesearch") != "moderate" {
			t.Errorf("unexpected params: %v", q)
		}
		w.Write([]byte(`{
			"news": {"results": [
				{"title": "Solana surges", "url": "https://a.example/1",
				 "description": "SOL is <strong>up</strong> today", "source": "Example News"}
			]},
			"web": {"results": [
				{"title": "should not be used", "url": "https://b.example/1"}
			]}
		}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchNews(context.Background(), "solana", "brave-key", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Title != "Solana surges" {
		t.Errorf("unexpected title %q", items[0].Title)
	}
	if items[0].Snippet != "SOL is up today" {
		t.Errorf("expected HTML stripped, got %q", items[0].Snippet)
	}
	if items[0].Source != "Example News" {
		t.Errorf("unexpected source %q", items[0].Source)
	}
}

func TestFetchNewsFallsBackToWebResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"web": {"results": [
				{"title": "Coin analysis", "url": "https://c.example/post",
				 "snippet": "deep dive", "meta_url": {"hostname": "c.example"}}
			]}
		}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchNews(context.Background(), "pepe", "key", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Title != "Coin analysis" {
		t.Fatalf("expected web result fallback, got %+v", items)
	}
	if items[0].Snippet != "deep dive" {
		t.Errorf("expected snippet fallback, got %q", items[0].Snippet)
	}
	if items[0].Source != "c.example" {
		t.Errorf("expected meta_url hostname source, got %q", items[0].Source)
	}
}

func TestFetchNewsSourceFallsBackToURLHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"news": {"results": [{"title": "t", "url": "https://d.example/x"}]}}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchNews(context.Background(), "ton", "key", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if items[0].Source != "d.example" {
		t.Errorf("expected URL hostname source, got %q", items[0].Source)
	}
}

func TestFetchNewsNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"news": {"results": []}, "web": {"results": []}}`))
	}))
	defer srv.Close()

	items, err := newTestClient(srv.URL).FetchNews(context.Background(), "obscurecoin", "key", 3)
	if items != nil {
		t.Fatalf("expected no items, got %+v", items)
	}
	if out, _ := OutcomeOf(err); out != OutcomeNoResults {
		t.Fatalf("expected no_results, got %v", out)
	}
}

func TestFetchNewsErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   Outcome
	}{
		{http.StatusUnauthorized, OutcomeUnauthorized},
		{http.StatusTooManyRequests, OutcomeRateLimited},
		{http.StatusForbidden, OutcomeForbidden},
		{http.StatusBadGateway, OutcomeHTTPError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := newTestClient(srv.URL).FetchNews(context.Background(), "bitcoin", "key", 3)
		srv.Close()
		if out, _ := OutcomeOf(err); out != tc.want {
			t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, out)
		}
	}
}

func TestFetchNewsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := newTestClient(srv.URL).FetchNews(context.Background(), "bitcoin", "key", 3)
	if out, _ := OutcomeOf(err); out != OutcomeConnectionError {
		t.Fatalf("expected connection_error, got %v", out)
	}
}

func TestFetchNewsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchNews(context.Background(), "bitcoin", "key", 3)
	if out, _ := OutcomeOf(err); out != OutcomeParseError {
		t.Fatalf("expected parse_error, got %v", out)
	}
}

func TestCoinKeywordsWholeWordSymbol(t *testing.T) {
	kws := coinKeywords("Optimism", "OP")
	if !matchesAny("Optimism rallies", kws) {
		t.Error("expected name match")
	}
	if !matchesAny("traders buy OP today", kws) {
		t.Error("expected whole-word symbol match")
	}
	if matchesAny("new options product", kws) {
		t.Error("symbol must not match inside another word")
	}
}
