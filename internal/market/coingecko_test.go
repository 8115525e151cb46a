package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func testClient(baseURL string) *Client {
	c := NewClient(2, 100, nil)
	c.baseURL = baseURL
	return c
}

func marketsHandler(t *testing.T, pages map[string][]map[string]any) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/markets" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("vs_currency"); got != "usd" {
			t.Errorf("vs_currency = %q, want usd", got)
		}
		if got := r.URL.Query().Get("price_change_percentage"); got != "24h" {
			t.Errorf("price_change_percentage = %q, want 24h", got)
		}
		if r.Header.Get("x-cg-demo-api-key") == "" {
			t.Error("API key header missing")
		}
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pages[page])
	}
}

func TestFetchTopSnapshotsTwoPages(t *testing.T) {
	srv := httptest.NewServer(marketsHandler(t, map[string][]map[string]any{
		"1": {
			{"id": "bitcoin", "symbol": "btc", "name": "Bitcoin", "current_price": 67890.12,
				"price_change_percentage_24h_in_currency": 2.5, "total_volume": 3.2e10},
		},
		"2": {
			{"id": "pepe", "symbol": "pepe", "name": "Pepe", "current_price": 0.0000012,
				"price_change_percentage_24h_in_currency": 41.0, "total_volume": 9.9e8},
		},
	}))
	defer srv.Close()

	snaps, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "demo-key")
	if err != nil {
		t.Fatalf("FetchTopSnapshots: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	// Page order is preserved.
	if snaps[0].ID != "bitcoin" || snaps[1].ID != "pepe" {
		t.Errorf("unexpected order: %s, %s", snaps[0].ID, snaps[1].ID)
	}
	if snaps[0].PriceChangePct24h == nil || *snaps[0].PriceChangePct24h != 2.5 {
		t.Error("percentage change not parsed")
	}
}

func TestFetchTopSnapshotsNullFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"x","symbol":"x","name":"X","current_price":1.0,
			"price_change_percentage_24h_in_currency":null,"total_volume":null}]`)
	}))
	defer srv.Close()

	snaps, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	if err != nil {
		t.Fatalf("FetchTopSnapshots: %v", err)
	}
	if snaps[0].PriceChangePct24h != nil {
		t.Error("expected nil percentage change for null field")
	}
	if snaps[0].Volume24h != nil {
		t.Error("expected nil volume for null field")
	}
}

func TestFetchTopSnapshotsMissingKey(t *testing.T) {
	_, err := testClient("http://unused").FetchTopSnapshots(context.Background(), "")
	kind, ok := Kind(err)
	if !ok || kind != KindMissingCredential {
		t.Fatalf("expected KindMissingCredential, got %v", err)
	}
}

func TestFetchTopSnapshotsUnauthorizedDiscardsPartial(t *testing.T) {
	// Page 1 succeeds, page 2 returns 401: the whole batch must be discarded.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `[{"id":"a","symbol":"a","name":"A","current_price":1}]`)
	}))
	defer srv.Close()

	snaps, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindUnauthorized {
		t.Fatalf("expected KindUnauthorized, got %v", err)
	}
	if snaps != nil {
		t.Errorf("expected no data with unauthorized, got %d snapshots", len(snaps))
	}
}

func TestFetchTopSnapshotsRateLimitedKeepsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[{"id":"a","symbol":"a","name":"A","current_price":1}]`)
	}))
	defer srv.Close()

	snaps, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("expected 1 partial snapshot, got %d", len(snaps))
	}
}

func TestFetchTopSnapshotsRateLimitedFirstPageFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	snaps, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindRateLimited {
		t.Fatalf("expected KindRateLimited, got %v", err)
	}
	if len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %d", len(snaps))
	}
}

func TestFetchTopSnapshotsServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oops", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindTransient {
		t.Fatalf("expected KindTransient, got %v", err)
	}
}

func TestFetchTopSnapshotsMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"this is": "not an array`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindMalformed {
		t.Fatalf("expected KindMalformed, got %v", err)
	}
}

func TestFetchTopSnapshotsEmptyPagesIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindNoData {
		t.Fatalf("expected KindNoData, got %v", err)
	}
}

func TestFetchTopSnapshotsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed on purpose

	_, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k")
	kind, ok := Kind(err)
	if !ok || kind != KindTransient {
		t.Fatalf("expected KindTransient for connection error, got %v", err)
	}
}

func TestFetchErrorMessage(t *testing.T) {
	fe := &FetchError{Kind: KindRateLimited, Page: 2, Err: errors.New("429")}
	want := "market fetch (rate_limited, page 2): 429"
	if fe.Error() != want {
		t.Errorf("Error() = %q, want %q", fe.Error(), want)
	}
}

func TestClientPagination(t *testing.T) {
	var pagesSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pagesSeen = append(pagesSeen, r.URL.Query().Get("page"))
		if got := r.URL.Query().Get("per_page"); got != "100" {
			t.Errorf("per_page = %q, want 100", got)
		}
		fmt.Fprint(w, `[{"id":"a","symbol":"a","name":"A","current_price":1}]`)
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).FetchTopSnapshots(context.Background(), "k"); err != nil {
		t.Fatalf("FetchTopSnapshots: %v", err)
	}
	if len(pagesSeen) != 2 {
		t.Fatalf("expected 2 page requests, got %d", len(pagesSeen))
	}
	for i, p := range pagesSeen {
		if p != strconv.Itoa(i+1) {
			t.Errorf("request %d hit page %s", i, p)
		}
	}
}
