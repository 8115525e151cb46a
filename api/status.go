package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vvarelai/coinscan/internal/config"
	"github.com/vvarelai/coinscan/internal/infra"
)

// DefaultStatusURLs lists the upstream endpoints probed by the status
// handler and the status CLI command. The Brave endpoint rejects keyless
// requests with 401, which still proves reachability.
var DefaultStatusURLs = map[string]string{
	"coingecko": "https://api.coingecko.com/api/v3/ping",
	"binance":   "https://api.binance.com/api/v3/ping",
	"brave":     "https://api.search.brave.com/res/v1/web/search",
}

// UpstreamStatus is one upstream's reachability result.
type UpstreamStatus struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	Upstreams []UpstreamStatus   `json:"upstreams"`
	Keys      []config.KeyStatus `json:"keys"`
}

// handleStatus pings every upstream concurrently and reports reachability
// together with API key status. A failing upstream never fails the request.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: StatusResponse{
			Upstreams: CheckUpstreams(ctx, s.statusURLs),
			Keys:      s.pipeline.KeyStatus(),
		},
	})
}

// CheckUpstreams pings every upstream concurrently, returning the results
// sorted by name. The CLI status command shares it with the status handler.
func CheckUpstreams(ctx context.Context, urls map[string]string) []UpstreamStatus {
	results := make(chan UpstreamStatus, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for name, url := range urls {
		g.Go(func() error {
			results <- pingUpstream(gctx, name, url)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	close(results)

	statuses := make([]UpstreamStatus, 0, len(urls))
	for st := range results {
		statuses = append(statuses, st)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

func pingUpstream(ctx context.Context, name, url string) UpstreamStatus {
	start := time.Now()
	body, _, err := infra.DoGet(ctx, url, nil)
	st := UpstreamStatus{
		Name:      name,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		// An HTTP error status still means the upstream answered; only
		// transport failures count as unreachable.
		var httpErr *infra.ErrHTTP
		if errors.As(err, &httpErr) {
			st.Reachable = true
			return st
		}
		st.Error = err.Error()
		return st
	}
	body.Close()
	st.Reachable = true
	return st
}
