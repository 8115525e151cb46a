// Package api provides the HTTP REST API server for coinscan.
//
// It exposes endpoints for running scans, reading the current gainers
// session, news enrichment, CSV export, key management, upstream status,
// and WebSocket event streaming.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/vvarelai/coinscan/internal/config"
	"github.com/vvarelai/coinscan/internal/export"
	"github.com/vvarelai/coinscan/pkg/models"
	"github.com/vvarelai/coinscan/pkg/utils"
	"github.com/vvarelai/coinscan/web"
)

// Pipeline is the scan session the server exposes. *scanner.Scanner
// implements it.
type Pipeline interface {
	Scan(ctx context.Context) (*models.ScanResult, error)
	Result() (*models.ScanResult, bool)
	ChartPoints() []models.ChartPoint
	NewsFor(ctx context.Context, coin models.RankedCoin) models.NewsResult
	NewsForAll(ctx context.Context) (map[string]models.NewsResult, error)
	MarketHeadlines(ctx context.Context, limit int) ([]models.NewsItem, error)
	CachedNews() map[string]models.NewsResult
	RankedByName(name string) (models.RankedCoin, bool)
	UpdateKeys(coingeckoKey, braveKey string)
	KeyStatus() []config.KeyStatus
}

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	cfg        *config.Config
	pipeline   Pipeline
	wsHub      *WSHub
	log        *zap.Logger
	version    string
	serveUI    bool // when true, serve the embedded web UI at /
	statusURLs map[string]string
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, pipeline Pipeline, version string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	srv := &Server{
		cfg:        cfg,
		pipeline:   pipeline,
		wsHub:      NewWSHub(),
		log:        log,
		version:    version,
		serveUI:    true,
		statusURLs: DefaultStatusURLs,
	}
	srv.router = srv.buildRouter()
	return srv
}

// SetServeUI controls whether the embedded web UI is served.
// Must be called before ListenAndServe.
func (s *Server) SetServeUI(enabled bool) {
	s.serveUI = enabled
	s.router = s.buildRouter()
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start WebSocket hub
	go s.wsHub.Run()

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-done
	s.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Scan pipeline
		r.Post("/scan", s.handleScan)
		r.Get("/gainers", s.handleGainers)
		r.Get("/chart", s.handleChart)

		// News enrichment
		r.Post("/news", s.handleNewsAll)
		r.Get("/news", s.handleNewsCached)
		r.Get("/news/headlines", s.handleMarketHeadlines)
		r.Get("/news/{name}", s.handleNewsForCoin)

		// Export
		r.Get("/export.csv", s.handleExportCSV)

		// Configuration
		r.Get("/config/keys", s.handleGetConfigKeys)
		r.Post("/config/keys", s.handleUpdateKeys)

		// Upstream status
		r.Get("/status", s.handleStatus)

		// WebSocket
		r.Get("/ws", s.handleWebSocket)
	})

	// Serve embedded web UI (SPA with fallback to index.html)
	if s.serveUI {
		s.mountSPA(r, web.DistFS())
	}

	return r
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ScanResponse is the payload of POST /api/v1/scan and GET /api/v1/gainers.
type ScanResponse struct {
	Result  *models.ScanResult `json:"result"`
	Partial bool               `json:"partial,omitempty"`
	Warning string             `json:"warning,omitempty"`
	AsOf    string             `json:"as_of"`
}

// UpdateKeysRequest is the body for POST /api/v1/config/keys.
type UpdateKeysRequest struct {
	CoinGeckoKey string `json:"coingecko_key,omitempty"`
	BraveKey     string `json:"brave_key,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":   "ok",
			"version":  s.version,
			"time_utc": utils.FormatTimestampUTC(utils.NowUTC()),
		},
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	result, err := s.pipeline.Scan(ctx)
	if result == nil {
		status := http.StatusBadGateway
		msg := "scan failed"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, status, msg)
		return
	}

	resp := ScanResponse{
		Result: result,
		AsOf:   utils.FormatTimestampUTC(result.FetchedAt),
	}
	if err != nil {
		resp.Partial = true
		resp.Warning = err.Error()
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "scan_complete",
		Data: map[string]interface{}{
			"ranked":  len(result.Ranked),
			"partial": resp.Partial,
			"as_of":   resp.AsOf,
		},
	})

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: resp})
}

func (s *Server) handleGainers(w http.ResponseWriter, r *http.Request) {
	result, ok := s.pipeline.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "no scan session; POST /api/v1/scan first")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: ScanResponse{
			Result: result,
			AsOf:   utils.FormatTimestampUTC(result.FetchedAt),
		},
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.pipeline.Result(); !ok {
		writeError(w, http.StatusNotFound, "no scan session; POST /api/v1/scan first")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.pipeline.ChartPoints(),
	})
}

func (s *Server) handleNewsAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.pipeline.NewsForAll(r.Context())
	if err != nil {
		if len(all) == 0 {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		// Partial enrichment: return what we have.
		s.log.Warn("news enrichment interrupted", zap.Error(err))
	}

	s.wsHub.Broadcast(WSMessage{
		Type: "news_complete",
		Data: map[string]interface{}{"coins": len(all)},
	})

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: all})
}

func (s *Server) handleNewsCached(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.pipeline.CachedNews(),
	})
}

func (s *Server) handleMarketHeadlines(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.pipeline.MarketHeadlines(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: items})
}

func (s *Server) handleNewsForCoin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "coin name is required")
		return
	}

	coin, ok := s.pipeline.RankedByName(name)
	if !ok {
		writeError(w, http.StatusNotFound, "coin is not in the current ranking")
		return
	}

	result := s.pipeline.NewsFor(r.Context(), coin)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result})
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	result, ok := s.pipeline.Result()
	if !ok {
		writeError(w, http.StatusNotFound, "no scan session; POST /api/v1/scan first")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(result)+`"`)
	if err := export.WriteCSV(w, result.Rows); err != nil {
		s.log.Error("csv export failed", zap.Error(err))
	}
}

func (s *Server) handleGetConfigKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.pipeline.KeyStatus(),
	})
}

func (s *Server) handleUpdateKeys(w http.ResponseWriter, r *http.Request) {
	var req UpdateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.CoinGeckoKey = strings.TrimSpace(req.CoinGeckoKey)
	req.BraveKey = strings.TrimSpace(req.BraveKey)
	if req.CoinGeckoKey == "" && req.BraveKey == "" {
		writeError(w, http.StatusBadRequest, "at least one key is required")
		return
	}

	s.pipeline.UpdateKeys(req.CoinGeckoKey, req.BraveKey)
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    s.pipeline.KeyStatus(),
	})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
