package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kjannette/stocksync/internal/analytics"
	"github.com/kjannette/stocksync/internal/interfaces"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

const maxQueryLimit = 5000

var dateRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type Pinger interface {
	Ping(ctx context.Context) error
}

type InstrumentLister interface {
	Instruments(ctx context.Context) ([]models.Instrument, error)
}

// SyncRunner is the batch runner as seen by the API.
type SyncRunner interface {
	Run(ctx context.Context) (*models.SyncReport, error)
	Running() bool
	Last() *models.SyncReport
}

// TriggerFunc starts one sync run on request.
type TriggerFunc func(ctx context.Context) (*models.SyncReport, error)

type Deps struct {
	DB          Pinger
	Instruments InstrumentLister
	Series      interfaces.SeriesReader
	Sync        SyncRunner
	// Trigger runs POST /v1/sync; defaults to Sync.Run.
	Trigger TriggerFunc
	Metrics http.Handler
	Logger  *zap.Logger
}

type Options struct {
	Port       int
	APIKey     string
	CORSOrigin string
	Defaults   analytics.Params
}

type Server struct {
	db          Pinger
	instruments InstrumentLister
	series      interfaces.SeriesReader
	analytics   *analytics.Service
	sync        SyncRunner
	trigger     TriggerFunc
	metrics     http.Handler
	defaults    analytics.Params
	logger      *zap.Logger
	httpServer  *http.Server
	apiKey      string

	// ctx lives until Shutdown and bounds background sync runs.
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight sync.WaitGroup
}

func NewServer(deps Deps, opts Options) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		db:          deps.DB,
		instruments: deps.Instruments,
		series:      deps.Series,
		analytics:   analytics.NewService(deps.Series, logger),
		sync:        deps.Sync,
		trigger:     deps.Trigger,
		metrics:     deps.Metrics,
		defaults:    opts.Defaults,
		logger:      logger.Named("api"),
		apiKey:      opts.APIKey,
	}
	if s.trigger == nil && s.sync != nil {
		s.trigger = s.sync.Run
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	mux := http.NewServeMux()

	// Registry and prices
	mux.HandleFunc("GET /v1/instruments", s.handleInstruments)
	mux.HandleFunc("GET /v1/prices/{symbol}", s.handlePrices)
	mux.HandleFunc("GET /v1/prices/{symbol}/latest", s.handleLatestPrice)

	// Analytics
	mux.HandleFunc("GET /v1/analytics/{symbol}", s.handleAnalytics)
	mux.HandleFunc("GET /v1/analytics/{symbol}/export", s.handleAnalyticsExport)
	mux.HandleFunc("GET /v1/analytics/{symbol}/chart", s.handleAnalyticsChart)
	mux.HandleFunc("GET /v1/correlation", s.handleCorrelation)
	mux.HandleFunc("GET /v1/correlation/chart", s.handleCorrelationChart)
	mux.HandleFunc("GET /v1/compare", s.handleCompare)

	// Sync
	mux.HandleFunc("POST /v1/sync", s.handleSyncTrigger)
	mux.HandleFunc("GET /v1/sync/last", s.handleSyncLast)

	// Health check and metrics (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	handler := s.authMiddleware(corsMiddleware(mux, opts.CORSOrigin))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// Handler exposes the full middleware chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("REST API server started",
		zap.String("addr", "http://localhost"+s.httpServer.Addr),
		zap.Bool("auth", s.apiKey != ""))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests, cancels any triggered sync run and waits
// for it to return or for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// --- middleware ---

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || token != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowOrigin string) http.Handler {
	if allowOrigin == "" {
		allowOrigin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- validation helpers ---

func validateDate(date string) bool {
	if !dateRegexp.MatchString(date) {
		return false
	}
	_, err := time.Parse(models.DayLayout, date)
	return err == nil
}

// parseRange reads optional from/to query parameters.
func parseRange(r *http.Request) (from, to time.Time, err error) {
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"from", &from}, {"to", &to}} {
		v := r.URL.Query().Get(p.key)
		if v == "" {
			continue
		}
		if !validateDate(v) {
			return from, to, fmt.Errorf("invalid %s date, expected YYYY-MM-DD", p.key)
		}
		*p.dst, _ = models.ParseDay(v)
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("to is before from")
	}
	return from, to, nil
}

func parseLimit(r *http.Request, defaultLimit int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultLimit
	}
	if n > maxQueryLimit {
		return maxQueryLimit
	}
	return n
}

func parsePositiveInt(r *http.Request, key string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parsePositiveFloat(r *http.Request, key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

// parseSymbols splits a comma-separated symbols parameter.
func parseSymbols(r *http.Request) []string {
	var out []string
	for _, s := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// nullable maps a missing analytics value to JSON null.
func nullable(v float64) *float64 {
	if analytics.IsMissing(v) {
		return nil
	}
	return &v
}
