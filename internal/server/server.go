// Package server provides the HTTP API for the engine.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/planbmotoru/engine/internal/modules/holding"
	"github.com/planbmotoru/engine/internal/modules/ledger"
	"github.com/planbmotoru/engine/internal/modules/optimization"
	"github.com/planbmotoru/engine/internal/modules/risk"
	"github.com/planbmotoru/engine/internal/modules/signals"
	"github.com/planbmotoru/engine/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Port    int
	DevMode bool

	Aggregator *signals.Aggregator
	Advisor    *holding.Advisor
	Book       *ledger.Ledger
	Analyzer   *risk.Analyzer
	Optimizer  *optimization.Optimizer
	RiskJob    *scheduler.RiskSnapshotJob

	// OnPrice is invoked with the observed simple return whenever a held
	// position's price changes. Optional.
	OnPrice func(symbol string, ret float64)
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	aggregator *signals.Aggregator
	advisor    *holding.Advisor
	book       *ledger.Ledger
	analyzer   *risk.Analyzer
	optimizer  *optimization.Optimizer
	riskJob    *scheduler.RiskSnapshotJob
	onPrice    func(symbol string, ret float64)

	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		log:            cfg.Log.With().Str("component", "server").Logger(),
		aggregator:     cfg.Aggregator,
		advisor:        cfg.Advisor,
		book:           cfg.Book,
		analyzer:       cfg.Analyzer,
		optimizer:      cfg.Optimizer,
		riskJob:        cfg.RiskJob,
		onPrice:        cfg.OnPrice,
		systemHandlers: NewSystemHandlers(cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.systemHandlers.HandleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/signals/evaluate", s.handleEvaluate)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", s.handleGetPortfolio)
			r.Get("/trades", s.handleListTrades)
			r.Post("/trades", s.handleApplyTrade)
			r.Post("/prices", s.handleUpdatePrices)
		})

		r.Route("/risk", func(r chi.Router) {
			r.Post("/analyze", s.handleAnalyzeRisk)
			r.Get("/latest", s.handleLatestRisk)
		})

		r.Post("/optimization/optimize", s.handleOptimize)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
