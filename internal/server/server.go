// Package server provides the HTTP server and API routing.
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

	"github.com/niq79/trading-bot-sub001/internal/config"
	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/events"
	"github.com/niq79/trading-bot-sub001/internal/modules/strategy"
	strategyhandlers "github.com/niq79/trading-bot-sub001/internal/modules/strategy/handlers"
	"github.com/niq79/trading-bot-sub001/internal/modules/tenants"
	tenanthandlers "github.com/niq79/trading-bot-sub001/internal/modules/tenants/handlers"
	"github.com/niq79/trading-bot-sub001/internal/orchestrator"
	"github.com/niq79/trading-bot-sub001/internal/reliability"
	"github.com/niq79/trading-bot-sub001/internal/runs"
)

// Config holds server dependencies
type Config struct {
	Log           zerolog.Logger
	Cfg           *config.Config
	ConfigDB      *database.DB
	RunsDB        *database.DB
	CacheDB       *database.DB
	TenantRepo    *tenants.Repository
	StrategyRepo  *strategy.Repository
	RunRepo       *runs.Repository
	Orchestrator  *orchestrator.Orchestrator
	Bus           *events.Bus
	BackupService *reliability.BackupService // nil when backups are disabled
}

// Server is the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger

	cfg            *config.Config
	systemHandlers *SystemHandlers
	runHandlers    *RunHandlers
	streamHandler  *StreamHandler

	tenantHandlers   *tenanthandlers.Handler
	strategyHandlers *strategyhandlers.Handler
}

// New creates the HTTP server and wires all routes
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	strategyHandlers := strategyhandlers.NewHandler(cfg.StrategyRepo, cfg.Log)

	s := &Server{
		router: chi.NewRouter(),
		log:    log,
		cfg:    cfg.Cfg,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			[]*database.DB{cfg.ConfigDB, cfg.RunsDB, cfg.CacheDB},
			cfg.BackupService,
		),
		runHandlers:      NewRunHandlers(cfg.Orchestrator, cfg.RunRepo, cfg.Log),
		streamHandler:    NewStreamHandler(cfg.Bus, cfg.Log),
		tenantHandlers:   tenanthandlers.NewHandler(cfg.TenantRepo, strategyHandlers, cfg.Log),
		strategyHandlers: strategyHandlers,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router exposes the chi router, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupMiddleware configures the middleware shared by every route.
// The request timeout and compression are added per route group in
// setupRoutes, because the run progress stream must not have either.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived websocket stream, outside the timeout group
		r.Get("/runs/stream", s.streamHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Use(middleware.Compress(5))

			r.Get("/health", s.handleHealth)

			s.tenantHandlers.RegisterRoutes(r)
			s.strategyHandlers.RegisterRoutes(r)
			s.runHandlers.RegisterRoutes(r)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Post("/backup", s.systemHandlers.HandleBackup)
			})
		})
	})
}

// Start starts the HTTP server. Blocks until shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "rebalancer",
	})
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

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
