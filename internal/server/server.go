// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/ignition/internal/auth"
	"github.com/pendergraft/ignition/internal/config"
	"github.com/pendergraft/ignition/internal/middleware/logging"
	"github.com/pendergraft/ignition/internal/middleware/ratelimit"
	"github.com/pendergraft/ignition/internal/observability/metrics"
	plansDomain "github.com/pendergraft/ignition/internal/plans/domain"
	plansTransport "github.com/pendergraft/ignition/internal/plans/transport"
	"github.com/pendergraft/ignition/internal/storage"
)

// envelopeOverhead is the slack allowed on top of the manifest size for the
// JSON request envelope.
const envelopeOverhead = 16 * 1024

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	plansSvc plansDomain.Service
	keys     *auth.StaticKeys
}

// New creates a new server
func New(cfg *config.Config, store storage.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	plansImpl := plansDomain.NewService(store, plansDomain.Options{
		DefaultNaming:    cfg.Build.NamingPolicy,
		MaxManifestBytes: cfg.Build.MaxManifestSizeKB * 1024,
		Logger:           logger,
	})
	s.plansSvc = plansDomain.LoggingMiddleware(logger)(plansImpl)

	if cfg.Auth.Enabled() {
		// Config.Validate has already parsed the entries
		keys, err := auth.ParseKeys(cfg.Auth.APIKeys)
		if err != nil {
			logger.Error("invalid API keys, write routes stay closed", "error", err)
			keys = &auth.StaticKeys{}
		}
		s.keys = keys
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) maxBodyBytes() int64 {
	return int64(s.cfg.Build.MaxManifestSizeKB)*1024 + envelopeOverhead
}

func (s *Server) setupMiddleware() {
	// RealIP first so logging and rate limiting see the client address
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		WriteCost:      s.cfg.RateLimit.WriteCost,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestSize(s.maxBodyBytes()))
	if s.cfg.Server.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
	}
	s.router.Use(middleware.Compress(5))

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-API-Key")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)
	s.router.Handle("/metrics", metrics.Handler())

	plansHandler := plansTransport.NewHandler(s.plansSvc, s.maxBodyBytes())

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/plans", func(r chi.Router) {
			plansHandler.RegisterReadRoutes(r)
			r.Group(func(r chi.Router) {
				if s.keys != nil {
					r.Use(auth.Middleware(s.keys, writeError))
				}
				plansHandler.RegisterWriteRoutes(r)
			})
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})
}

// Liveness only; it does not touch storage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
