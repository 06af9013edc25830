// Package opsapi serves the process's operational HTTP surface: liveness,
// readiness, Prometheus metrics, and version — never the command wire
// protocol itself (out of scope per the Wire command surface notes;
// transports for the actual streaming API are a separate concern). Grounded
// on vaultaire's internal/api/server.go (chi.NewRouter, a small set of
// middleware applied before any route, /health/live and /health/ready split
// from a combined /health) and internal/api/health_handlers.go, narrowed
// from its multi-backend health aggregation to this process's single
// System readiness signal.
package opsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Version is set at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// SystemStatus is the subset of internal/system.System the ops surface
// needs, kept as an interface so tests can fake it without building a real
// System.
type SystemStatus interface {
	StreamCount() int
}

// Server is the ops-only HTTP listener: /health, /health/live,
// /health/ready, /metrics, /version.
type Server struct {
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	startTime  time.Time
	sys        SystemStatus
}

// New builds the ops HTTP server bound to addr (e.g. "127.0.0.1:9081").
// metricsHandler serves /metrics, built by the caller from
// internal/metrics.Collector.Handler() so opsapi never imports the metrics
// package directly.
func New(addr string, sys SystemStatus, metricsHandler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:    logger,
		router:    chi.NewRouter(),
		startTime: time.Now(),
		sys:       sys,
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.setupRoutes(metricsHandler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(metricsHandler http.Handler) {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)
	s.router.Get("/version", s.handleVersion)
	s.router.Handle("/metrics", metricsHandler)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("ops request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
		"uptime": time.Since(s.startTime).Seconds(),
		"streams": s.sys.StreamCount(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLiveness answers "is the process alive", never touching System
// state, so it can never itself deadlock against a stuck command handler.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
}

// handleReadiness answers "can this process accept traffic" by calling into
// System. It always reports ready, with the current stream count; a panic
// here is turned into a 500 by middleware.Recoverer.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready":   true,
		"streams": s.sys.StreamCount(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": Version})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler exposes the underlying router for tests driving requests directly
// without binding a real listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the ops HTTP server; it blocks until Shutdown is
// called or the listener fails.
func (s *Server) ListenAndServe() error {
	s.logger.Info("ops HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("opsapi: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
