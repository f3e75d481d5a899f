// Package server wires the signaling WebSocket endpoint and the ambient
// HTTP surface (health, readiness, metrics) into one process, and owns the
// graceful shutdown sequencing adapted from the teacher's cmd/server/main.go.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/concord-chat/intercom-router/internal/observability"
	"github.com/concord-chat/intercom-router/internal/signaling"
)

// Config controls the signaling HTTP listener.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Server owns the signaling WebSocket endpoint plus the root-level
// health/readiness/metrics routes, mirroring the teacher's split of a
// WebSocket route mounted outside the API middleware stack from a
// fully-middlewared API router (internal/api.New).
type Server struct {
	cfg        Config
	router     chi.Router
	httpServer *http.Server
	health     *observability.HealthChecker
	logger     zerolog.Logger
}

// New builds the root signaling HTTP server.
func New(cfg Config, hub *signaling.Hub, health *observability.HealthChecker, logger zerolog.Logger) *Server {
	s := &Server{cfg: cfg, health: health, logger: logger.With().Str("component", "server").Logger()}

	r := chi.NewRouter()

	// WebSocket signaling is mounted on the root router so it bypasses
	// the timeout/recoverer stack below, same as the teacher's /ws/signaling.
	r.Get("/ws", hub.Handler())
	r.Get("/ws/", hub.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(chimw.RequestID)
	apiRouter.Use(chimw.RealIP)
	apiRouter.Use(chimw.Recoverer)
	apiRouter.Use(chimw.Timeout(10 * time.Second))
	apiRouter.Get("/health", s.handleHealth)
	apiRouter.Get("/health/live", s.handleLiveness)
	apiRouter.Get("/health/ready", s.handleReadiness)
	apiRouter.Handle("/metrics", promhttp.Handler())

	r.Mount("/", apiRouter)
	s.router = r
	return s
}

// Start begins listening for HTTP/WebSocket connections. Blocks until the
// server is shut down, returning nil in that case (mirroring the teacher's
// api.Server.Start's http.ErrServerClosed handling at the caller).
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.logger.Info().Str("addr", addr).Msg("starting signaling server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes open WebSocket connections
// within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info().Msg("shutting down signaling server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	result := s.health.Check(r.Context())
	status := http.StatusOK
	if result.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	result := s.health.Check(r.Context())
	status := http.StatusOK
	if result.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"status": string(result.Status)})
}
