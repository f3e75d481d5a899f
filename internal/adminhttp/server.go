// Package adminhttp exposes a thin, read-only JSON surface over the same
// Channel/Client Registries the signaling layer uses. It never bypasses the
// registries' own locking, and never performs a write the signaling layer
// doesn't already gate behind the admin flag — full admin CRUD is out of
// scope (spec.md §6), this package only demonstrates the read contract.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/concord-chat/intercom-router/internal/channel"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/observability"
)

// Server is the read-only admin HTTP surface.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	channels   *channel.Registry
	clients    *client.Registry
	console    *Console
	health     *observability.HealthChecker
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// New builds the admin HTTP router: health/readiness/metrics, the
// read-only channel/client/pending snapshots, and (when console is
// non-nil) the local password-login console endpoints.
func New(channels *channel.Registry, clients *client.Registry, console *Console, health *observability.HealthChecker, metrics *observability.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		channels: channels,
		clients:  clients,
		console:  console,
		health:   health,
		metrics:  metrics,
		logger:   logger.With().Str("component", "adminhttp").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))

	r.Get("/health", s.handleHealth)
	r.Get("/health/ready", s.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin/v1", func(ar chi.Router) {
		ar.Get("/channels", s.handleListChannels)
		ar.Get("/clients", s.handleListClients)
		ar.Get("/pending", s.handleListPending)
		if console != nil {
			ar.Post("/login", s.handleLogin)
		}
	})

	s.router = r
	return s
}

// Start begins listening for HTTP connections. Blocks until shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	s.logger.Info().Str("addr", addr).Msg("starting admin HTTP server")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the chi router directly, for tests.
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

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.channels.List())
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clients.List())
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.clients.PendingList())
}
