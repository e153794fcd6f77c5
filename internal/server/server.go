// Package server exposes the agent over HTTP: a small JSON API for chat and
// job inspection, and a WebSocket channel for live events. All interactive
// turns funnel through the executor's main lane, so two clients can never
// interleave turns against the shared conversation.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wayfarerhq/wayfarer/internal/agent"
	"github.com/wayfarerhq/wayfarer/internal/agent/ai"
	"github.com/wayfarerhq/wayfarer/internal/config"
	"github.com/wayfarerhq/wayfarer/internal/executor"
	"github.com/wayfarerhq/wayfarer/internal/logging"
	"github.com/wayfarerhq/wayfarer/internal/realtime"
	"github.com/wayfarerhq/wayfarer/internal/scheduler"
	"github.com/wayfarerhq/wayfarer/internal/session"
)

// Server wires the HTTP surface to the agent runtime.
type Server struct {
	cfg      *config.Config
	sessions *session.Store
	runner   *agent.Runner
	exec     *executor.Executor
	hub      *realtime.Hub
	jobs     *scheduler.Store
	engine   *scheduler.Engine
	catalog  *ai.ModelCatalog
}

// New creates a server and installs the WebSocket message handlers.
func New(cfg *config.Config, sessions *session.Store, runner *agent.Runner, exec *executor.Executor, hub *realtime.Hub, jobs *scheduler.Store, engine *scheduler.Engine, catalog *ai.ModelCatalog) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		runner:   runner,
		exec:     exec,
		hub:      hub,
		jobs:     jobs,
		engine:   engine,
		catalog:  catalog,
	}
	hub.SetChatHandler(s.handleWSChat)
	hub.SetResetHandler(s.handleWSReset)
	return s
}

// Routes builds the router. Split out from Run so tests can drive it with
// httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(corsMiddleware())

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/reset", s.handleReset)
		r.Get("/history", s.handleHistory)
		r.Get("/config", s.handleConfig)
		r.Get("/models", s.handleModels)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Delete("/jobs/{id}", s.handleDeleteJob)
		r.Post("/jobs/{id}/pause", s.handlePauseJob)
		r.Post("/jobs/{id}/resume", s.handleResumeJob)
		r.Get("/jobs/{id}/history", s.handleJobHistory)
	})

	r.Get("/ws", s.handleWS)

	return r
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if err := checkPortAvailable(s.cfg.Host, s.cfg.Port); err != nil {
		return fmt.Errorf("port %d is already in use: %w", s.cfg.Port, err)
	}

	go s.hub.Run(ctx)

	// No Read/WriteTimeout: those set deadlines on the underlying conn and
	// break hijacked WebSocket connections. Keepalive is ping/pong driven.
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:     s.Routes(),
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("server: listening on http://%s:%d", s.cfg.Host, s.cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// corsMiddleware allows localhost origins only. Wayfarer is a local app;
// non-localhost origins get no CORS headers and the browser blocks them.
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || isLocalhostOrigin(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isLocalhostOrigin(origin string) bool {
	for _, prefix := range []string{
		"http://localhost", "https://localhost",
		"http://127.0.0.1", "https://127.0.0.1",
	} {
		if origin == prefix || strings.HasPrefix(origin, prefix+":") {
			return true
		}
	}
	return false
}

// checkPortAvailable verifies the port can be bound before startup
func checkPortAvailable(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
