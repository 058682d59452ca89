// Package server exposes the execution engine over HTTP: the websocket
// streaming gateway plus a small REST surface for history, live
// sessions, health, and metrics.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/palcode-dev/palrun/internal/config"
	"github.com/palcode-dev/palrun/internal/engine"
	"github.com/palcode-dev/palrun/internal/observability"
	"github.com/palcode-dev/palrun/internal/storage"
)

// Server is the HTTP server fronting the execution engine.
type Server struct {
	cfg     *config.Config
	orch    *engine.Orchestrator
	store   storage.Store
	metrics *observability.Metrics
	router  chi.Router
	http    *http.Server
}

// New creates a new Server.
func New(cfg *config.Config, orch *engine.Orchestrator, store storage.Store, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		orch:    orch,
		store:   store,
		metrics: metrics,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// The streaming gateway (no JSON content-type, no request logging —
	// connections are long-lived)
	r.Get("/ws", s.handleWebSocket)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(jsonContentType)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/tasks/{taskID}/runs", s.handleListRuns)
		r.Post("/tasks/{taskID}/kill", s.handleKillTask)
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the server's root handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("palrun gateway listening on %s", addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections, then kills all live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("shutting down gateway...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := s.http.Shutdown(shutdownCtx)

	if killErr := s.orch.Shutdown(shutdownCtx); killErr != nil {
		log.Printf("session teardown incomplete: %v", killErr)
	}
	return err
}
