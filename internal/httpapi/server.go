// Package httpapi exposes a running Core over HTTP, the way the teacher's
// internal/server package exposes a session.Service: a chi router with the
// standard RequestID/Logger/Recoverer/CORS middleware stack, one handler
// per operation.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/uep-dev/uepd/internal/core"
)

// Config holds HTTP server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
}

// Server is the HTTP front door onto a Core.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	core    *core.Core
}

// New creates a Server fronting c.
func New(cfg *Config, c *core.Core) *Server {
	r := chi.NewRouter()
	s := &Server{config: cfg, router: r, core: c}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/submit", s.handleSubmit)
	s.router.Get("/state", s.handleState)
	s.router.Get("/sessions", s.handleSessions)
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Start begins serving; it blocks until Shutdown stops the listener.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	n := s.core.Submit(req.Text)
	writeJSON(w, http.StatusAccepted, map[string]any{"segments": n})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current": s.core.Queue().Current(),
		"pending": s.core.Queue().Pending(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	gsID := s.core.Sessions().ActiveGeneralSession()
	writeJSON(w, http.StatusOK, map[string]any{
		"generalSession": gsID,
	})
}
