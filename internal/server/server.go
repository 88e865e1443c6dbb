// Package server provides the HTTP surface exposing editor tools to local
// AI-assistant clients.
//
// The server never opens its own socket. The lifecycle manager owns the
// listener (bound to loopback only) and hands it to Serve; everything here
// is stateless request/response glue around the tool registry and the event
// bus.
package server

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bridgeport-dev/bridgeport/internal/event"
	"github.com/bridgeport-dev/bridgeport/internal/tool"
	"github.com/bridgeport-dev/bridgeport/pkg/types"
)

// SessionFunc reports the current lifecycle state for the /status endpoint.
type SessionFunc func() types.ServerSession

// Config holds server configuration.
type Config struct {
	Directory    string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	bus     *event.Bus
	toolReg *tool.Registry
	session SessionFunc
}

// New creates a new Server instance.
func New(cfg *Config, toolReg *tool.Registry, bus *event.Bus, session SessionFunc) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if session == nil {
		session = func() types.ServerSession { return types.ServerSession{} }
	}

	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		bus:     bus,
		toolReg: toolReg,
		session: session,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Get("/tools", s.listTools)
	r.Post("/rpc", s.handleRPC)
	r.Get("/event", s.streamEvents)
}

// Serve runs the HTTP server on a listener owned by the caller. It blocks
// until the listener closes or the server fails.
func (s *Server) Serve(ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	err := s.httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Router returns the chi router, used by tests with httptest.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session())
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.toolReg.Names()})
}
