// Package server exposes the chat service over HTTP.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"github.com/aixgo-dev/pixelctx/internal/chat"
	"github.com/aixgo-dev/pixelctx/pkg/config"
	"github.com/aixgo-dev/pixelctx/pkg/export"
	"github.com/aixgo-dev/pixelctx/pkg/observability"
)

// Options wires the server to its dependencies.
type Options struct {
	Config   config.ServerConfig
	Chat     *chat.Service
	Exporter *export.Exporter
	// APIKeySet feeds the api_key_set field of /api/health.
	APIKeySet func() bool
}

// Server is the pixelctx HTTP API.
type Server struct {
	cfg        config.ServerConfig
	chat       *chat.Service
	exporter   *export.Exporter
	apiKeySet  func() bool
	limiter    *RateLimiter
	handler    http.Handler
	httpServer *http.Server
	now        func() time.Time
}

// New builds the router and middleware chain.
func New(opts Options) (*Server, error) {
	if opts.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if opts.Exporter == nil {
		opts.Exporter = export.New(false)
	}
	if opts.APIKeySet == nil {
		opts.APIKeySet = func() bool { return false }
	}

	s := &Server{
		cfg:       opts.Config,
		chat:      opts.Chat,
		exporter:  opts.Exporter,
		apiKeySet: opts.APIKeySet,
		now:       time.Now,
	}
	if opts.Config.RateLimit > 0 {
		s.limiter = NewRateLimiter(opts.Config.RateLimit, opts.Config.RateBurst)
	}

	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	observability.RegisterRoutes(r)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/stats/{session_id}", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/stats/{session_id}/recompute", s.handleRecompute).Methods(http.MethodPost)
	api.HandleFunc("/session/{session_id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/export/json", s.handleExportJSON).Methods(http.MethodPost)
	api.HandleFunc("/export/pdf", s.handleExportPDF).Methods(http.MethodPost)
	api.HandleFunc("/export/html", s.handleExportHTML).Methods(http.MethodPost)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	var h http.Handler = r
	h = bodyLimitMiddleware(opts.Config.MaxBodyBytes)(h)
	h = rateLimitMiddleware(s.limiter)(h)
	h = gzhttp.GzipHandler(h)
	h = corsMiddleware(opts.Config.CORSOrigins)(h)
	h = requestIDMiddleware(h)
	s.handler = h
	s.httpServer = &http.Server{
		Addr:              opts.Config.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       opts.Config.ReadTimeout,
		WriteTimeout:      opts.Config.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and blocks until Shutdown. It
// returns nil after a graceful shutdown, even one that happened first.
func (s *Server) Start() error {
	log.Printf("[Server] listening on %s", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Printf("[Server] shutting down")
	return s.httpServer.Shutdown(ctx)
}
