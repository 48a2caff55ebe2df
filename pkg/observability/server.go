package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// RegisterRoutes mounts the health probes and /metrics on r.
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", defaultChecker.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health/live", LivenessHandler()).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", defaultChecker.ReadinessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", MetricsHandler()).Methods(http.MethodGet)
}

// Server serves the observability endpoints on a dedicated port
type Server struct {
	httpServer *http.Server
	port       int
}

// NewServer creates a new observability server
func NewServer(port int) *Server {
	return &Server{
		port: port,
	}
}

// Start starts the observability server and blocks until it stops
func (s *Server) Start() error {
	r := mux.NewRouter()
	RegisterRoutes(r)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
