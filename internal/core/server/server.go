// Package server provides the HTTP server hosting the contact relay API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/solatis/stagedoor/internal/core/api"
	"github.com/solatis/stagedoor/internal/core/config"
	"go.uber.org/zap"
)

// HTTPServer wraps the standard library server with lifecycle management.
type HTTPServer struct {
	cfg    *config.RelayConfig
	server *http.Server
	log    *zap.Logger
}

// NewHTTPServer creates a server exposing the relay endpoints.
func NewHTTPServer(cfg *config.RelayConfig, svc *api.RelayService, log *zap.Logger) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if svc == nil {
		return nil, fmt.Errorf("svc cannot be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle("/api/contact", NewContactHandler(cfg, svc, log))
	mux.HandleFunc("/healthz", handleHealth)

	return &HTTPServer{
		cfg: cfg,
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.RequestTimeout,
			WriteTimeout:      cfg.RequestTimeout,
		},
		log: log,
	}, nil
}

// Start begins serving requests. Blocks until the listener fails or the
// server is shut down; a clean shutdown returns nil.
func (s *HTTPServer) Start() error {
	s.log.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, letting in-flight requests finish.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
