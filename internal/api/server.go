// Package api serves the JSON HTTP surface of the money tracker.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Server wraps http.Server with the timeouts and limits the API runs
// with in production.
type Server struct {
	http.Server
}

// NewServer returns a ready-to-run server for the given router.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		Server: http.Server{
			Addr:           addr,
			Handler:        handler,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16, // 64KB
		},
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.InfoContext(ctx, "Shutting down HTTP server")
	return s.Server.Shutdown(ctx)
}
