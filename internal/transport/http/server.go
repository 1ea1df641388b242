// Package http provides the read-only admin API for LeaseQ.
//
// Routes (method-qualified patterns):
//
//	GET /health
//	GET /queues
//	GET /queues/{name}
//	GET /queues/{name}/dump
//	GET /queues/{name}/dump/{part}      part = main | timeout | locks
//	GET /queues/{name}/events           websocket notification stream
//	GET /queues/{name}/history          archived snapshots (when archiving)
//	GET /queues/{name}/history/{id}
//	GET /metrics
//
// Nothing here mutates a queue. Producers and consumers use the in-process
// API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/snehjoshi/leaseq/internal/archive"
	"github.com/snehjoshi/leaseq/internal/config"
	"github.com/snehjoshi/leaseq/internal/metrics"
	"github.com/snehjoshi/leaseq/internal/queue"
	transportws "github.com/snehjoshi/leaseq/internal/transport/websocket"
)

// Server wraps the stdlib HTTP server with LeaseQ route wiring.
type Server struct {
	inner *http.Server
}

// New builds a Server over reg. store and m may be nil, which disables the
// history and metrics routes respectively.
// The caller is responsible for calling ListenAndServe / Shutdown.
func New(reg *queue.Registry, cfg *config.Config, store *archive.Store, m *metrics.Registry) *Server {
	h := &Handler{registry: reg, archive: store, started: time.Now()}
	ws := &transportws.Handler{Registry: reg}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)

	mux.HandleFunc("GET /queues", h.listQueues)
	mux.HandleFunc("GET /queues/{name}", h.getQueue)
	mux.HandleFunc("GET /queues/{name}/dump", h.dumpQueue)
	mux.HandleFunc("GET /queues/{name}/dump/{part}", h.dumpQueue)

	mux.Handle("GET /queues/{name}/events", ws)

	if store != nil {
		mux.HandleFunc("GET /queues/{name}/history", h.listHistory)
		mux.HandleFunc("GET /queues/{name}/history/{id}", h.getHistory)
	}

	if m != nil && cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", m.Handler())
	}

	handler := chain(mux,
		CORSMiddleware(cfg.Admin.CORSOrigins),
		LoggingMiddleware(m),
		AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled),
		RateLimitMiddleware(float64(cfg.Admin.RateLimit), cfg.Admin.Burst),
	)

	return &Server{
		inner: &http.Server{
			Addr:              cfg.Admin.Addr(),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
			// No WriteTimeout: the events route holds connections open.
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.inner.Addr }

// ListenAndServe starts the server on its configured address. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) ListenAndServe() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
