package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/snehjoshi/leaseq/internal/archive"
	"github.com/snehjoshi/leaseq/internal/config"
	"github.com/snehjoshi/leaseq/internal/metrics"
	"github.com/snehjoshi/leaseq/internal/queue"
	transphttp "github.com/snehjoshi/leaseq/internal/transport/http"
)

// stack is the set of long-lived components behind demo and serve: the
// registry, metrics, and the optional archive recorder and admin server.
type stack struct {
	cfg      *config.Config
	log      *slog.Logger
	reg      *queue.Registry
	metrics  *metrics.Registry
	store    *archive.Store
	recorder *archive.Recorder
	server   *transphttp.Server
	serveErr chan error
}

func openStack(cfg *config.Config, logger *slog.Logger) (*stack, error) {
	s := &stack{
		cfg:      cfg,
		log:      logger,
		reg:      queue.NewRegistry(),
		metrics:  &metrics.Registry{},
		serveErr: make(chan error, 1),
	}

	if cfg.Archive.Enabled {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.store = store
		s.recorder = archive.NewRecorder(store, s.reg,
			time.Duration(cfg.Archive.IntervalSeconds)*time.Second, cfg.Archive.Retain, logger)
	}

	if cfg.Admin.Enabled {
		s.server = transphttp.New(s.reg, cfg, s.store, s.metrics)
	}
	return s, nil
}

// newQueue creates a string queue from the queue section, registers it and,
// when archiving, records a snapshot on each of its notifications.
func (s *stack) newQueue(name string) (*queue.Queue[string], error) {
	q, err := queue.New[string]("", name, queue.Config{
		MaxLeaseMinutes:      s.cfg.Queue.MaxLeaseMinutes,
		SweepIntervalSeconds: s.cfg.Queue.SweepIntervalSeconds,
		MaxItems:             s.cfg.Queue.MaxItems,
	}, queue.WithLogger(s.log), queue.WithMetrics(s.metrics))
	if err != nil {
		return nil, err
	}
	if err := s.reg.Register(q); err != nil {
		_ = q.Close()
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.Observe(q)
	}
	return q, nil
}

func (s *stack) start() {
	if s.recorder != nil {
		s.recorder.Start()
	}
	if s.server != nil {
		go func() {
			s.log.Info("admin server listening", "addr", s.server.Addr())
			if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				s.serveErr <- err
			}
		}()
	}
}

// close stops the admin server, writes a final snapshot of every queue and
// releases the archive.
func (s *stack) close() {
	if s.server != nil {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.server.Shutdown(shutCtx); err != nil {
			s.log.Warn("admin server shutdown error", "error", err)
		}
		cancel()
	}
	if s.recorder != nil {
		s.recorder.Stop()
		s.recorder.RunOnce("final")
	}
	if err := s.reg.Close(); err != nil {
		s.log.Warn("registry close error", "error", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warn("archive close error", "error", err)
		}
	}
}
