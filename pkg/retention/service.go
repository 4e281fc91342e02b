// Package retention enforces data retention policies in the
// background:
//   - Deletes completed agents past CompletedTTL
//   - Deletes any agent idle past IdleTTL (when enabled)
//   - Re-applies the per-agent log cap as a safety net
//
// Deletes go through the router so every removed agent gets exactly
// one tombstone broadcast, same as an API delete.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/metrics"
	"github.com/agentfleet/watchtower/pkg/registry"
	"github.com/agentfleet/watchtower/pkg/router"
)

// Service is the background retention worker.
type Service struct {
	cfg     config.RetentionConfig
	maxLogs int
	reg     *registry.Registry
	router  *router.Router
	rec     *metrics.Recorder

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a retention service. maxLogs is the per-agent log
// cap the sweep re-applies.
func NewService(cfg config.RetentionConfig, maxLogs int, reg *registry.Registry, rt *router.Router, rec *metrics.Recorder) *Service {
	return &Service{
		cfg:     cfg,
		maxLogs: maxLogs,
		reg:     reg,
		router:  rt,
		rec:     rec,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"completed_ttl", s.cfg.CompletedTTL,
		"idle_ttl", s.cfg.IdleTTL,
		"interval", s.cfg.Interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.Sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one retention pass. A failure on one agent never blocks
// the rest, and the pass is cancellable between agents.
func (s *Service) Sweep(ctx context.Context) {
	s.expireAgents(ctx)
	s.truncateLogs()
}

func (s *Service) expireAgents(ctx context.Context) {
	ids := s.reg.ExpireCandidates(time.Now().UTC(), s.cfg.CompletedTTL, s.cfg.IdleTTL)
	deleted := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		err := s.router.DeleteAgent(ctx, id, "retention")
		if err != nil && !registry.IsTransient(err) {
			slog.Error("Retention: delete failed", "agent_id", id, "error", err)
			continue
		}
		if err != nil {
			// Transient store failure; the agent is gone from memory
			// and the tombstone went out, so the deletion stands.
			slog.Warn("Retention: store delete failed", "agent_id", id, "error", err)
		}
		deleted++
	}
	if deleted > 0 {
		s.rec.RetentionDeleted(deleted)
		slog.Info("Retention: expired agents", "count", deleted)
	}
}

func (s *Service) truncateLogs() {
	// Appends already enforce the cap; this catches anything that
	// slipped past, e.g. state rehydrated from an older configuration.
	if dropped := s.reg.TruncateLogs(s.maxLogs); dropped > 0 {
		slog.Info("Retention: truncated agent logs", "dropped", dropped)
	}
}
