// Package store provides pluggable persistence for agent snapshots.
//
// The registry is authoritative at runtime; the store is a write-behind
// copy used to rebuild state after a restart. Backends must tolerate
// concurrent calls.
package store

import (
	"context"
	"fmt"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/models"
)

// Store persists agent snapshots.
type Store interface {
	// SaveAgent upserts a full agent snapshot.
	SaveAgent(ctx context.Context, agent *models.Agent) error

	// DeleteAgent removes an agent. Deleting a missing agent is not an error.
	DeleteAgent(ctx context.Context, id string) error

	// LoadAgents returns every persisted agent, for restart reconciliation.
	LoadAgents(ctx context.Context) ([]*models.Agent, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// New creates the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.StoreBackendMemory:
		return NewMemoryStore(), nil
	case config.StoreBackendRedis:
		return NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
