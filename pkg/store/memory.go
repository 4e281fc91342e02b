package store

import (
	"context"
	"sync"

	"github.com/agentfleet/watchtower/pkg/models"
)

// MemoryStore keeps snapshots in process memory. It is the default
// backend and the one used by tests; contents are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]*models.Agent)}
}

// SaveAgent upserts a snapshot.
func (s *MemoryStore) SaveAgent(_ context.Context, agent *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.ID] = agent
	return nil
}

// DeleteAgent removes a snapshot.
func (s *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, id)
	return nil
}

// LoadAgents returns all snapshots.
func (s *MemoryStore) LoadAgents(_ context.Context) ([]*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
