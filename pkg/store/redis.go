package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/models"
)

// agentKeyPrefix namespaces agent snapshot keys in Redis.
const agentKeyPrefix = "watchtower:agent:"

// scanBatch is the COUNT hint for SCAN during LoadAgents.
const scanBatch = 256

// RedisStore persists agent snapshots as JSON values in Redis, one key
// per agent. Multiple server instances may share the same Redis; the
// last writer wins, which matches the registry's write-behind model.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Connected to Redis store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return &RedisStore{client: client}, nil
}

// SaveAgent upserts a snapshot under watchtower:agent:<id>.
func (s *RedisStore) SaveAgent(ctx context.Context, agent *models.Agent) error {
	data, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("marshal agent %s: %w", agent.ID, err)
	}
	if err := s.client.Set(ctx, agentKeyPrefix+agent.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("save agent %s: %w", agent.ID, err)
	}
	return nil
}

// DeleteAgent removes a snapshot.
func (s *RedisStore) DeleteAgent(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, agentKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete agent %s: %w", id, err)
	}
	return nil
}

// LoadAgents SCANs the agent prefix and unmarshals every snapshot.
// Individual corrupt values are logged and skipped rather than failing
// the whole reconciliation.
func (s *RedisStore) LoadAgents(ctx context.Context) ([]*models.Agent, error) {
	var agents []*models.Agent
	iter := s.client.Scan(ctx, 0, agentKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				continue // deleted between SCAN and GET
			}
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		var agent models.Agent
		if err := json.Unmarshal(data, &agent); err != nil {
			slog.Warn("Skipping corrupt agent snapshot", "key", key, "error", err)
			continue
		}
		agents = append(agents, &agent)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan agents: %w", err)
	}
	return agents, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
