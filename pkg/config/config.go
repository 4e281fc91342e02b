// Package config loads the immutable server configuration from the
// environment. All values have defaults suitable for local development;
// a deployment overrides them via environment variables (optionally
// sourced from a .env file loaded in main).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store backend identifiers for Config.StoreBackend.
const (
	StoreBackendMemory = "memory"
	StoreBackendRedis  = "redis"
)

// Config holds all server settings. It is captured once at startup and
// never mutated afterwards.
type Config struct {
	// ListenAddr is the HTTP listen address for the API, ingestion,
	// and WebSocket endpoints.
	ListenAddr string

	Registry  RegistryConfig
	Stream    StreamConfig
	Retention RetentionConfig
	Sanitize  SanitizeConfig
	Store     StoreConfig
}

// RegistryConfig bounds the in-memory agent registry.
type RegistryConfig struct {
	// MaxLogsPerAgent caps each agent's log ring. Oldest entries are
	// evicted first on overflow.
	MaxLogsPerAgent int

	// IngestionDeadline bounds the handling of a single ingested event.
	// On expiry the request returns 503; partial mutations stay committed.
	IngestionDeadline time.Duration
}

// StreamConfig controls the WebSocket subscriber protocol.
type StreamConfig struct {
	// MaxSubscriberQueue is the per-subscriber outbound queue capacity.
	// A subscriber whose queue overflows is dropped and disconnected.
	MaxSubscriberQueue int

	// PingInterval is how often the server pings each subscriber.
	PingInterval time.Duration

	// PongDeadline is how long the server waits for a pong before
	// considering the subscriber dead.
	PongDeadline time.Duration

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration
}

// RetentionConfig controls the background retention sweeper.
type RetentionConfig struct {
	// CompletedTTL is how long a Complete agent is kept after its last
	// activity before deletion.
	CompletedTTL time.Duration

	// IdleTTL deletes any agent idle longer than this, regardless of
	// status. Zero disables idle expiration.
	IdleTTL time.Duration

	// Interval is how often the retention loop runs.
	Interval time.Duration
}

// SanitizeConfig bounds context/metadata sanitization.
type SanitizeConfig struct {
	// MaxStringLen truncates longer string values.
	MaxStringLen int

	// MaxDepth bounds recursion into nested maps.
	MaxDepth int
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "redis".
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// Load reads configuration from the environment, applying defaults for
// unset variables. It fails on unparseable values rather than silently
// falling back, so a typo in a deployment manifest is caught at startup.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":3001"),
		Registry: RegistryConfig{
			MaxLogsPerAgent:   1000,
			IngestionDeadline: 5 * time.Second,
		},
		Stream: StreamConfig{
			MaxSubscriberQueue: 256,
			PingInterval:       30 * time.Second,
			PongDeadline:       10 * time.Second,
			WriteTimeout:       10 * time.Second,
		},
		Retention: RetentionConfig{
			CompletedTTL: 24 * time.Hour,
			IdleTTL:      7 * 24 * time.Hour,
			Interval:     5 * time.Minute,
		},
		Sanitize: SanitizeConfig{
			MaxStringLen: 4096,
			MaxDepth:     8,
		},
		Store: StoreConfig{
			Backend:   getEnv("STORE_BACKEND", StoreBackendMemory),
			RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
	}

	var err error
	if cfg.Registry.MaxLogsPerAgent, err = getEnvInt("MAX_LOGS_PER_AGENT", cfg.Registry.MaxLogsPerAgent); err != nil {
		return nil, err
	}
	if cfg.Registry.IngestionDeadline, err = getEnvDuration("INGESTION_DEADLINE", cfg.Registry.IngestionDeadline); err != nil {
		return nil, err
	}
	if cfg.Stream.MaxSubscriberQueue, err = getEnvInt("MAX_SUBSCRIBER_QUEUE", cfg.Stream.MaxSubscriberQueue); err != nil {
		return nil, err
	}
	if cfg.Stream.PingInterval, err = getEnvDuration("PING_INTERVAL", cfg.Stream.PingInterval); err != nil {
		return nil, err
	}
	if cfg.Stream.PongDeadline, err = getEnvDuration("PONG_DEADLINE", cfg.Stream.PongDeadline); err != nil {
		return nil, err
	}
	if cfg.Stream.WriteTimeout, err = getEnvDuration("WS_WRITE_TIMEOUT", cfg.Stream.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.Retention.CompletedTTL, err = getEnvDuration("COMPLETED_TTL", cfg.Retention.CompletedTTL); err != nil {
		return nil, err
	}
	if cfg.Retention.IdleTTL, err = getEnvDuration("IDLE_TTL", cfg.Retention.IdleTTL); err != nil {
		return nil, err
	}
	if cfg.Retention.Interval, err = getEnvDuration("RETENTION_INTERVAL", cfg.Retention.Interval); err != nil {
		return nil, err
	}
	if cfg.Sanitize.MaxStringLen, err = getEnvInt("MAX_STRING_LEN", cfg.Sanitize.MaxStringLen); err != nil {
		return nil, err
	}
	if cfg.Sanitize.MaxDepth, err = getEnvInt("MAX_SANITIZE_DEPTH", cfg.Sanitize.MaxDepth); err != nil {
		return nil, err
	}
	cfg.Store.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.Store.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the parsers cannot express.
func (c *Config) Validate() error {
	if c.Registry.MaxLogsPerAgent < 1 {
		return fmt.Errorf("MAX_LOGS_PER_AGENT must be >= 1, got %d", c.Registry.MaxLogsPerAgent)
	}
	if c.Stream.MaxSubscriberQueue < 1 {
		return fmt.Errorf("MAX_SUBSCRIBER_QUEUE must be >= 1, got %d", c.Stream.MaxSubscriberQueue)
	}
	if c.Stream.PongDeadline <= 0 || c.Stream.PingInterval <= 0 {
		return fmt.Errorf("PING_INTERVAL and PONG_DEADLINE must be positive")
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("RETENTION_INTERVAL must be positive, got %v", c.Retention.Interval)
	}
	if c.Retention.IdleTTL < 0 {
		return fmt.Errorf("IDLE_TTL must be >= 0 (0 disables idle expiration), got %v", c.Retention.IdleTTL)
	}
	if c.Sanitize.MaxDepth < 1 {
		return fmt.Errorf("MAX_SANITIZE_DEPTH must be >= 1, got %d", c.Sanitize.MaxDepth)
	}
	switch c.Store.Backend {
	case StoreBackendMemory, StoreBackendRedis:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q",
			StoreBackendMemory, StoreBackendRedis, c.Store.Backend)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
