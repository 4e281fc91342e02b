package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/events"
	"github.com/agentfleet/watchtower/pkg/metrics"
	"github.com/agentfleet/watchtower/pkg/registry"
	"github.com/agentfleet/watchtower/pkg/router"
	"github.com/agentfleet/watchtower/pkg/sanitize"
	"github.com/agentfleet/watchtower/pkg/store"
)

// setupTestServer builds the full stack over a memory store and serves
// it from an httptest server.
func setupTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server) {
	t.Helper()

	cfg := &config.Config{
		ListenAddr: ":0",
		Registry: config.RegistryConfig{
			MaxLogsPerAgent:   1000,
			IngestionDeadline: 5 * time.Second,
		},
		Stream: config.StreamConfig{
			MaxSubscriberQueue: 64,
			PingInterval:       30 * time.Second,
			PongDeadline:       10 * time.Second,
			WriteTimeout:       5 * time.Second,
		},
		Sanitize: config.SanitizeConfig{MaxStringLen: 4096, MaxDepth: 8},
	}
	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewMemoryStore()
	reg, err := registry.New(context.Background(), cfg.Registry,
		sanitize.New(cfg.Sanitize.MaxStringLen, cfg.Sanitize.MaxDepth), st)
	require.NoError(t, err)

	rec := metrics.NewRecorder()
	b := events.NewBroadcaster(cfg.Stream.MaxSubscriberQueue, rec)
	rt := router.New(reg, b, rec)
	connManager := events.NewConnectionManager(b, cfg.Stream)
	s := NewServer(cfg, rt, reg, b, connManager, st, rec)

	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return s, server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp, decoded
}

func postEvent(t *testing.T, baseURL string, env map[string]any) *http.Response {
	t.Helper()
	resp, _ := doJSON(t, http.MethodPost, baseURL+"/api/v1/events", env)
	return resp
}
