package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngest_AutoRegistersOnFirstToolUse(t *testing.T) {
	_, server := setupTestServer(t, nil)

	resp := postEvent(t, server.URL, map[string]any{
		"type":      "tool.pre_use",
		"agentId":   "a1",
		"timestamp": "2026-08-25T10:00:00Z",
		"data":      map[string]any{"tool_name": "Edit", "projectPath": "/p"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, agent := doJSON(t, http.MethodGet, server.URL+"/api/v1/agents/a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "active", agent["status"])
	assert.Equal(t, "/p", agent["project_path"])

	logs, ok := agent["logs"].([]any)
	require.True(t, ok)
	require.Len(t, logs, 1)
	entry := logs[0].(map[string]any)
	assert.Contains(t, entry["message"], "Edit")
}

func TestIngest_MalformedEnvelopes(t *testing.T) {
	_, server := setupTestServer(t, nil)

	tests := []struct {
		name string
		env  map[string]any
	}{
		{"missing agentId", map[string]any{"type": "agent.started"}},
		{"missing type", map[string]any{"agentId": "a1"}},
		{"tool without name", map[string]any{"type": "tool.pre_use", "agentId": "a1", "data": map[string]any{}}},
		{"error without error", map[string]any{"type": "agent.error", "agentId": "a1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postEvent(t, server.URL, tt.env)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}

	// Agent must not have been created by any rejected envelope.
	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/v1/agents/a1", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIngest_UnknownTypeAcceptedAsGeneric(t *testing.T) {
	_, server := setupTestServer(t, nil)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/events", map[string]any{
		"type":    "experimental.hook",
		"agentId": "a1",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "Generic", body["kind"])

	// Log-only: the agent exists but stays Idle.
	resp, agent := doJSON(t, http.MethodGet, server.URL+"/api/v1/agents/a1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", agent["status"])
}

func TestIngest_LateEventAfterCompleteIsAccepted(t *testing.T) {
	_, server := setupTestServer(t, nil)

	resp := postEvent(t, server.URL, map[string]any{"type": "agent.stopped", "agentId": "a1"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Structurally valid, so still 2xx even though the transition is a
	// no-op.
	resp = postEvent(t, server.URL, map[string]any{
		"type": "tool.pre_use", "agentId": "a1",
		"data": map[string]any{"tool_name": "Bash"},
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, agent := doJSON(t, http.MethodGet, server.URL+"/api/v1/agents/a1", nil)
	assert.Equal(t, "complete", agent["status"])
}
