package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfleet/watchtower/pkg/registry"
)

func TestParse_RejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	assert.True(t, registry.IsValidationError(err))
}

func TestParse_Envelope(t *testing.T) {
	env, err := Parse([]byte(`{"type":"tool.pre_use","agentId":"a1","timestamp":"2026-08-25T10:00:00Z","data":{"tool_name":"Edit"}}`))
	require.NoError(t, err)
	assert.Equal(t, "tool.pre_use", env.Type)
	assert.Equal(t, "a1", env.AgentID)
	assert.Equal(t, "Edit", env.Data["tool_name"])
}

func TestNormalize_KnownTypes(t *testing.T) {
	tests := []struct {
		wireType string
		data     map[string]any
		want     Kind
	}{
		{"agent.started", nil, KindAgentStarted},
		{"agent.stopped", nil, KindAgentStopped},
		{"agent.error", map[string]any{"error": "boom"}, KindAgentErrored},
		{"tool.pre_use", map[string]any{"tool_name": "Bash"}, KindToolPre},
		{"tool.post_use", map[string]any{"tool_name": "Bash"}, KindToolPost},
		{"context.updated", map[string]any{"context": map[string]any{"k": "v"}}, KindContextUpdated},
		{"task.started", map[string]any{"task": "refactor"}, KindTaskStarted},
		{"task.completed", map[string]any{"task": "refactor"}, KindTaskCompleted},
		{"conversation_start", nil, KindConversationStart},
		{"conversation_end", nil, KindConversationEnd},
		{"notification", map[string]any{"level": "info", "message": "hi"}, KindNotification},
		{"subagent_stop", nil, KindSubagentStopped},
	}

	for _, tt := range tests {
		ev, err := Normalize(Envelope{Type: tt.wireType, AgentID: "a1", Data: tt.data})
		require.NoError(t, err, tt.wireType)
		assert.Equal(t, tt.want, ev.Kind, tt.wireType)
		assert.Equal(t, tt.wireType, ev.RawType)
	}
}

func TestNormalize_UnknownTypeIsGeneric(t *testing.T) {
	ev, err := Normalize(Envelope{Type: "totally.new.hook", AgentID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, KindGeneric, ev.Kind)
	assert.Equal(t, "totally.new.hook", ev.RawType)
}

func TestNormalize_RequiredFields(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{"missing agentId", Envelope{Type: "agent.started"}},
		{"missing type", Envelope{AgentID: "a1"}},
		{"error without error", Envelope{Type: "agent.error", AgentID: "a1"}},
		{"tool without name", Envelope{Type: "tool.pre_use", AgentID: "a1", Data: map[string]any{}}},
		{"task without task", Envelope{Type: "task.started", AgentID: "a1"}},
		{"notification without message", Envelope{Type: "notification", AgentID: "a1", Data: map[string]any{"level": "info"}}},
		{"context not a map", Envelope{Type: "context.updated", AgentID: "a1", Data: map[string]any{"context": "nope"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.env)
			assert.True(t, registry.IsValidationError(err))
		})
	}
}

func TestNormalize_ExtractsSeedFields(t *testing.T) {
	ev, err := Normalize(Envelope{
		Type:      "tool.pre_use",
		AgentID:   "a1",
		Timestamp: "2026-08-25T10:00:00Z",
		Data:      map[string]any{"tool_name": "Edit", "projectPath": "/p"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/p", ev.ProjectPath)
	assert.Equal(t, "2026-08-25T10:00:00Z", ev.ClientTime)

	ev, err = Normalize(Envelope{
		Type:    "subagent_stop",
		AgentID: "child",
		Data:    map[string]any{"parentAgentId": "root"},
	})
	require.NoError(t, err)
	assert.Equal(t, "root", ev.ParentID)
}

func TestNormalize_ContextPatch(t *testing.T) {
	ev, err := Normalize(Envelope{
		Type:    "context.updated",
		AgentID: "a1",
		Data:    map[string]any{"context": map[string]any{"branch": "main"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "main", ev.ContextPatch["branch"])

	// agent.started may carry an optional initial context.
	ev, err = Normalize(Envelope{
		Type:    "agent.started",
		AgentID: "a1",
		Data:    map[string]any{"context": map[string]any{"model": "large"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "large", ev.ContextPatch["model"])

	ev, err = Normalize(Envelope{Type: "agent.started", AgentID: "a1"})
	require.NoError(t, err)
	assert.Nil(t, ev.ContextPatch)
}
