// Package ingest parses hook event envelopes and normalizes them to
// canonical event kinds. Validation happens once here, at the boundary;
// everything downstream works with a well-formed Event.
package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/agentfleet/watchtower/pkg/registry"
)

// Kind is a canonical event kind.
type Kind string

const (
	KindAgentStarted      Kind = "AgentStarted"
	KindAgentStopped      Kind = "AgentStopped"
	KindAgentErrored      Kind = "AgentErrored"
	KindToolPre           Kind = "ToolPre"
	KindToolPost          Kind = "ToolPost"
	KindContextUpdated    Kind = "ContextUpdated"
	KindTaskStarted       Kind = "TaskStarted"
	KindTaskCompleted     Kind = "TaskCompleted"
	KindNotification      Kind = "Notification"
	KindSubagentStopped   Kind = "SubagentStopped"
	KindConversationStart Kind = "ConversationStart"
	KindConversationEnd   Kind = "ConversationEnd"
	KindGeneric           Kind = "Generic"
)

// Envelope is the wire format POSTed by hook scripts, one per event.
type Envelope struct {
	Type      string         `json:"type"`
	AgentID   string         `json:"agentId"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Event is a normalized, validated hook event.
type Event struct {
	Kind    Kind
	RawType string
	AgentID string

	// ClientTime is the producer's timestamp, verbatim. It is never
	// trusted for ordering; the registry clock decides that. It is kept
	// only as log metadata.
	ClientTime string

	// ProjectPath and ParentID are extracted from data when present so
	// auto-registration can seed them.
	ProjectPath string
	ParentID    string

	// ContextPatch is set for kinds that carry a context map.
	ContextPatch map[string]any

	Data map[string]any
}

// typeToKind maps recognized wire types, including the legacy
// underscore forms, to canonical kinds.
var typeToKind = map[string]Kind{
	"agent.started":      KindAgentStarted,
	"agent.stopped":      KindAgentStopped,
	"agent.error":        KindAgentErrored,
	"tool.pre_use":       KindToolPre,
	"tool.post_use":      KindToolPost,
	"context.updated":    KindContextUpdated,
	"task.started":       KindTaskStarted,
	"task.completed":     KindTaskCompleted,
	"conversation_start": KindConversationStart,
	"conversation_end":   KindConversationEnd,
	"notification":       KindNotification,
	"subagent_stop":      KindSubagentStopped,
}

// requiredData lists the data fields each recognized type must carry.
var requiredData = map[Kind][]string{
	KindAgentErrored:  {"error"},
	KindToolPre:       {"tool_name"},
	KindToolPost:      {"tool_name"},
	KindTaskStarted:   {"task"},
	KindTaskCompleted: {"task"},
	KindNotification:  {"level", "message"},
}

// Parse decodes a raw request body into an envelope.
func Parse(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, registry.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return env, nil
}

// Normalize validates an envelope and converts it to a canonical Event.
// Unknown types are accepted as Generic; missing required fields on a
// recognized type are a validation error.
func Normalize(env Envelope) (*Event, error) {
	if env.AgentID == "" {
		return nil, registry.NewValidationError("agentId", "required")
	}
	if env.Type == "" {
		return nil, registry.NewValidationError("type", "required")
	}

	kind, recognized := typeToKind[env.Type]
	if !recognized {
		kind = KindGeneric
	}

	ev := &Event{
		Kind:       kind,
		RawType:    env.Type,
		AgentID:    env.AgentID,
		ClientTime: env.Timestamp,
		Data:       env.Data,
	}

	for _, field := range requiredData[kind] {
		if _, ok := env.Data[field]; !ok {
			return nil, registry.NewValidationError("data."+field,
				fmt.Sprintf("required for type %q", env.Type))
		}
	}

	if pp, ok := env.Data["projectPath"].(string); ok {
		ev.ProjectPath = pp
	}
	if kind == KindSubagentStopped {
		if parent, ok := env.Data["parentAgentId"].(string); ok {
			ev.ParentID = parent
		}
	}

	switch kind {
	case KindContextUpdated:
		patch, ok := env.Data["context"].(map[string]any)
		if !ok {
			return nil, registry.NewValidationError("data.context", "must be a map")
		}
		ev.ContextPatch = patch
	case KindAgentStarted:
		if patch, ok := env.Data["context"].(map[string]any); ok {
			ev.ContextPatch = patch
		}
	}

	return ev, nil
}
