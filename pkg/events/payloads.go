package events

import (
	"time"

	"github.com/agentfleet/watchtower/pkg/models"
)

// Broadcast message types. Every payload carries Type so clients can
// dispatch without inspecting the rest of the message.
const (
	TypeAgentEvent      = "agent.event"
	TypeAgentRegistered = "agent.registered"
	TypeAgentStatus     = "agent.status"
	TypeAgentContext    = "agent.context"
	TypeAgentLog        = "agent.log"
	TypeAgentDeleted    = "agent.deleted"
)

// WelcomeFrame is sent once immediately after a connection is accepted.
type WelcomeFrame struct {
	Type         string `json:"type"`
	SubscriberID string `json:"subscriber_id"`
	Timestamp    string `json:"timestamp"`
}

// ControlFrame covers ping, pong, overflow, close and subscription
// acknowledgements.
type ControlFrame struct {
	Type    string   `json:"type"`
	Topics  []string `json:"topics,omitempty"`
	Message string   `json:"message,omitempty"`
}

// AgentEventPayload is the broadcast emitted for every ingested hook
// event, after the registry mutation it caused.
type AgentEventPayload struct {
	Type          string           `json:"type"`
	Kind          string           `json:"kind"`
	AgentID       string           `json:"agent_id"`
	ProjectPath   string           `json:"project_path,omitempty"`
	Status        models.Status    `json:"status"`
	StatusChanged bool             `json:"status_changed"`
	Log           *models.LogEntry `json:"log,omitempty"`
	ContextPatch  map[string]any   `json:"context_patch,omitempty"`
	Timestamp     string           `json:"timestamp"`
}

// AgentRegisteredPayload announces an explicit registration.
type AgentRegisteredPayload struct {
	Type        string        `json:"type"`
	AgentID     string        `json:"agent_id"`
	ProjectPath string        `json:"project_path,omitempty"`
	ParentID    string        `json:"parent_id,omitempty"`
	Status      models.Status `json:"status"`
	Timestamp   string        `json:"timestamp"`
}

// AgentStatusPayload announces an explicit status change (PATCH).
type AgentStatusPayload struct {
	Type      string        `json:"type"`
	AgentID   string        `json:"agent_id"`
	Status    models.Status `json:"status"`
	Previous  models.Status `json:"previous"`
	Timestamp string        `json:"timestamp"`
}

// AgentContextPayload carries a sanitized context patch exactly as it
// was merged into the agent's context.
type AgentContextPayload struct {
	Type      string         `json:"type"`
	AgentID   string         `json:"agent_id"`
	Patch     map[string]any `json:"patch"`
	Timestamp string         `json:"timestamp"`
}

// AgentLogPayload carries a single appended log entry.
type AgentLogPayload struct {
	Type      string          `json:"type"`
	AgentID   string          `json:"agent_id"`
	Entry     models.LogEntry `json:"entry"`
	Timestamp string          `json:"timestamp"`
}

// AgentDeletedPayload is the tombstone published exactly once when an
// agent is removed, whether by API delete or retention.
type AgentDeletedPayload struct {
	Type        string        `json:"type"`
	AgentID     string        `json:"agent_id"`
	FinalStatus models.Status `json:"final_status"`
	Reason      string        `json:"reason,omitempty"`
	Timestamp   string        `json:"timestamp"`
}

// NowRFC3339 returns the broadcast timestamp format used on the wire.
func NowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
