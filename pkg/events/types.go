package events

import "strings"

// TopicAll receives every broadcast regardless of agent or project.
const TopicAll = "all"

// AgentTopic returns the per-agent topic name.
func AgentTopic(agentID string) string {
	return "agent:" + agentID
}

// ProjectTopic returns the per-project topic name.
func ProjectTopic(projectPath string) string {
	return "project:" + projectPath
}

// TopicScope classifies a topic for metrics labeling. Topic names carry
// unbounded cardinality; the scope does not.
func TopicScope(topic string) string {
	switch {
	case topic == TopicAll:
		return "all"
	case strings.HasPrefix(topic, "agent:"):
		return "agent"
	case strings.HasPrefix(topic, "project:"):
		return "project"
	default:
		return "other"
	}
}

// Control frame types on the subscriber channel.
const (
	TypeWelcome               = "welcome"
	TypePing                  = "ping"
	TypePong                  = "pong"
	TypeSubscriptionConfirmed = "subscription.confirmed"
	TypeSubscriptionError     = "subscription.error"
	TypeOverflow              = "overflow"
	TypeClose                 = "close"
)

// Client actions accepted on the WebSocket.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
	ActionPong        = "pong"
)

// ClientMessage is a message sent by a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
}
