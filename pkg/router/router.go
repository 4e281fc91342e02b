// Package router translates normalized hook events and API commands
// into registry mutations and broadcast messages.
//
// All mutation+publish pairs run inside the target agent's critical
// section, so a subscriber to agent:<id> sees messages in exactly the
// order the mutations were applied.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/agentfleet/watchtower/pkg/events"
	"github.com/agentfleet/watchtower/pkg/ingest"
	"github.com/agentfleet/watchtower/pkg/metrics"
	"github.com/agentfleet/watchtower/pkg/models"
	"github.com/agentfleet/watchtower/pkg/registry"
)

// Router owns the event-to-state pipeline.
type Router struct {
	reg *registry.Registry
	b   *events.Broadcaster
	rec *metrics.Recorder
}

// New creates a router over the registry and broadcaster.
func New(reg *registry.Registry, b *events.Broadcaster, rec *metrics.Recorder) *Router {
	return &Router{reg: reg, b: b, rec: rec}
}

// statusTarget maps event kinds to the lifecycle status they drive the
// agent toward. Kinds absent here are log-only.
var statusTarget = map[ingest.Kind]models.Status{
	ingest.KindAgentStarted:      models.StatusActive,
	ingest.KindConversationStart: models.StatusActive,
	ingest.KindTaskStarted:       models.StatusActive,
	ingest.KindTaskCompleted:     models.StatusActive,
	ingest.KindToolPre:           models.StatusActive,
	ingest.KindToolPost:          models.StatusActive,
	ingest.KindAgentStopped:      models.StatusComplete,
	ingest.KindConversationEnd:   models.StatusComplete,
	ingest.KindAgentErrored:      models.StatusError,
	ingest.KindSubagentStopped:   models.StatusHandoff,
}

// HandleEvent applies one normalized event: auto-register if needed,
// drive the state machine, append a log entry, merge context patches,
// and publish a single broadcast — all inside the agent's critical
// section. Disallowed event-driven transitions are logged and skipped,
// never surfaced to the producer.
func (r *Router) HandleEvent(ctx context.Context, ev *ingest.Event) error {
	seed := models.RegisterRequest{
		ID:          ev.AgentID,
		ProjectPath: ev.ProjectPath,
		ParentID:    ev.ParentID,
		Context:     ev.ContextPatch,
	}

	_, err := r.reg.UpdateOrCreate(ctx, seed, func(a *registry.Agent, created bool) error {
		a.SetProjectPath(ev.ProjectPath)

		changed := false
		if target, ok := statusTarget[ev.Kind]; ok {
			prev := a.Status()
			changed = a.TrySetStatus(target)
			if !changed && prev != target {
				slog.Debug("Ignored event-driven transition",
					"agent_id", ev.AgentID, "kind", ev.Kind, "from", prev, "to", target)
			}
		}

		entry := a.AppendLog(levelFor(ev), messageFor(ev), logMetadata(ev))

		var patch map[string]any
		if ev.ContextPatch != nil {
			// For a just-created agent this re-merges the seeded
			// context; sanitization is idempotent so that is harmless.
			patch = a.MergeContext(ev.ContextPatch)
		}

		r.publish(a.ID(), a.ProjectPath(), events.AgentEventPayload{
			Type:          events.TypeAgentEvent,
			Kind:          string(ev.Kind),
			AgentID:       a.ID(),
			ProjectPath:   a.ProjectPath(),
			Status:        a.Status(),
			StatusChanged: changed,
			Log:           &entry,
			ContextPatch:  patch,
			Timestamp:     events.NowRFC3339(),
		})
		return nil
	})
	if err != nil {
		return err
	}

	r.rec.EventIngested(string(ev.Kind))
	r.rec.SetAgents(r.reg.Count())
	return nil
}

// Register handles an explicit registration request.
func (r *Router) Register(ctx context.Context, req models.RegisterRequest) (*models.Agent, bool, error) {
	snap, created, err := r.reg.Register(ctx, req)
	if snap == nil {
		return nil, false, err
	}

	r.publish(snap.ID, snap.ProjectPath, events.AgentRegisteredPayload{
		Type:        events.TypeAgentRegistered,
		AgentID:     snap.ID,
		ProjectPath: snap.ProjectPath,
		ParentID:    snap.ParentID,
		Status:      snap.Status,
		Timestamp:   events.NowRFC3339(),
	})
	r.rec.SetAgents(r.reg.Count())
	return snap, created, err
}

// SetStatus applies an explicit status change. Invalid transitions
// surface as registry.ErrInvalidTransition for the API to map to 400.
func (r *Router) SetStatus(ctx context.Context, id string, next models.Status) (*models.Agent, error) {
	return r.reg.Update(ctx, id, func(a *registry.Agent) error {
		prev := a.Status()
		if err := a.SetStatus(next); err != nil {
			return err
		}
		r.publish(a.ID(), a.ProjectPath(), events.AgentStatusPayload{
			Type:      events.TypeAgentStatus,
			AgentID:   a.ID(),
			Status:    a.Status(),
			Previous:  prev,
			Timestamp: events.NowRFC3339(),
		})
		return nil
	})
}

// MergeContext applies an explicit context patch.
func (r *Router) MergeContext(ctx context.Context, id string, patch map[string]any) (*models.Agent, error) {
	return r.reg.Update(ctx, id, func(a *registry.Agent) error {
		clean := a.MergeContext(patch)
		r.publish(a.ID(), a.ProjectPath(), events.AgentContextPayload{
			Type:      events.TypeAgentContext,
			AgentID:   a.ID(),
			Patch:     clean,
			Timestamp: events.NowRFC3339(),
		})
		return nil
	})
}

// AppendLog appends an explicit log entry.
func (r *Router) AppendLog(ctx context.Context, id string, level models.LogLevel, message string, metadata map[string]any) (*models.Agent, error) {
	return r.reg.Update(ctx, id, func(a *registry.Agent) error {
		entry := a.AppendLog(level, message, metadata)
		r.publish(a.ID(), a.ProjectPath(), events.AgentLogPayload{
			Type:      events.TypeAgentLog,
			AgentID:   a.ID(),
			Entry:     entry,
			Timestamp: events.NowRFC3339(),
		})
		return nil
	})
}

// DeleteAgent removes an agent and publishes exactly one tombstone to
// its topic and the firehose. reason distinguishes API deletes from
// retention sweeps.
func (r *Router) DeleteAgent(ctx context.Context, id, reason string) error {
	snap, err := r.reg.Delete(ctx, id)
	if snap == nil {
		return err
	}

	tombstone := events.AgentDeletedPayload{
		Type:        events.TypeAgentDeleted,
		AgentID:     id,
		FinalStatus: snap.Status,
		Reason:      reason,
		Timestamp:   events.NowRFC3339(),
	}
	r.b.Publish(events.AgentTopic(id), tombstone)
	r.b.Publish(events.TopicAll, tombstone)

	r.rec.SetAgents(r.reg.Count())
	return err
}

// publish fans one payload out to the agent, project, and firehose
// topics.
func (r *Router) publish(agentID, projectPath string, payload any) {
	r.b.Publish(events.AgentTopic(agentID), payload)
	if projectPath != "" {
		r.b.Publish(events.ProjectTopic(projectPath), payload)
	}
	r.b.Publish(events.TopicAll, payload)
}

func levelFor(ev *ingest.Event) models.LogLevel {
	switch ev.Kind {
	case ingest.KindAgentErrored:
		return models.LevelError
	case ingest.KindNotification:
		if lvl, ok := ev.Data["level"].(string); ok && models.LogLevel(lvl).Valid() {
			return models.LogLevel(lvl)
		}
	}
	return models.LevelInfo
}

func messageFor(ev *ingest.Event) string {
	switch ev.Kind {
	case ingest.KindAgentStarted:
		return "agent started"
	case ingest.KindAgentStopped:
		return "agent stopped"
	case ingest.KindAgentErrored:
		return fmt.Sprintf("agent error: %v", ev.Data["error"])
	case ingest.KindToolPre:
		return fmt.Sprintf("tool use: %v", ev.Data["tool_name"])
	case ingest.KindToolPost:
		return fmt.Sprintf("tool completed: %v", ev.Data["tool_name"])
	case ingest.KindContextUpdated:
		return "context updated"
	case ingest.KindTaskStarted:
		return fmt.Sprintf("task started: %v", ev.Data["task"])
	case ingest.KindTaskCompleted:
		return fmt.Sprintf("task completed: %v", ev.Data["task"])
	case ingest.KindNotification:
		if msg, ok := ev.Data["message"].(string); ok {
			return msg
		}
		return "notification"
	case ingest.KindSubagentStopped:
		return "subagent stopped; control handed back"
	case ingest.KindConversationStart:
		return "conversation started"
	case ingest.KindConversationEnd:
		return "conversation ended"
	default:
		return "event: " + ev.RawType
	}
}

// logMetadata preserves the event's data fields plus the producer's
// own timestamp for forensics. Sanitization happens on append.
func logMetadata(ev *ingest.Event) map[string]any {
	md := make(map[string]any, len(ev.Data)+1)
	for k, v := range ev.Data {
		md[k] = v
	}
	if ev.ClientTime != "" {
		md["client_time"] = ev.ClientTime
	}
	return md
}
