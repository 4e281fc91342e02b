package registry

import (
	"time"

	"github.com/agentfleet/watchtower/pkg/models"
)

// Agent is the in-section handle passed to Update callbacks. It is only
// valid for the duration of the callback; callers must not retain it.
type Agent struct {
	r *Registry
	s *agentState
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.s.id }

// Status returns the current lifecycle status.
func (a *Agent) Status() models.Status { return a.s.status }

// ProjectPath returns the reported project path.
func (a *Agent) ProjectPath() string { return a.s.projectPath }

// ParentID returns the parent agent id, if any.
func (a *Agent) ParentID() string { return a.s.parentID }

// SetStatus applies a state-machine transition. Disallowed edges return
// ErrInvalidTransition and leave the agent unchanged.
func (a *Agent) SetStatus(next models.Status) error {
	if !next.Valid() {
		return NewValidationError("status", "unknown status "+string(next))
	}
	if !CanTransition(a.s.status, next) {
		return ErrInvalidTransition
	}
	a.s.status = next
	a.Touch()
	return nil
}

// TrySetStatus applies the transition if allowed and reports whether the
// status actually changed. Used by the router, where disallowed
// transitions are ignored rather than surfaced.
func (a *Agent) TrySetStatus(next models.Status) (changed bool) {
	if !next.Valid() || !CanTransition(a.s.status, next) {
		return false
	}
	if a.s.status == next {
		a.Touch()
		return false
	}
	a.s.status = next
	a.Touch()
	return true
}

// AppendLog appends a log entry. The registry assigns the entry id,
// sequence number, and a strictly increasing timestamp; metadata is
// sanitized before storage. Returns the stored entry.
func (a *Agent) AppendLog(level models.LogLevel, message string, metadata map[string]any) models.LogEntry {
	return a.r.appendLog(a.s, level, message, metadata)
}

// MergeContext sanitizes patch and shallow-merges it into the agent's
// context. Returns the sanitized patch so callers can broadcast exactly
// what was stored.
func (a *Agent) MergeContext(patch map[string]any) map[string]any {
	clean := a.r.sanitizer.Map(patch)
	for k, v := range clean {
		a.s.context[k] = v
	}
	a.Touch()
	return clean
}

// SetProjectPath records the project path if not already set. Hook
// events carry the path redundantly; first writer wins.
func (a *Agent) SetProjectPath(path string) {
	if path != "" && a.s.projectPath == "" {
		a.s.projectPath = path
	}
}

// AddTags unions tags into the agent's tag set.
func (a *Agent) AddTags(tags []string) {
	for _, t := range dedupeTags(tags) {
		if !containsTag(a.s.tags, t) {
			a.s.tags = append(a.s.tags, t)
		}
	}
}

// Touch updates last-activity to now (monotonic per agent).
func (a *Agent) Touch() {
	now := time.Now().UTC()
	if now.After(a.s.lastActivity) {
		a.s.lastActivity = now
	}
}

// Snapshot returns an immutable copy of the current state.
func (a *Agent) Snapshot() *models.Agent {
	return snapshotState(a.s)
}

func containsTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
