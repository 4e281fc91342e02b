// Package registry holds the authoritative in-process agent state.
//
// Every mutation for a given agent id runs inside that agent's critical
// section, so concurrent events on the same agent apply in a defined
// order and log timestamps stay strictly increasing per agent. Reads
// are snapshot-based and never hold per-agent locks across I/O.
//
// The backing store is write-behind: in-memory state stays authoritative
// when persistence fails, and New reconciles from whatever the store
// managed to keep on the previous run.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/models"
	"github.com/agentfleet/watchtower/pkg/sanitize"
	"github.com/agentfleet/watchtower/pkg/store"
)

// Registry is the authoritative agent-id → agent map.
type Registry struct {
	cfg       config.RegistryConfig
	sanitizer *sanitize.Sanitizer
	store     store.Store

	mu      sync.RWMutex
	agents  map[string]*entry
	parents map[string]string // agent id → parent id, for cycle checks and hierarchy
}

// entry pairs an agent's mutable state with its critical-section mutex.
type entry struct {
	mu      sync.Mutex
	deleted bool
	s       agentState
}

// agentState is the mutable representation behind a per-agent lock.
type agentState struct {
	id           string
	status       models.Status
	projectPath  string
	parentID     string
	context      map[string]any
	tags         []string
	created      time.Time
	lastActivity time.Time
	logs         *logRing
	lastTS       time.Time
	seq          int64
}

// New creates a registry and reconciles prior state from the store.
func New(ctx context.Context, cfg config.RegistryConfig, sanitizer *sanitize.Sanitizer, st store.Store) (*Registry, error) {
	r := &Registry{
		cfg:       cfg,
		sanitizer: sanitizer,
		store:     st,
		agents:    make(map[string]*entry),
		parents:   make(map[string]string),
	}

	persisted, err := st.LoadAgents(ctx)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	for _, a := range persisted {
		r.agents[a.ID] = r.rehydrate(a)
		if a.ParentID != "" {
			r.parents[a.ID] = a.ParentID
		}
	}
	if len(persisted) > 0 {
		slog.Info("Registry reconciled from store", "agents", len(persisted))
	}
	return r, nil
}

// rehydrate rebuilds an entry from a persisted snapshot.
func (r *Registry) rehydrate(a *models.Agent) *entry {
	e := &entry{s: agentState{
		id:           a.ID,
		status:       a.Status,
		projectPath:  a.ProjectPath,
		parentID:     a.ParentID,
		context:      a.Context,
		tags:         append([]string(nil), a.Tags...),
		created:      a.Created,
		lastActivity: a.LastActivity,
		logs:         newLogRing(r.cfg.MaxLogsPerAgent),
	}}
	if e.s.context == nil {
		e.s.context = make(map[string]any)
	}
	for _, le := range a.Logs {
		e.s.logs.append(le)
		if le.Sequence > e.s.seq {
			e.s.seq = le.Sequence
		}
		if ts, err := time.Parse(time.RFC3339Nano, le.Timestamp); err == nil && ts.After(e.s.lastTS) {
			e.s.lastTS = ts
		}
	}
	return e
}

// Register creates an agent with initial status Idle. Registration is
// idempotent: an existing id is returned unchanged apart from an info
// log entry noting the re-registration.
//
// An entry that loses the race with Delete between lookup and lock is
// retried: the id is gone from the map by then, so the next attempt
// creates a fresh agent instead of failing.
func (r *Registry) Register(ctx context.Context, req models.RegisterRequest) (*models.Agent, bool, error) {
	if req.ID == "" {
		return nil, false, NewValidationError("id", "required")
	}

	for {
		e, created, err := r.findOrCreate(req)
		if err != nil {
			return nil, false, err
		}
		snap, err := r.registerEntry(ctx, e, req, created)
		if errors.Is(err, errEntryDeleted) {
			continue
		}
		return snap, created, err
	}
}

func (r *Registry) registerEntry(ctx context.Context, e *entry, req models.RegisterRequest, created bool) (*models.Agent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, errEntryDeleted
	}

	if !created {
		r.appendLog(&e.s, models.LevelInfo, "agent re-registered", map[string]any{
			"project_path": req.ProjectPath,
		})
	}

	snap := snapshotState(&e.s)
	return snap, r.persist(ctx, snap)
}

// findOrCreate returns the entry for req.ID, creating it Idle if absent.
// Cycle prevention happens here, before any per-agent lock is taken.
func (r *Registry) findOrCreate(req models.RegisterRequest) (*entry, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.agents[req.ID]; ok {
		return e, false, nil
	}

	if req.ParentID != "" {
		if err := r.checkNoCycleLocked(req.ID, req.ParentID); err != nil {
			return nil, false, err
		}
	}

	now := time.Now().UTC()
	e := &entry{s: agentState{
		id:           req.ID,
		status:       models.StatusIdle,
		projectPath:  req.ProjectPath,
		parentID:     req.ParentID,
		context:      r.sanitizer.Map(req.Context),
		tags:         dedupeTags(req.Tags),
		created:      now,
		lastActivity: now,
		logs:         newLogRing(r.cfg.MaxLogsPerAgent),
	}}
	if e.s.context == nil {
		e.s.context = make(map[string]any)
	}
	r.agents[req.ID] = e
	if req.ParentID != "" {
		r.parents[req.ID] = req.ParentID
	}
	return e, true, nil
}

// checkNoCycleLocked walks the parent chain from parentID; if it reaches
// id the new edge would close a cycle. Dangling parents (chain ends at
// an unknown id) are tolerated. Caller holds r.mu.
func (r *Registry) checkNoCycleLocked(id, parentID string) error {
	seen := map[string]bool{id: true}
	cur := parentID
	for cur != "" {
		if seen[cur] {
			return NewValidationError("parent_id", "would create a cycle in the agent hierarchy")
		}
		seen[cur] = true
		cur = r.parents[cur]
	}
	return nil
}

// Update runs fn inside the agent's critical section and persists the
// resulting snapshot. Anything fn does — status changes, log appends,
// broadcaster publishes — is linearized with every other mutation of
// the same agent.
func (r *Registry) Update(ctx context.Context, id string, fn func(a *Agent) error) (*models.Agent, error) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	snap, err := r.updateEntry(ctx, e, fn)
	if errors.Is(err, errEntryDeleted) {
		return nil, ErrNotFound
	}
	return snap, err
}

// UpdateOrCreate is Update with auto-registration: a missing agent is
// created Idle from seed before fn runs. The router uses this so hook
// events may reference agents that do not exist yet — including an
// agent deleted concurrently between lookup and lock, which is retried
// and recreated rather than rejected.
func (r *Registry) UpdateOrCreate(ctx context.Context, seed models.RegisterRequest, fn func(a *Agent, created bool) error) (*models.Agent, error) {
	if seed.ID == "" {
		return nil, NewValidationError("id", "required")
	}
	for {
		e, created, err := r.findOrCreate(seed)
		if err != nil {
			return nil, err
		}
		snap, err := r.updateEntry(ctx, e, func(a *Agent) error { return fn(a, created) })
		if errors.Is(err, errEntryDeleted) {
			continue
		}
		return snap, err
	}
}

func (r *Registry) updateEntry(ctx context.Context, e *entry, fn func(a *Agent) error) (*models.Agent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, errEntryDeleted
	}

	a := &Agent{r: r, s: &e.s}
	if err := fn(a); err != nil {
		return nil, err
	}

	snap := snapshotState(&e.s)
	return snap, r.persist(ctx, snap)
}

// persist writes a snapshot through to the store. Failures come back as
// TransientError; the in-memory mutation stands either way.
func (r *Registry) persist(ctx context.Context, snap *models.Agent) error {
	if err := r.store.SaveAgent(ctx, snap); err != nil {
		slog.Warn("Store write failed; in-memory state remains authoritative",
			"agent_id", snap.ID, "error", err)
		return &TransientError{Err: err}
	}
	return nil
}

// Get returns a snapshot of one agent.
func (r *Registry) Get(id string) (*models.Agent, error) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	return snapshotState(&e.s), nil
}

// Logs returns up to limit log entries for an agent, newest-first.
func (r *Registry) Logs(id string, limit int) ([]models.LogEntry, error) {
	r.mu.RLock()
	e, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, ErrNotFound
	}
	return e.s.logs.newest(limit), nil
}

// Delete removes an agent and returns its final snapshot so the caller
// can publish exactly one tombstone. Waits for any in-flight mutation
// of the same agent to finish.
func (r *Registry) Delete(ctx context.Context, id string) (*models.Agent, error) {
	r.mu.Lock()
	e, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
		delete(r.parents, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	e.mu.Lock()
	e.deleted = true
	snap := snapshotState(&e.s)
	e.mu.Unlock()

	if err := r.store.DeleteAgent(ctx, id); err != nil {
		slog.Warn("Store delete failed; agent removed from memory regardless",
			"agent_id", id, "error", err)
		return snap, &TransientError{Err: err}
	}
	return snap, nil
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// appendLog assigns id, sequence, and a strictly increasing timestamp
// from the registry clock, then appends under the agent's ring cap.
// Caller holds the agent's critical section.
func (r *Registry) appendLog(s *agentState, level models.LogLevel, message string, metadata map[string]any) models.LogEntry {
	now := time.Now().UTC()
	if !now.After(s.lastTS) {
		now = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = now
	s.seq++

	e := models.LogEntry{
		ID:        uuid.New().String(),
		Timestamp: now.Format(time.RFC3339Nano),
		Sequence:  s.seq,
		Level:     level,
		Message:   message,
		Metadata:  r.sanitizer.Map(metadata),
	}
	s.logs.append(e)
	s.lastActivity = now
	return e
}

// snapshotState copies the mutable state into an immutable snapshot.
// Caller holds the agent's critical section.
func snapshotState(s *agentState) *models.Agent {
	ctx := make(map[string]any, len(s.context))
	for k, v := range s.context {
		ctx[k] = v
	}
	return &models.Agent{
		ID:           s.id,
		Status:       s.status,
		ProjectPath:  s.projectPath,
		ParentID:     s.parentID,
		Context:      ctx,
		Tags:         append([]string(nil), s.tags...),
		Created:      s.created,
		LastActivity: s.lastActivity,
		Logs:         s.logs.snapshot(),
	}
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
