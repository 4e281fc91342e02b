package registry

import (
	"sort"
	"strings"
	"time"

	"github.com/agentfleet/watchtower/pkg/models"
)

// searchLogWindow is how many of an agent's newest log messages the
// substring search inspects.
const searchLogWindow = 100

// List returns a filtered, paged snapshot of agents. Snapshots are taken
// per agent; no per-agent lock is held across the whole scan.
func (r *Registry) List(params models.ListParams) models.ListResult {
	matched := make([]*models.Agent, 0)
	for _, snap := range r.snapshotAll() {
		if params.ProjectPath != "" && snap.ProjectPath != params.ProjectPath {
			continue
		}
		if params.Status != "" && snap.Status != params.Status {
			continue
		}
		if params.ParentID != "" && snap.ParentID != params.ParentID {
			continue
		}
		if params.Tag != "" && !snap.HasTag(params.Tag) {
			continue
		}
		if params.Search != "" && !matchesSearch(snap, params.Search) {
			continue
		}
		matched = append(matched, snap)
	}

	// Newest activity first; id breaks ties so pagination is stable.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastActivity.Equal(matched[j].LastActivity) {
			return matched[i].LastActivity.After(matched[j].LastActivity)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if params.Offset > 0 {
		if params.Offset >= total {
			matched = nil
		} else {
			matched = matched[params.Offset:]
		}
	}
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}
	return models.ListResult{Agents: matched, Total: total}
}

// Search returns agents whose id, tags, or recent log messages contain
// the query substring (case-insensitive).
func (r *Registry) Search(query string) []*models.Agent {
	return r.List(models.ListParams{Search: query}).Agents
}

// matchesSearch checks id, tags, and the newest searchLogWindow log
// messages for a case-insensitive substring match.
func matchesSearch(a *models.Agent, query string) bool {
	q := strings.ToLower(query)
	if strings.Contains(strings.ToLower(a.ID), q) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	logs := a.Logs
	if len(logs) > searchLogWindow {
		logs = logs[len(logs)-searchLogWindow:]
	}
	for _, le := range logs {
		if strings.Contains(strings.ToLower(le.Message), q) {
			return true
		}
	}
	return false
}

// Hierarchy returns the parent→children adjacency for the subtree
// rooted at rootID, or the entire forest when rootID is empty. Cycles
// in stored parent references (possible only via corrupt store data)
// truncate the affected branch instead of looping.
func (r *Registry) Hierarchy(rootID string) (*models.Hierarchy, error) {
	r.mu.RLock()
	exists := make(map[string]bool, len(r.agents))
	for id := range r.agents {
		exists[id] = true
	}
	parents := make(map[string]string, len(r.parents))
	for id, pid := range r.parents {
		parents[id] = pid
	}
	r.mu.RUnlock()

	if rootID != "" && !exists[rootID] {
		return nil, ErrNotFound
	}

	children := make(map[string][]string)
	var roots []string
	for id := range exists {
		pid := parents[id]
		if pid != "" && exists[pid] {
			children[pid] = append(children[pid], id)
		} else {
			// No parent, or a dangling reference — treated as a root.
			roots = append(roots, id)
		}
	}
	for _, c := range children {
		sort.Strings(c)
	}
	sort.Strings(roots)

	h := &models.Hierarchy{RootID: rootID, Children: make(map[string][]string)}
	if rootID == "" {
		h.Roots = roots
		h.Children = children
		return h, nil
	}

	// Subtree walk with a visited set; a cycle truncates its branch.
	h.Roots = []string{rootID}
	visited := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range children[cur] {
			if visited[child] {
				continue
			}
			visited[child] = true
			h.Children[cur] = append(h.Children[cur], child)
			queue = append(queue, child)
		}
	}
	return h, nil
}

// ExpireCandidates returns ids eligible for retention deletion: agents
// in Complete past completedTTL, and any agent idle past idleTTL
// (idleTTL of zero disables idle expiration).
func (r *Registry) ExpireCandidates(now time.Time, completedTTL, idleTTL time.Duration) []string {
	var ids []string
	for _, snap := range r.snapshotAll() {
		idle := now.Sub(snap.LastActivity)
		if snap.Status == models.StatusComplete && idle > completedTTL {
			ids = append(ids, snap.ID)
			continue
		}
		if idleTTL > 0 && idle > idleTTL {
			ids = append(ids, snap.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// TruncateLogs re-applies the per-agent log cap. Appends already
// enforce it; the retention sweep calls this as a safety net. Returns
// the total number of dropped entries.
func (r *Registry) TruncateLogs(max int) int {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	dropped := 0
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			dropped += e.s.logs.truncate(max)
		}
		e.mu.Unlock()
	}
	return dropped
}

// snapshotAll copies every agent. Per-agent locks are taken one at a
// time, never nested.
func (r *Registry) snapshotAll() []*models.Agent {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]*models.Agent, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, snapshotState(&e.s))
		}
		e.mu.Unlock()
	}
	return out
}
