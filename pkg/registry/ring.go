package registry

import "github.com/agentfleet/watchtower/pkg/models"

// logRing is a fixed-capacity ring of log entries. On overflow the
// oldest entry is evicted, never the newest. Not safe for concurrent
// use; callers hold the owning agent's critical section.
type logRing struct {
	buf   []models.LogEntry
	head  int // index of the oldest entry
	count int
}

func newLogRing(capacity int) *logRing {
	if capacity < 1 {
		capacity = 1
	}
	return &logRing{buf: make([]models.LogEntry, capacity)}
}

// append adds an entry, evicting the oldest when full. Reports whether
// an eviction happened.
func (r *logRing) append(e models.LogEntry) bool {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = e
		r.count++
		return false
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// snapshot returns the entries oldest-first.
func (r *logRing) snapshot() []models.LogEntry {
	if r.count == 0 {
		return nil
	}
	out := make([]models.LogEntry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// newest returns up to limit entries, newest-first.
func (r *logRing) newest(limit int) []models.LogEntry {
	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]models.LogEntry, 0, limit)
	for i := r.count - 1; i >= r.count-limit; i-- {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// truncate keeps only the newest keep entries. Safety net for the
// retention sweep; append already enforces the cap.
func (r *logRing) truncate(keep int) int {
	if keep < 0 {
		keep = 0
	}
	if r.count <= keep {
		return 0
	}
	dropped := r.count - keep
	r.head = (r.head + dropped) % len(r.buf)
	r.count = keep
	return dropped
}

func (r *logRing) len() int { return r.count }
