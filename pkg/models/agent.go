// Package models defines the domain types shared across the registry,
// router, API, and streaming layers.
package models

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a monitored agent.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusActive   Status = "active"
	StatusHandoff  Status = "handoff"
	StatusError    Status = "error"
	StatusComplete Status = "complete"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusActive, StatusHandoff, StatusError, StatusComplete:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle. Error is recoverable
// (a restarted agent moves back to active); only Complete is final.
// Terminal agents may still receive late log appends, which extend
// retention.
func (s Status) Terminal() bool {
	return s == StatusComplete
}

// StatusValidator returns an error for unknown status values. Kept as a
// free function so API parameter validation reads the same as enum
// validation elsewhere.
func StatusValidator(s Status) error {
	if !s.Valid() {
		return fmt.Errorf("invalid status: %q", s)
	}
	return nil
}

// Agent is an immutable snapshot of a monitored coding session. The
// registry hands out copies; mutations happen only inside the
// registry's per-agent critical section.
type Agent struct {
	ID           string         `json:"id"`
	Status       Status         `json:"status"`
	ProjectPath  string         `json:"project_path,omitempty"`
	ParentID     string         `json:"parent_id,omitempty"`
	Context      map[string]any `json:"context,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	Created      time.Time      `json:"created"`
	LastActivity time.Time      `json:"last_activity"`
	Logs         []LogEntry     `json:"logs,omitempty"`
}

// HasTag reports whether the agent carries the given tag.
func (a *Agent) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RegisterRequest is the input for explicit agent registration.
type RegisterRequest struct {
	ID          string         `json:"id"`
	ProjectPath string         `json:"project_path,omitempty"`
	ParentID    string         `json:"parent_id,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
}

// ListParams filters and pages GET /agents.
type ListParams struct {
	ProjectPath string
	Status      Status
	ParentID    string
	Tag         string
	Search      string
	Limit       int
	Offset      int
}

// ListResult is a page of agents plus the unpaged match count.
type ListResult struct {
	Agents []*Agent `json:"agents"`
	Total  int      `json:"total"`
}

// Hierarchy is the parent→children adjacency for a subtree (or the
// whole forest when RootID is empty). Roots lists agents without a
// parent present in the map.
type Hierarchy struct {
	RootID   string              `json:"root_id,omitempty"`
	Roots    []string            `json:"roots"`
	Children map[string][]string `json:"children"`
}
