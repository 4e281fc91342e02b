package api

import "github.com/agentfleet/watchtower/pkg/models"

// acceptedResponse acknowledges an ingested event.
type acceptedResponse struct {
	Status string `json:"status"`
	Kind   string `json:"kind"`
}

// logsResponse is the body of GET /api/v1/agents/:id/logs.
type logsResponse struct {
	AgentID string            `json:"agent_id"`
	Logs    []models.LogEntry `json:"logs"`
	Count   int               `json:"count"`
}

// searchResponse is the body of GET /api/v1/agents/search/:query.
type searchResponse struct {
	Query  string          `json:"query"`
	Agents []*models.Agent `json:"agents"`
	Total  int             `json:"total"`
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Agents        int    `json:"agents"`
	Subscribers   int    `json:"subscribers"`
	Store         string `json:"store"`
}
