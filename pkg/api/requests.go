package api

// registerRequest is the body of POST /api/v1/agents.
type registerRequest struct {
	ID          string         `json:"id"`
	ProjectPath string         `json:"projectPath"`
	ParentID    string         `json:"parentId"`
	Context     map[string]any `json:"context"`
	Tags        []string       `json:"tags"`
}

// setStatusRequest is the body of PATCH /api/v1/agents/:id/status.
type setStatusRequest struct {
	Status string `json:"status"`
}

// mergeContextRequest is the body of PATCH /api/v1/agents/:id/context.
type mergeContextRequest struct {
	Context map[string]any `json:"context"`
}

// appendLogRequest is the body of POST /api/v1/agents/:id/logs.
type appendLogRequest struct {
	Level    string         `json:"level"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}
