package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/agentfleet/watchtower/pkg/models"
)

// registerAgentHandler handles POST /api/v1/agents.
// 201 on create, 200 on idempotent re-register.
func (s *Server) registerAgentHandler(c *echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}

	agent, created, err := s.router.Register(c.Request().Context(), models.RegisterRequest{
		ID:          req.ID,
		ProjectPath: req.ProjectPath,
		ParentID:    req.ParentID,
		Context:     req.Context,
		Tags:        req.Tags,
	})
	if err != nil {
		return mapRegistryError(err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return c.JSON(status, agent)
}

// listAgentsHandler handles GET /api/v1/agents.
func (s *Server) listAgentsHandler(c *echo.Context) error {
	params := models.ListParams{
		ProjectPath: c.QueryParam("projectPath"),
		ParentID:    c.QueryParam("parentId"),
		Tag:         c.QueryParam("tag"),
		Search:      c.QueryParam("search"),
	}

	if v := c.QueryParam("status"); v != "" {
		st := models.Status(v)
		if err := models.StatusValidator(st); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+v)
		}
		params.Status = st
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		params.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		params.Offset = n
	}

	return c.JSON(http.StatusOK, s.reg.List(params))
}

// getAgentHandler handles GET /api/v1/agents/:id.
func (s *Server) getAgentHandler(c *echo.Context) error {
	agent, err := s.reg.Get(c.Param("id"))
	if err != nil {
		return mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// deleteAgentHandler handles DELETE /api/v1/agents/:id.
// 204 on success; the tombstone goes out on the agent and firehose
// topics.
func (s *Server) deleteAgentHandler(c *echo.Context) error {
	if err := s.router.DeleteAgent(c.Request().Context(), c.Param("id"), "api"); err != nil {
		return mapRegistryError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// setStatusHandler handles PATCH /api/v1/agents/:id/status.
// Invalid transitions are a 400; the agent keeps its current status.
func (s *Server) setStatusHandler(c *echo.Context) error {
	var req setStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	next := models.Status(req.Status)
	if err := models.StatusValidator(next); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+req.Status)
	}

	agent, err := s.router.SetStatus(c.Request().Context(), c.Param("id"), next)
	if err != nil {
		return mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// mergeContextHandler handles PATCH /api/v1/agents/:id/context.
func (s *Server) mergeContextHandler(c *echo.Context) error {
	var req mergeContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Context == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "context is required")
	}

	agent, err := s.router.MergeContext(c.Request().Context(), c.Param("id"), req.Context)
	if err != nil {
		return mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, agent)
}

// appendLogHandler handles POST /api/v1/agents/:id/logs.
func (s *Server) appendLogHandler(c *echo.Context) error {
	var req appendLogRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	level := models.LogLevel(req.Level)
	if req.Level == "" {
		level = models.LevelInfo
	} else if err := models.LevelValidator(level); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid level: "+req.Level)
	}

	agent, err := s.router.AppendLog(c.Request().Context(), c.Param("id"), level, req.Message, req.Metadata)
	if err != nil {
		return mapRegistryError(err)
	}
	return c.JSON(http.StatusCreated, agent.Logs[len(agent.Logs)-1])
}

// getLogsHandler handles GET /api/v1/agents/:id/logs, newest-first.
func (s *Server) getLogsHandler(c *echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}

	id := c.Param("id")
	logs, err := s.reg.Logs(id, limit)
	if err != nil {
		return mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, logsResponse{AgentID: id, Logs: logs, Count: len(logs)})
}

// hierarchyHandler handles GET /api/v1/agents/hierarchy and
// GET /api/v1/agents/hierarchy/:id.
func (s *Server) hierarchyHandler(c *echo.Context) error {
	h, err := s.reg.Hierarchy(c.Param("id"))
	if err != nil {
		return mapRegistryError(err)
	}
	return c.JSON(http.StatusOK, h)
}

// searchHandler handles GET /api/v1/agents/search/:query.
func (s *Server) searchHandler(c *echo.Context) error {
	query := c.Param("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query is required")
	}
	agents := s.reg.Search(query)
	return c.JSON(http.StatusOK, searchResponse{Query: query, Agents: agents, Total: len(agents)})
}
