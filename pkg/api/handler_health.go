package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentfleet/watchtower/pkg/version"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
)

// healthHandler handles GET /health.
//
// The store is write-behind and in-memory state stays authoritative, so
// a down store degrades the report but never fails it; the process is
// still fully serving.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := healthStatusHealthy
	storeStatus := healthStatusHealthy
	if err := s.store.Ping(reqCtx); err != nil {
		status = healthStatusDegraded
		storeStatus = "unreachable: " + err.Error()
	}

	return c.JSON(http.StatusOK, healthResponse{
		Status:        status,
		Version:       version.Full(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Agents:        s.reg.Count(),
		Subscribers:   s.broadcaster.SubscriberCount(),
		Store:         storeStatus,
	})
}
