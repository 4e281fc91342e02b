// Package api exposes the HTTP surface: hook event ingestion, agent
// queries and commands, the WebSocket subscriber endpoint, health, and
// Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agentfleet/watchtower/pkg/config"
	"github.com/agentfleet/watchtower/pkg/events"
	"github.com/agentfleet/watchtower/pkg/metrics"
	"github.com/agentfleet/watchtower/pkg/registry"
	"github.com/agentfleet/watchtower/pkg/router"
	"github.com/agentfleet/watchtower/pkg/store"
)

// Server is the HTTP server.
type Server struct {
	cfg         *config.Config
	router      *router.Router
	reg         *registry.Registry
	broadcaster *events.Broadcaster
	connManager *events.ConnectionManager
	store       store.Store
	rec         *metrics.Recorder
	started     time.Time

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the handlers and middleware onto a fresh echo
// instance.
func NewServer(
	cfg *config.Config,
	rt *router.Router,
	reg *registry.Registry,
	b *events.Broadcaster,
	connManager *events.ConnectionManager,
	st store.Store,
	rec *metrics.Recorder,
) *Server {
	s := &Server{
		cfg:         cfg,
		router:      rt,
		reg:         reg,
		broadcaster: b,
		connManager: connManager,
		store:       st,
		rec:         rec,
		started:     time.Now(),
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(requestLogger())

	e.GET("/health", s.healthHandler)
	e.GET("/metrics", func(c *echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/ws", s.wsHandler)

	g := e.Group("/api/v1")
	g.POST("/events", s.ingestHandler)
	g.POST("/agents", s.registerAgentHandler)
	g.GET("/agents", s.listAgentsHandler)
	g.GET("/agents/hierarchy", s.hierarchyHandler)
	g.GET("/agents/hierarchy/:id", s.hierarchyHandler)
	g.GET("/agents/search/:query", s.searchHandler)
	g.GET("/agents/:id", s.getAgentHandler)
	g.DELETE("/agents/:id", s.deleteAgentHandler)
	g.PATCH("/agents/:id/status", s.setStatusHandler)
	g.PATCH("/agents/:id/context", s.mergeContextHandler)
	g.POST("/agents/:id/logs", s.appendLogHandler)
	g.GET("/agents/:id/logs", s.getLogsHandler)

	s.echo = e
	return s
}

// Handler returns the HTTP handler, for tests that want an
// httptest.Server over the full route table.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
