package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentfleet/watchtower/pkg/ingest"
)

// maxEventBody bounds a single event envelope. Hook payloads are small;
// anything past this is garbage or abuse.
const maxEventBody = 1 << 20

// ingestHandler handles POST /api/v1/events.
//
// A structurally valid envelope is always accepted (202) even when the
// domain action was a no-op; 400 only for malformed envelopes. Handling
// is bounded by the ingestion deadline and at-most-once: on deadline,
// whatever already committed stays committed.
func (s *Server) ingestHandler(c *echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxEventBody))
	if err != nil {
		s.rec.EventRejected()
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	env, err := ingest.Parse(body)
	if err != nil {
		s.rec.EventRejected()
		return mapRegistryError(err)
	}
	ev, err := ingest.Normalize(env)
	if err != nil {
		s.rec.EventRejected()
		return mapRegistryError(err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.cfg.Registry.IngestionDeadline)
	defer cancel()

	if err := s.router.HandleEvent(ctx, ev); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "ingestion deadline exceeded")
		}
		return mapRegistryError(err)
	}

	return c.JSON(http.StatusAccepted, acceptedResponse{
		Status: "accepted",
		Kind:   string(ev.Kind),
	})
}
