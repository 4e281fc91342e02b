package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentfleet/watchtower/pkg/registry"
)

// mapRegistryError maps registry-layer errors to HTTP error responses.
func mapRegistryError(err error) *echo.HTTPError {
	var validErr *registry.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, registry.ErrInvalidTransition) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status transition")
	}
	if errors.Is(err, registry.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}
	if registry.IsTransient(err) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store backend unavailable")
	}

	// Unexpected error
	slog.Error("Unexpected registry error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
