package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"route-proxy-go/internal/router"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	snapshot *router.Snapshot
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(snap *router.Snapshot, v Version) *HealthHandler {
	return &HealthHandler{snapshot: snap, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	st := h.snapshot.Load()
	return c.JSON(http.StatusOK, map[string]any{
		"status":           "ok",
		"version":          string(h.version),
		"routes":           st.Table.Len(),
		"routes_loaded_at": st.LoadedAt.UTC().Format(time.RFC3339),
	})
}
