package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"http-bridge-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the version and the active translation policy.
func (h *HealthHandler) Status(c echo.Context) error {
	upstream := h.cfg.Upstream.BaseURL
	if upstream == "" {
		upstream = "same-destination"
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":                  "ok",
		"version":                 string(h.version),
		"upstream_url":            upstream,
		"decode_content_encoding": strconv.FormatBool(h.cfg.Bridge.Decode()),
		"forward_error_body":      strconv.FormatBool(h.cfg.Bridge.ForwardErrorBody),
	})
}
