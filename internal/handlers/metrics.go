package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/crewdeck/crewdeck/internal/metrics"
)

// MetricsHandler exposes the Prometheus scrape endpoint.
type MetricsHandler struct {
	metrics *metrics.Metrics
}

// NewMetricsHandler creates a metrics handler.
func NewMetricsHandler(m *metrics.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: m}
}

// Register mounts GET /metrics on the Echo instance.
func (h *MetricsHandler) Register(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
}
