package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/healthcheck"
	"github.com/memohai/docdesk/internal/metrics"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecksResponse is the response for GET /health/checks.
type HealthChecksResponse struct {
	Status string                    `json:"status"`
	Checks []healthcheck.CheckResult `json:"checks"`
}

// HealthHandler exposes runtime checks and Prometheus metrics.
type HealthHandler struct {
	logger  *slog.Logger
	checker healthcheck.Checker
}

func NewHealthHandler(log *slog.Logger, checker healthcheck.Checker) *HealthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HealthHandler{
		logger:  log.With(slog.String("handler", "health")),
		checker: checker,
	}
}

func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health/checks", h.Checks)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// Checks godoc
// @Summary Runtime checks of redis, storage and the model configuration
// @Tags health
// @Success 200 {object} HealthChecksResponse
// @Failure 503 {object} HealthChecksResponse
// @Router /health/checks [get]
func (h *HealthHandler) Checks(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthCheckTimeout)
	defer cancel()

	results := []healthcheck.CheckResult{}
	if h.checker != nil {
		results = h.checker.ListChecks(ctx)
	}
	overall := healthcheck.Overall(results)
	code := http.StatusOK
	if overall == healthcheck.StatusError {
		code = http.StatusServiceUnavailable
		h.logger.Warn("health checks failing", slog.Int("checks", len(results)))
	}
	return c.JSON(code, HealthChecksResponse{Status: overall, Checks: results})
}
