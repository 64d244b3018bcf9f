// Package api serves the threadline status endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	store      HealthChecker
	completion CompletionHealth
	log        *logrus.Logger
	version    string
	startTime  time.Time
}

// NewHealthHandler creates a HealthHandler. Either dependency may be nil.
func NewHealthHandler(store HealthChecker, completion CompletionHealth, log *logrus.Logger, version string) *HealthHandler {
	return &HealthHandler{
		store:      store,
		completion: completion,
		log:        log,
		version:    version,
		startTime:  time.Now(),
	}
}

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness handles GET /api/v1/health. It never touches dependencies.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Readiness handles GET /api/v1/ready. The database is required; an
// unreachable completion server only degrades readiness.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "completion": "ok"}

	if h.store == nil {
		checks["database"] = "not_configured"
	} else if err := h.store.HealthCheck(ctx); err != nil {
		h.log.WithError(err).Error("readiness: database health check failed")
		checks["database"] = "error"
	}

	if h.completion == nil {
		checks["completion"] = "not_configured"
	} else if err := h.completion.Health(ctx); err != nil {
		h.log.WithError(err).Warn("readiness: completion health check failed")
		checks["completion"] = "degraded"
	}

	if checks["database"] != "ok" {
		c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not_ready", Checks: checks})
		return
	}

	c.JSON(http.StatusOK, readinessResponse{Status: "ready", Checks: checks})
}
