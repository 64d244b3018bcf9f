package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ProgressHandler reports the counters of the current run.
type ProgressHandler struct {
	source ProgressSource
}

// NewProgressHandler creates a ProgressHandler.
func NewProgressHandler(source ProgressSource) *ProgressHandler {
	return &ProgressHandler{source: source}
}

// Get handles GET /api/v1/progress.
func (h *ProgressHandler) Get(c *gin.Context) {
	if h.source == nil {
		respondError(c, http.StatusNotFound, ErrCodeNotFound, "no run in this process")
		return
	}

	c.JSON(http.StatusOK, h.source.Snapshot())
}
