package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Pinger is satisfied by *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// QueueStats reports background queue depth.
type QueueStats interface {
	Pending() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db    Pinger
	queue QueueStats
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, queue QueueStats) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

// Liveness handles GET /healthz
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness handles GET /readyz
// @Summary Readiness probe
// @Description Reports database reachability and the number of queued documents
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /readyz [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database not reachable"})
		return
	}
	resp := gin.H{"status": "ok"}
	if h.queue != nil {
		resp["queue_pending"] = h.queue.Pending()
	}
	c.JSON(http.StatusOK, resp)
}
