package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"certmap/internal/service"
)

const defaultKeepAlive = 25 * time.Second

// EventsHandler streams document status changes as Server-Sent Events.
type EventsHandler struct {
	documentService service.DocumentService
	keepAlive       time.Duration
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(documentService service.DocumentService) *EventsHandler {
	return &EventsHandler{documentService: documentService, keepAlive: defaultKeepAlive}
}

// Subscribe handles GET /api/v1/subscribe/:id
// @Summary Subscribe to status events
// @Description Server-Sent Events stream. The first "status" event carries the current state; a "ping" event is sent while idle.
// @Tags events
// @Produce text/event-stream
// @Param id path string true "Document ID (UUID)"
// @Success 200 {object} domain.StatusEvent "event: status"
// @Failure 404 {object} ErrorResponseBody "Document not found"
// @Security BearerAuth
// @Router /subscribe/{id} [get]
func (h *EventsHandler) Subscribe(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	events, cancel, err := h.documentService.Subscribe(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	done := c.Request.Context().Done()
	c.Stream(func(_ io.Writer) bool {
		select {
		case ev, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("status", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-done:
			return false
		}
	})
}
