package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/queue"
)

const maxListLimit = 100

// ListQueue lists items in ?status= (pending by default), newest first.
func (h *Handler) ListQueue(c *gin.Context) {
	limit := queue.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	status := domain.QueueStatus(c.DefaultQuery("status", string(domain.StatusPending)))
	items, err := h.deps.Queue.List(c.Request.Context(), status, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// GetQueueItem returns one item in any status.
func (h *Handler) GetQueueItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.deps.Queue.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetOriginal returns the item's raw source text.
func (h *Handler) GetOriginal(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	text, err := h.deps.Operator.Original(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "raw_text": text})
}

// ApproveItem publishes a pending item to the target channel.
func (h *Handler) ApproveItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.deps.Operator.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// RejectItem closes a pending item.
func (h *Handler) RejectItem(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := h.deps.Operator.Reject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}
