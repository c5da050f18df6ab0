package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListZones returns every configured zone with its state.
func (h *Handler) ListZones(c *gin.Context) {
	statuses, err := h.deps.Zones.Statuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zones": statuses, "count": len(statuses)})
}

// PollZones runs one poller tick now.
func (h *Handler) PollZones(c *gin.Context) {
	res, err := h.deps.Zones.Tick(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
