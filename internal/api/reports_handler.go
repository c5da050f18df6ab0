package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yari4ek89/siverbotv2/internal/pipeline"
)

type reportRequest struct {
	Source    string     `binding:"required" json:"source"`
	Text      string     `binding:"required" json:"text"`
	Timestamp *time.Time `json:"timestamp"`
}

// IngestReport feeds one report through the inbound pipeline.
func (h *Handler) IngestReport(c *gin.Context) {
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	in := pipeline.Inbound{Source: req.Source, Text: req.Text, Transport: "api"}
	if req.Timestamp != nil {
		in.At = req.Timestamp.UTC()
	}

	d, err := h.deps.Ingest.Handle(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

type classifyRequest struct {
	Text   string `binding:"required" json:"text"`
	Source string `json:"source"`
}

// Classify shows what the pipeline would do with a text, without routing it.
func (h *Handler) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d := h.deps.Ingest.Inspect(req.Text, req.Source, h.deps.Now())
	c.JSON(http.StatusOK, gin.H{"decision": d, "dedup_key": pipeline.DedupKey(d.Report)})
}

// FlushDedup clears the exact-key dedup table.
func (h *Handler) FlushDedup(c *gin.Context) {
	if err := h.deps.Dedup.Flush(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
