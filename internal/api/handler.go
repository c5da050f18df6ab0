// Package api is the operator HTTP API: queue review, settings, sources,
// places, zone status and report ingest.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/pipeline"
	"github.com/yari4ek89/siverbotv2/internal/zones"
)

// Operator runs queue decisions.
type Operator interface {
	Approve(ctx context.Context, id int64) (*domain.QueueItem, error)
	Reject(ctx context.Context, id int64) (*domain.QueueItem, error)
	Original(ctx context.Context, id int64) (string, error)
}

// QueueReader reads the approval queue.
type QueueReader interface {
	Get(ctx context.Context, id int64) (*domain.QueueItem, error)
	List(ctx context.Context, status domain.QueueStatus, limit int) ([]*domain.QueueItem, error)
}

// SettingsStore reads and patches the runtime settings.
type SettingsStore interface {
	Get(ctx context.Context) (domain.Settings, error)
	Patch(ctx context.Context, p domain.SettingsPatch) (domain.Settings, error)
}

// SourceStore is the source allow-list.
type SourceStore interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, raw string) (string, error)
	Remove(ctx context.Context, raw string) error
}

// PlaceStore holds operator place keywords.
type PlaceStore interface {
	List(ctx context.Context, region domain.RegionID) ([]string, error)
	All(ctx context.Context) (map[domain.RegionID][]string, error)
	Add(ctx context.Context, region domain.RegionID, raw string) (string, error)
	Remove(ctx context.Context, region domain.RegionID, raw string) error
}

// PlaceReloader receives the full place set after every change.
type PlaceReloader interface {
	SetPlaces(places map[domain.RegionID][]string)
}

// ZoneMonitor exposes the zone poller.
type ZoneMonitor interface {
	Statuses(ctx context.Context) ([]zones.ZoneStatus, error)
	Tick(ctx context.Context) (zones.TickResult, error)
}

// Ingest runs the inbound pipeline.
type Ingest interface {
	Handle(ctx context.Context, in pipeline.Inbound) (pipeline.Decision, error)
	Inspect(text, source string, at time.Time) pipeline.Decision
}

// DedupFlusher clears the exact-key dedup table.
type DedupFlusher interface {
	Flush(ctx context.Context) error
}

// Pinger checks the database.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the handler's collaborators. Nil Metrics hides /metrics.
type Deps struct {
	Operator  Operator
	Queue     QueueReader
	Settings  SettingsStore
	Sources   SourceStore
	Places    PlaceStore
	Reloader  PlaceReloader
	Zones     ZoneMonitor
	Ingest    Ingest
	Dedup     DedupFlusher
	DB        Pinger
	Metrics   http.Handler
	JWTSecret string
	Now       func() time.Time
}

// Handler serves the API routes.
type Handler struct {
	deps Deps
}

// NewHandler creates a handler.
func NewHandler(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{deps: deps}
}

// Register mounts every route on r. The /api/v1 group requires a bearer
// token when a JWT secret is configured.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	if h.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.deps.Metrics))
	}

	v1 := r.Group("/api/v1")
	if h.deps.JWTSecret != "" {
		v1.Use(JWTMiddleware(h.deps.JWTSecret))
	}

	queue := v1.Group("/queue")
	queue.GET("", h.ListQueue)
	queue.GET("/:id", h.GetQueueItem)
	queue.GET("/:id/original", h.GetOriginal)
	queue.POST("/:id/approve", h.ApproveItem)
	queue.POST("/:id/reject", h.RejectItem)

	v1.GET("/settings", h.GetSettings)
	v1.PATCH("/settings", h.PatchSettings)

	v1.GET("/sources", h.ListSources)
	v1.POST("/sources", h.AddSource)
	v1.DELETE("/sources/:name", h.RemoveSource)

	v1.GET("/places/:region", h.ListPlaces)
	v1.POST("/places/:region", h.AddPlace)
	v1.DELETE("/places/:region/:name", h.RemovePlace)

	v1.GET("/zones", h.ListZones)
	v1.POST("/zones/poll", h.PollZones)

	v1.POST("/reports", h.IngestReport)
	v1.POST("/classify", h.Classify)
	v1.DELETE("/dedup", h.FlushDedup)
}

// Health reports database reachability.
func (h *Handler) Health(c *gin.Context) {
	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// respondError maps domain errors to status codes. Anything unknown is a 500
// and is attached to the context for the request log.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrNotPending),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoTarget),
		errors.Is(err, zones.ErrTickInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrInvalidRegion),
		errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrInvalidSetting),
		errors.Is(err, domain.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request payload",
		"details": err.Error(),
	})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid queue id"})
		return 0, false
	}
	return id, true
}
