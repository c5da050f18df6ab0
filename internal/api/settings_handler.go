package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yari4ek89/siverbotv2/internal/domain"
)

type nameRequest struct {
	Name string `binding:"required" json:"name"`
}

// GetSettings returns the current settings.
func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.deps.Settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// PatchSettings changes the fields present in the body.
func (h *Handler) PatchSettings(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, err)
		return
	}
	s, err := h.deps.Settings.Patch(c.Request.Context(), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ListSources lists the source allow-list.
func (h *Handler) ListSources(c *gin.Context) {
	names, err := h.deps.Sources.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"sources": names, "count": len(names)})
}

// AddSource allows a source.
func (h *Handler) AddSource(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name, err := h.deps.Sources.Add(c.Request.Context(), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"source": name})
}

// RemoveSource removes a source.
func (h *Handler) RemoveSource(c *gin.Context) {
	if err := h.deps.Sources.Remove(c.Request.Context(), c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func regionParam(c *gin.Context) (domain.RegionID, bool) {
	region, err := domain.ParseRegion(c.Param("region"))
	if err != nil {
		respondError(c, err)
		return "", false
	}
	return region, true
}

// ListPlaces lists a region's operator place keywords.
func (h *Handler) ListPlaces(c *gin.Context) {
	region, ok := regionParam(c)
	if !ok {
		return
	}
	names, err := h.deps.Places.List(c.Request.Context(), region)
	if err != nil {
		respondError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"region": region, "places": names, "count": len(names)})
}

// AddPlace stores a keyword and reloads the classifier.
func (h *Handler) AddPlace(c *gin.Context) {
	region, ok := regionParam(c)
	if !ok {
		return
	}
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	name, err := h.deps.Places.Add(c.Request.Context(), region, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	if !h.reloadPlaces(c) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"region": region, "place": name})
}

// RemovePlace deletes a keyword and reloads the classifier.
func (h *Handler) RemovePlace(c *gin.Context) {
	region, ok := regionParam(c)
	if !ok {
		return
	}
	if err := h.deps.Places.Remove(c.Request.Context(), region, c.Param("name")); err != nil {
		respondError(c, err)
		return
	}
	if !h.reloadPlaces(c) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) reloadPlaces(c *gin.Context) bool {
	if h.deps.Reloader == nil {
		return true
	}
	all, err := h.deps.Places.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return false
	}
	h.deps.Reloader.SetPlaces(all)
	return true
}
