package handlers

import (
	"net/http"
	"strings"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/loader"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// InvalidateRequest names either a raw tag or an entity id to invalidate.
type InvalidateRequest struct {
	Tag      string `json:"tag"`
	EntityID string `json:"entityId"`
}

// CacheHandlers exposes cache statistics and manual invalidation
type CacheHandlers struct {
	store  *stores.TaggedStore
	loader *loader.BatchLoader
	logger *logging.ChanneledLogger
}

// NewCacheHandlers creates cache handlers with injected dependencies
func NewCacheHandlers(store *stores.TaggedStore, batchLoader *loader.BatchLoader, logger *logging.ChanneledLogger) *CacheHandlers {
	return &CacheHandlers{
		store:  store,
		loader: batchLoader,
		logger: logger,
	}
}

// GetStats returns store and loader counters
func (h *CacheHandlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"store":  h.store.Stats(),
		"loader": h.loader.Stats(),
	})
}

// Invalidate drops every entry under the requested tag
func (h *CacheHandlers) Invalidate(c *gin.Context) {
	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	req.Tag = strings.TrimSpace(req.Tag)
	req.EntityID = strings.TrimSpace(req.EntityID)

	var removed int
	switch {
	case req.Tag != "" && req.EntityID != "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "specify either tag or entityId, not both"})
		return
	case req.Tag != "":
		removed = h.store.InvalidateByTag(req.Tag)
	case req.EntityID != "":
		removed = h.loader.InvalidateEntity(req.EntityID)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag or entityId is required"})
		return
	}

	h.logger.Cache().Info("Manual cache invalidation", "tag", req.Tag, "entityId", req.EntityID, "removed", removed)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
