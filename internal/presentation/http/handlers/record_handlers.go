package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/AtRiskMedia/compliance-core/internal/application/services"
	"github.com/AtRiskMedia/compliance-core/internal/domain/records"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/loader"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// SaveRecordRequest is the body of a record upsert
type SaveRecordRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// RecordHandlers serves cached record reads and writes
type RecordHandlers struct {
	service *services.RecordService
	logger  *logging.ChanneledLogger
}

// NewRecordHandlers creates record handlers with injected dependencies
func NewRecordHandlers(service *services.RecordService, logger *logging.ChanneledLogger) *RecordHandlers {
	return &RecordHandlers{
		service: service,
		logger:  logger,
	}
}

// GetRecords returns records for ids=a,b,c or, without ids, one page of the listing
func (h *RecordHandlers) GetRecords(c *gin.Context) {
	if raw := c.Query("ids"); raw != "" {
		ids := strings.Split(raw, ",")
		found, err := h.service.GetByIDs(c.Request.Context(), ids)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"records": found,
			"count":   len(found),
		})
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be an integer"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pageSize must be an integer"})
		return
	}

	result, err := h.service.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		if errors.Is(err, loader.ErrInvalidPaginationArgs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SaveRecord upserts the record at :id and invalidates its cached copies
func (h *RecordHandlers) SaveRecord(c *gin.Context) {
	var req SaveRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	rec := &records.Record{
		ID:      c.Param("id"),
		OwnerID: req.OwnerID,
		Kind:    req.Kind,
		Payload: req.Payload,
	}
	if err := h.service.Save(c.Request.Context(), rec); err != nil {
		if errors.Is(err, services.ErrInvalidRecord) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.LogError(logging.ChannelDatabase, "save_record", err, map[string]any{"recordId": rec.ID})
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rec)
}
