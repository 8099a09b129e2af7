// Package handlers provides HTTP handlers for the observability and record endpoints
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/application/services"
	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/alerts"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// ObservabilityHandlers serves the dashboard, health and alert endpoints
type ObservabilityHandlers struct {
	service     *services.ObservabilityService
	broadcaster messaging.Broadcaster
	logger      *logging.ChanneledLogger
}

// NewObservabilityHandlers creates observability handlers with injected dependencies
func NewObservabilityHandlers(service *services.ObservabilityService, broadcaster messaging.Broadcaster, logger *logging.ChanneledLogger) *ObservabilityHandlers {
	return &ObservabilityHandlers{
		service:     service,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// GetSystemMetrics returns the dashboard view for the requested range
func (h *ObservabilityHandlers) GetSystemMetrics(c *gin.Context) {
	start := time.Now()
	timeRange := c.DefaultQuery("range", string(telemetry.RangeHour))

	view, err := h.service.GetSystemMetrics(c.Request.Context(), timeRange)
	if err != nil {
		if errors.Is(err, telemetry.ErrInvalidTimeRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.logger.Perf().Debug("System metrics served", "range", view.Range, "degraded", view.Degraded, "duration", time.Since(start))
	c.JSON(http.StatusOK, view)
}

// GetHealth returns the latest health report. A critical system answers 503
// so load balancers can act on it.
func (h *ObservabilityHandlers) GetHealth(c *gin.Context) {
	report := h.service.GetHealthReport(c.Request.Context())

	status := http.StatusOK
	if report.Status == health.OverallCritical {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// GetHealthHistory returns the bounded history of health runs, oldest first
func (h *ObservabilityHandlers) GetHealthHistory(c *gin.Context) {
	history := h.service.GetHealthHistory()
	c.JSON(http.StatusOK, gin.H{
		"history": history,
		"count":   len(history),
	})
}

// GetAlerts returns active alerts, and the history when history=true
func (h *ObservabilityHandlers) GetAlerts(c *gin.Context) {
	includeHistory := c.Query("history") == "true"
	active, history := h.service.ListAlerts(includeHistory)

	body := gin.H{
		"alerts": active,
		"count":  len(active),
	}
	if includeHistory {
		body["history"] = history
	}
	c.JSON(http.StatusOK, body)
}

// CreateAlert raises a manual alert
func (h *ObservabilityHandlers) CreateAlert(c *gin.Context) {
	var req alerts.AlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	alert, err := h.service.CreateAlert(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, alerts.ErrInvalidAlert) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, alert)
}

// ResolveAlert resolves an active alert by id
func (h *ObservabilityHandlers) ResolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.ResolveAlert(c.Request.Context(), id); err != nil {
		if errors.Is(err, services.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved", "id": id})
}

// StreamAlerts pushes newly raised alerts to the client as server-sent events
func (h *ObservabilityHandlers) StreamAlerts(c *gin.Context) {
	ch := h.broadcaster.AddClient()
	defer h.broadcaster.RemoveClient(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(c.Writer, ": connection established\n\n")
	c.Writer.Flush()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message := <-ch:
			io.WriteString(w, message)
			return true
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			return true
		}
	})
}
