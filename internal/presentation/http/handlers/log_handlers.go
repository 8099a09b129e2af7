package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

const maxLogEntries = 500

// LogEntryReader reads persisted log entries, newest first.
type LogEntryReader interface {
	RecentLogEntries(ctx context.Context, category string, limit int) ([]telemetry.LogEntry, error)
}

// LogHandlers inspects and adjusts channel log levels at runtime and serves
// persisted and live log entries
type LogHandlers struct {
	logger  *logging.ChanneledLogger
	entries LogEntryReader
}

// NewLogHandlers creates log handlers with injected dependencies
func NewLogHandlers(logger *logging.ChanneledLogger, entries LogEntryReader) *LogHandlers {
	return &LogHandlers{logger: logger, entries: entries}
}

// parseLevel maps the level names accepted by the log endpoints.
func parseLevel(name string) (slog.Level, bool) {
	switch name {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// GetLogLevels handles GET /api/v1/logs/levels - returns current log levels for all channels.
func (h *LogHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, h.logger.GetChannelLevels())
}

// SetLogLevel handles POST /api/v1/logs/levels - sets the log level for a specific channel.
func (h *LogHandlers) SetLogLevel(c *gin.Context) {
	var req struct {
		Channel string `json:"channel" binding:"required"`
		Level   string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	level, ok := parseLevel(req.Level)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}

	if err := h.logger.SetChannelLevel(logging.Channel(req.Channel), level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to set log level", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": fmt.Sprintf("Log level for channel '%s' set to '%s'", req.Channel, req.Level)})
}

// GetLogEntries handles GET /api/v1/logs/entries - returns persisted entries of one category (default "alert").
func (h *LogHandlers) GetLogEntries(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > maxLogEntries {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be between 1 and %d", maxLogEntries)})
		return
	}

	entries, err := h.entries.RecentLogEntries(c.Request.Context(), c.DefaultQuery("category", "alert"), limit)
	if err != nil {
		h.logger.LogError(logging.ChannelDatabase, "recent_log_entries", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// StreamLogs handles GET /api/v1/logs/stream - streams matching log records as server-sent events.
func (h *LogHandlers) StreamLogs(c *gin.Context) {
	level, ok := parseLevel(c.DefaultQuery("level", "INFO"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid log level specified"})
		return
	}

	broadcaster := h.logger.Broadcaster()
	if broadcaster == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Log streaming is disabled"})
		return
	}
	filters := logging.AppliedFilters{
		Channel: logging.Channel(c.DefaultQuery("channel", string(logging.ChannelAll))),
		Level:   level,
	}

	client := broadcaster.NewClient(filters)
	if !broadcaster.RegisterClient(client) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Log streaming is shutting down"})
		return
	}
	defer broadcaster.UnregisterClient(client)

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
		case message, open := <-client.Channel:
			if !open {
				return false
			}
			fmt.Fprintf(w, "data: %s\n\n", message)
			return true
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			return true
		}
	})
}
