// Package logging provides structured logging channels for the compliance core
// with per-channel levels and error-rate accounting.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Channel represents a logical logging channel for different system components
type Channel string

const (
	// System channels
	ChannelSystem   Channel = "system"   // General system operations
	ChannelStartup  Channel = "startup"  // Application startup and initialization
	ChannelShutdown Channel = "shutdown" // Application shutdown and draining

	// Core channels
	ChannelCache   Channel = "cache"   // Cache store and batch loader
	ChannelMetrics Channel = "metrics" // Metrics collection and persistence
	ChannelHealth  Channel = "health"  // Health check runs
	ChannelAlert   Channel = "alert"   // Alert evaluation and notification

	// Infrastructure channels
	ChannelDatabase  Channel = "database"    // Database operations and queries
	ChannelSlowQuery Channel = "slow-query"  // Slow database queries
	ChannelHTTP      Channel = "http"        // Inbound HTTP requests
	ChannelPerf      Channel = "performance" // Scheduler and job timings
)

var allChannels = []Channel{
	ChannelSystem, ChannelStartup, ChannelShutdown,
	ChannelCache, ChannelMetrics, ChannelHealth, ChannelAlert,
	ChannelDatabase, ChannelSlowQuery, ChannelHTTP, ChannelPerf,
}

// ChanneledLogger provides structured logging with multiple channels
type ChanneledLogger struct {
	channels map[Channel]*slog.Logger
	config   *LoggerConfig
	counter  *LevelCounter
	files    []*os.File
	mu       sync.RWMutex
}

// LoggerConfig contains configuration options for the channeled logger
type LoggerConfig struct {
	// Output configuration
	OutputToFile    bool      `json:"outputToFile"`    // Whether to write logs to files
	OutputToConsole bool      `json:"outputToConsole"` // Whether to write logs to console
	LogDirectory    string    `json:"logDirectory"`    // Directory for log files
	Output          io.Writer `json:"-"`               // Replaces console output when set

	// Broadcaster receives every record for live streaming when set
	Broadcaster *LogBroadcaster `json:"-"`

	// Formatting configuration
	JSONFormat    bool `json:"jsonFormat"`    // Use JSON format for structured logging
	IncludeSource bool `json:"includeSource"` // Include source file and line in logs

	// Level configuration per channel
	DefaultLevel  slog.Level             `json:"defaultLevel"`  // Default log level
	ChannelLevels map[Channel]slog.Level `json:"channelLevels"` // Per-channel log levels
}

// DefaultLoggerConfig returns a sensible default configuration
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		OutputToFile:    false,
		OutputToConsole: true,
		LogDirectory:    "logs",
		JSONFormat:      true,
		IncludeSource:   false,
		DefaultLevel:    slog.LevelInfo,
		ChannelLevels:   make(map[Channel]slog.Level),
	}
}

// NewChanneledLogger creates a new channeled logger with the given configuration
func NewChanneledLogger(config *LoggerConfig) (*ChanneledLogger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}
	if config.ChannelLevels == nil {
		config.ChannelLevels = make(map[Channel]slog.Level)
	}

	logger := &ChanneledLogger{
		channels: make(map[Channel]*slog.Logger),
		config:   config,
		counter:  NewLevelCounter(time.Hour),
	}

	if config.OutputToFile {
		if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	for _, channel := range allChannels {
		channelLogger, err := logger.createChannelLogger(channel)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger for channel %s: %w", channel, err)
		}
		logger.channels[channel] = channelLogger
	}

	return logger, nil
}

// NewDiscardLogger returns a logger that writes nowhere but still counts levels.
func NewDiscardLogger() *ChanneledLogger {
	cfg := DefaultLoggerConfig()
	cfg.Output = io.Discard
	cfg.DefaultLevel = slog.LevelDebug
	logger, _ := NewChanneledLogger(cfg)
	return logger
}

// createChannelLogger creates a slog.Logger for a specific channel
func (cl *ChanneledLogger) createChannelLogger(channel Channel) (*slog.Logger, error) {
	level := cl.config.DefaultLevel
	if channelLevel, exists := cl.config.ChannelLevels[channel]; exists {
		level = channelLevel
	}

	var writers []io.Writer

	switch {
	case cl.config.Output != nil:
		writers = append(writers, cl.config.Output)
	case cl.config.OutputToConsole:
		writers = append(writers, os.Stdout)
	}

	if cl.config.OutputToFile {
		path := filepath.Join(cl.config.LogDirectory, string(channel)+".log")

		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		cl.files = append(cl.files, file)
		writers = append(writers, file)
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = io.Discard
	case 1:
		writer = writers[0]
	default:
		writer = io.MultiWriter(writers...)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cl.config.IncludeSource,
	}

	var handler slog.Handler
	if cl.config.JSONFormat {
		handler = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}

	if cl.config.Broadcaster != nil {
		handler = &teeHandler{primary: handler, secondary: newBroadcastHandler(cl.config.Broadcaster, channel, level)}
	}

	return slog.New(cl.counter.Wrap(handler)).With(slog.String("channel", string(channel))), nil
}

func (cl *ChanneledLogger) System() *slog.Logger    { return cl.GetChannel(ChannelSystem) }
func (cl *ChanneledLogger) Startup() *slog.Logger   { return cl.GetChannel(ChannelStartup) }
func (cl *ChanneledLogger) Shutdown() *slog.Logger  { return cl.GetChannel(ChannelShutdown) }
func (cl *ChanneledLogger) Cache() *slog.Logger     { return cl.GetChannel(ChannelCache) }
func (cl *ChanneledLogger) Metrics() *slog.Logger   { return cl.GetChannel(ChannelMetrics) }
func (cl *ChanneledLogger) Health() *slog.Logger    { return cl.GetChannel(ChannelHealth) }
func (cl *ChanneledLogger) Alert() *slog.Logger     { return cl.GetChannel(ChannelAlert) }
func (cl *ChanneledLogger) Database() *slog.Logger  { return cl.GetChannel(ChannelDatabase) }
func (cl *ChanneledLogger) SlowQuery() *slog.Logger { return cl.GetChannel(ChannelSlowQuery) }
func (cl *ChanneledLogger) HTTP() *slog.Logger      { return cl.GetChannel(ChannelHTTP) }
func (cl *ChanneledLogger) Perf() *slog.Logger      { return cl.GetChannel(ChannelPerf) }

// GetChannel returns a logger for a specific channel
func (cl *ChanneledLogger) GetChannel(channel Channel) *slog.Logger {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	if logger, exists := cl.channels[channel]; exists {
		return logger
	}
	return cl.channels[ChannelSystem]
}

// WithOperation returns a logger with operation context
func (cl *ChanneledLogger) WithOperation(channel Channel, operation string) *slog.Logger {
	return cl.GetChannel(channel).With(slog.String("operation", operation))
}

// WithContext returns a logger with the request id carried by ctx, if any
func (cl *ChanneledLogger) WithContext(channel Channel, ctx context.Context) *slog.Logger {
	logger := cl.GetChannel(channel)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		logger = logger.With(slog.String("requestId", requestID))
	}
	return logger
}

type contextKey string

// RequestIDKey is the context key carrying the inbound request id.
const RequestIDKey contextKey = "requestId"

// LogSlowQuery logs a slow database query
func (cl *ChanneledLogger) LogSlowQuery(query string, duration time.Duration) {
	cl.SlowQuery().Warn("Slow query detected",
		slog.String("query", sanitizeQuery(query)),
		slog.Duration("duration", duration),
	)
}

// LogError logs an error with appropriate context and channel
func (cl *ChanneledLogger) LogError(channel Channel, operation string, err error, metadata map[string]any) {
	logger := cl.GetChannel(channel).With(
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)

	for key, value := range metadata {
		logger = logger.With(slog.Any(key, value))
	}

	logger.Error("Operation failed")
}

// LogStartupPhase logs application startup phases
func (cl *ChanneledLogger) LogStartupPhase(phase string, duration time.Duration, success bool) {
	logger := cl.Startup().With(
		slog.String("phase", phase),
		slog.Duration("duration", duration),
		slog.Bool("success", success),
	)

	if success {
		logger.Info("Startup phase completed")
	} else {
		logger.Error("Startup phase failed")
	}
}

// Counter exposes the level accounting shared by every channel.
func (cl *ChanneledLogger) Counter() *LevelCounter {
	return cl.counter
}

// Broadcaster returns the live stream broadcaster, or nil when streaming is off.
func (cl *ChanneledLogger) Broadcaster() *LogBroadcaster {
	return cl.config.Broadcaster
}

// sanitizeQuery flattens and truncates SQL for logging
func sanitizeQuery(query string) string {
	query = strings.ReplaceAll(query, "\n", " ")
	query = strings.ReplaceAll(query, "\t", " ")
	query = strings.Join(strings.Fields(query), " ")

	if len(query) > 500 {
		query = query[:500] + "..."
	}

	return query
}

// Close closes all file handles
func (cl *ChanneledLogger) Close() error {
	cl.System().Info("Channeled logger shutting down")

	cl.mu.Lock()
	defer cl.mu.Unlock()

	var firstErr error
	for _, f := range cl.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	cl.files = nil
	if cl.config.Broadcaster != nil {
		cl.config.Broadcaster.Shutdown()
	}
	return firstErr
}

// SetChannelLevel dynamically sets the log level for a specific channel
func (cl *ChanneledLogger) SetChannelLevel(channel Channel, level slog.Level) error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.channels[channel]; !exists {
		return fmt.Errorf("channel %s does not exist", channel)
	}

	cl.config.ChannelLevels[channel] = level

	newLogger, err := cl.createChannelLogger(channel)
	if err != nil {
		return fmt.Errorf("failed to recreate logger for channel %s: %w", channel, err)
	}
	cl.channels[channel] = newLogger

	cl.channels[ChannelSystem].Info("Channel log level updated dynamically",
		slog.String("channel", string(channel)),
		slog.String("level", level.String()),
	)

	return nil
}

// GetChannelLevels returns the current log levels for all channels.
func (cl *ChanneledLogger) GetChannelLevels() map[string]string {
	cl.mu.RLock()
	defer cl.mu.RUnlock()

	levels := make(map[string]string)
	for channel := range cl.channels {
		if level, ok := cl.config.ChannelLevels[channel]; ok {
			levels[string(channel)] = level.String()
		} else {
			levels[string(channel)] = cl.config.DefaultLevel.String()
		}
	}
	return levels
}
