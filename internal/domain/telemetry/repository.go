// Package telemetry defines the metric, log and trend entities shared by the
// observability pipeline and the contracts of its durable store.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidTimeRange is returned for a time range outside 1h, 24h, 7d and 30d.
var ErrInvalidTimeRange = errors.New("invalid time range")

// MetricSample is one instrumented operation. Immutable once built.
// MemoryMB is the heap change over the operation and goes negative when a GC
// ran in between; CPUMs is the process CPU time consumed meanwhile.
type MetricSample struct {
	ID             string    `json:"id"`
	Route          string    `json:"route"`
	Method         string    `json:"method"`
	ResponseTimeMs float64   `json:"responseTimeMs"`
	StatusCode     int       `json:"statusCode"`
	MemoryMB       float64   `json:"memoryMb"`
	CPUMs          float64   `json:"cpuMs"`
	Timestamp      time.Time `json:"timestamp"`
}

// IsError reports whether the sample counts toward the error rate.
func (s MetricSample) IsError() bool {
	return s.StatusCode >= 500
}

// LogEntry is a persisted operational record, used for alerts.
type LogEntry struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"createdAt"`
}

// TimeRange selects the trailing window of a dashboard view.
type TimeRange string

const (
	RangeHour  TimeRange = "1h"
	RangeDay   TimeRange = "24h"
	RangeWeek  TimeRange = "7d"
	RangeMonth TimeRange = "30d"
)

// ParseTimeRange validates s. An empty string selects the last hour.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(s) {
	case "":
		return RangeHour, nil
	case RangeHour, RangeDay, RangeWeek, RangeMonth:
		return TimeRange(s), nil
	}
	return "", ErrInvalidTimeRange
}

// Duration is the length of the trailing window.
func (r TimeRange) Duration() time.Duration {
	switch r {
	case RangeDay:
		return 24 * time.Hour
	case RangeWeek:
		return 7 * 24 * time.Hour
	case RangeMonth:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// BucketSize is the trend granularity for the range.
func (r TimeRange) BucketSize() time.Duration {
	switch r {
	case RangeDay:
		return time.Hour
	case RangeWeek, RangeMonth:
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// TrendPoint aggregates the samples of one bucket.
type TrendPoint struct {
	Bucket        time.Time `json:"bucket"`
	Requests      int64     `json:"requests"`
	Errors        int64     `json:"errors"`
	AvgResponseMs float64   `json:"avgResponseMs"`
	AvgMemoryMB   float64   `json:"avgMemoryMb"`
}

// Trend is the bucketed history for a range plus its totals.
type Trend struct {
	Range         TimeRange    `json:"range"`
	Points        []TrendPoint `json:"points"`
	TotalRequests int64        `json:"totalRequests"`
	TotalErrors   int64        `json:"totalErrors"`
	AvgResponseMs float64      `json:"avgResponseMs"`
}

// EmptyTrend is the safe default substituted when the store is unreachable.
func EmptyTrend(r TimeRange) *Trend {
	return &Trend{Range: r, Points: []TrendPoint{}}
}

// Repository is the durable store for metric batches and log entries.
type Repository interface {
	// InsertMetricsBatch writes every sample in one call. Re-inserting an
	// already stored sample must not fail.
	InsertMetricsBatch(ctx context.Context, samples []MetricSample) error

	// InsertLogEntry appends a log entry.
	InsertLogEntry(ctx context.Context, entry LogEntry) error

	// QueryAggregates returns the bucketed trend for the trailing range.
	QueryAggregates(ctx context.Context, r TimeRange) (*Trend, error)
}

// Prober is the primary dependency consulted by the reachability and latency checks.
type Prober interface {
	// Ping is a single lightweight round trip.
	Ping(ctx context.Context) error

	// ProbeQuery runs a cheap representative query.
	ProbeQuery(ctx context.Context) error
}
