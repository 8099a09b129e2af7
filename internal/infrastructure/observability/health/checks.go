package health

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/metrics"
)

// Thresholds shared by the battery.
const (
	latencyHealthy = 100 * time.Millisecond
	latencyWarning = 500 * time.Millisecond

	usageHealthy = 0.70
	usageWarning = 0.85

	errorRateHealthy = 0.01
	errorRateWarning = 0.05
)

func classifyLatency(d time.Duration) Status {
	switch {
	case d < latencyHealthy:
		return StatusHealthy
	case d < latencyWarning:
		return StatusWarning
	default:
		return StatusCritical
	}
}

func classifyRatio(ratio, healthy, warning float64) Status {
	switch {
	case ratio < healthy:
		return StatusHealthy
	case ratio < warning:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// probeCheck times a single round trip against the primary dependency.
type probeCheck struct {
	name  string
	probe func(ctx context.Context) error
}

// NewDatabaseCheck reports reachability of the primary store via Ping.
func NewDatabaseCheck(p telemetry.Prober) Check {
	return &probeCheck{name: "database", probe: p.Ping}
}

// NewLatencyCheck times a cheap representative query.
func NewLatencyCheck(p telemetry.Prober) Check {
	return &probeCheck{name: "latency", probe: p.ProbeQuery}
}

func (c *probeCheck) Name() string { return c.name }

func (c *probeCheck) Run(ctx context.Context) HealthCheckResult {
	start := time.Now()
	err := c.probe(ctx)
	elapsed := time.Since(start)

	result := HealthCheckResult{ResponseTimeMs: durationMs(elapsed), Timestamp: time.Now().UTC()}
	if err != nil {
		result.Status = StatusCritical
		result.Details = fmt.Errorf("%w: %v", ErrDependencyUnavailable, err).Error()
		return result
	}
	result.Status = classifyLatency(elapsed)
	result.Details = fmt.Sprintf("round trip %s", elapsed.Round(time.Microsecond))
	return result
}

// MemoryCheck compares process memory obtained from the OS with the limit.
type MemoryCheck struct {
	limitBytes uint64
	read       func() (used, limit uint64)
}

// NewMemoryCheck uses the runtime soft memory limit when one is set and
// fallbackLimitBytes otherwise.
func NewMemoryCheck(fallbackLimitBytes uint64) *MemoryCheck {
	c := &MemoryCheck{limitBytes: fallbackLimitBytes}
	c.read = c.readRuntime
	return c
}

func (c *MemoryCheck) readRuntime() (uint64, uint64) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	limit := c.limitBytes
	if soft := debug.SetMemoryLimit(-1); soft > 0 && soft < math.MaxInt64 {
		limit = uint64(soft)
	}
	return memStats.Sys, limit
}

func (c *MemoryCheck) Name() string { return "memory" }

func (c *MemoryCheck) Run(ctx context.Context) HealthCheckResult {
	start := time.Now()
	used, limit := c.read()
	if limit == 0 {
		return HealthCheckResult{Status: StatusWarning, Details: "no memory limit configured", Timestamp: time.Now().UTC()}
	}

	ratio := float64(used) / float64(limit)
	return HealthCheckResult{
		Status:         classifyRatio(ratio, usageHealthy, usageWarning),
		ResponseTimeMs: durationMs(time.Since(start)),
		Details:        fmt.Sprintf("%.1f%% of %d MB", ratio*100, limit/(1024*1024)),
		Timestamp:      time.Now().UTC(),
	}
}

// CPUCheck estimates CPU utilization across all cores since its previous run.
type CPUCheck struct {
	mu       sync.Mutex
	lastWall time.Time
	lastCPU  time.Duration
	cores    int
	sample   func() (time.Time, time.Duration)
}

// NewCPUCheck starts measuring from now.
func NewCPUCheck() *CPUCheck {
	c := &CPUCheck{
		cores: runtime.NumCPU(),
		sample: func() (time.Time, time.Duration) {
			return time.Now(), metrics.TakeSnapshot().CPUTime
		},
	}
	c.lastWall, c.lastCPU = c.sample()
	return c
}

func (c *CPUCheck) Name() string { return "cpu" }

func (c *CPUCheck) Run(ctx context.Context) HealthCheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall, cpu := c.sample()
	elapsed := wall.Sub(c.lastWall)
	used := cpu - c.lastCPU
	c.lastWall, c.lastCPU = wall, cpu

	if elapsed <= 0 || c.cores < 1 {
		return HealthCheckResult{Status: StatusHealthy, Details: "no interval to measure", Timestamp: wall.UTC()}
	}

	ratio := float64(used) / (float64(elapsed) * float64(c.cores))
	return HealthCheckResult{
		Status:    classifyRatio(ratio, usageHealthy, usageWarning),
		Details:   fmt.Sprintf("%.1f%% across %d cores over %s", ratio*100, c.cores, elapsed.Round(time.Millisecond)),
		Timestamp: wall.UTC(),
	}
}

// ErrorRateCheck reads the share of error-level log records in the trailing hour.
type ErrorRateCheck struct {
	counts func() logging.LevelCounts
}

// NewErrorRateCheck reads counts from the shared level counter.
func NewErrorRateCheck(counter *logging.LevelCounter) *ErrorRateCheck {
	return &ErrorRateCheck{counts: counter.Counts}
}

func (c *ErrorRateCheck) Name() string { return "error_rate" }

func (c *ErrorRateCheck) Run(ctx context.Context) HealthCheckResult {
	counts := c.counts()
	return HealthCheckResult{
		Status:    classifyRatio(counts.ErrorRate, errorRateHealthy, errorRateWarning),
		Details:   fmt.Sprintf("%d of %d log entries at error level (%.2f%%)", counts.Errors, counts.Total, counts.ErrorRate*100),
		Timestamp: time.Now().UTC(),
	}
}

// CacheCheck warns when the store has been full with a low hit rate for a
// sustained window. The hit rate is measured over the lookups since the
// previous run; a run with no lookups keeps the last measured rate. It never
// reports critical.
type CacheCheck struct {
	stats  func() stores.Stats
	floor  float64
	window time.Duration
	now    func() time.Time

	mu             sync.Mutex
	saturatedSince time.Time
	lastHits       int64
	lastMisses     int64
	lastRate       float64
}

// NewCacheCheck watches store against the hit-rate floor.
func NewCacheCheck(store *stores.TaggedStore, hitRateFloor float64, window time.Duration) *CacheCheck {
	return &CacheCheck{
		stats:    store.Stats,
		floor:    hitRateFloor,
		window:   window,
		now:      time.Now,
		lastRate: 1,
	}
}

func (c *CacheCheck) Name() string { return "cache" }

func (c *CacheCheck) Run(ctx context.Context) HealthCheckResult {
	stats := c.stats()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	hits, misses := stats.Hits-c.lastHits, stats.Misses-c.lastMisses
	c.lastHits, c.lastMisses = stats.Hits, stats.Misses
	if total := hits + misses; total > 0 {
		c.lastRate = float64(hits) / float64(total)
	}
	rate := c.lastRate

	saturated := stats.EntryCount >= stats.MaxEntries && rate < c.floor
	if !saturated {
		c.saturatedSince = time.Time{}
		return HealthCheckResult{
			Status:    StatusHealthy,
			Details:   fmt.Sprintf("%d/%d entries, recent hit rate %.1f%%", stats.EntryCount, stats.MaxEntries, rate*100),
			Timestamp: now.UTC(),
		}
	}

	if c.saturatedSince.IsZero() {
		c.saturatedSince = now
	}
	held := now.Sub(c.saturatedSince)
	status := StatusHealthy
	if held >= c.window {
		status = StatusWarning
	}
	return HealthCheckResult{
		Status: status,
		Details: fmt.Sprintf("full at %d entries with recent hit rate %.1f%% below %.1f%% for %s",
			stats.MaxEntries, rate*100, c.floor*100, held.Round(time.Second)),
		Timestamp: now.UTC(),
	}
}
