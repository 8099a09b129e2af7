package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

// Check is one member of the battery. Run must honor ctx; the engine also
// abandons a check that overruns its timeout.
type Check interface {
	Name() string
	Run(ctx context.Context) HealthCheckResult
}

// Listener is notified after every scored run.
type Listener interface {
	OnHealthStatus(ctx context.Context, status SystemHealthStatus)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, status SystemHealthStatus)

func (f ListenerFunc) OnHealthStatus(ctx context.Context, status SystemHealthStatus) {
	f(ctx, status)
}

// Config holds the engine settings.
type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	HistorySize int
	StartedAt   time.Time
}

// NewConfig reads the engine settings from the central config package.
func NewConfig(startedAt time.Time) Config {
	return Config{
		Interval:    config.HealthCheckInterval,
		Timeout:     config.HealthCheckTimeout,
		HistorySize: config.HealthHistorySize,
		StartedAt:   startedAt,
	}
}

// Engine runs the battery concurrently and records every scored run.
type Engine struct {
	checks  []Check
	config  Config
	history *History
	logger  *logging.ChanneledLogger
	now     func() time.Time

	mu        sync.RWMutex
	listeners []Listener
}

// NewEngine creates an engine over checks, run in the given order.
func NewEngine(checks []Check, cfg Config, logger *logging.ChanneledLogger) *Engine {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Engine{
		checks:  checks,
		config:  cfg,
		history: NewHistory(cfg.HistorySize),
		logger:  logger,
		now:     time.Now,
	}
}

// AddListener registers l for every subsequent run.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

// Interval is the scheduled run period.
func (e *Engine) Interval() time.Duration {
	return e.config.Interval
}

// History exposes the bounded snapshot history.
func (e *Engine) History() *History {
	return e.history
}

// Latest returns the most recent snapshot, if any run has completed.
func (e *Engine) Latest() (SystemHealthStatus, bool) {
	return e.history.Latest()
}

// Run executes every check concurrently, scores the results and records the
// snapshot. A failing or hung check affects only its own result. A run cut
// short by ctx is returned but neither recorded nor passed to listeners, so
// shutdown does not read as an outage.
func (e *Engine) Run(ctx context.Context) SystemHealthStatus {
	start := e.now()
	results := make([]HealthCheckResult, len(e.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range e.checks {
		i, check := i, check
		g.Go(func() error {
			results[i] = e.runCheck(gctx, check)
			return ctx.Err()
		})
	}
	interrupted := g.Wait()

	score := Score(results)
	status := SystemHealthStatus{
		Overall:   Bucket(score),
		Score:     score,
		Checks:    results,
		LastCheck: e.now(),
	}
	status.Uptime = status.LastCheck.Sub(e.config.StartedAt)
	status.UptimeSeconds = status.Uptime.Seconds()

	if interrupted != nil {
		e.logger.Health().Warn("Health check run interrupted, result discarded", "error", interrupted.Error())
		return status
	}
	e.history.Add(status)

	logger := e.logger.Health().With("overall", status.Overall, "score", status.Score, "duration", e.now().Sub(start))
	switch status.Overall {
	case OverallCritical:
		logger.Error("System health critical", "failing", failingComponents(results))
	case OverallDegraded:
		logger.Warn("System health degraded", "failing", failingComponents(results))
	default:
		logger.Debug("Health check run completed")
	}

	e.mu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.mu.RUnlock()
	for _, l := range listeners {
		l.OnHealthStatus(ctx, status)
	}
	return status
}

// runCheck bounds check by the configured timeout and converts timeouts,
// panics and malformed statuses into a critical result.
func (e *Engine) runCheck(ctx context.Context, check Check) HealthCheckResult {
	name := check.Name()
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	start := e.now()
	done := make(chan HealthCheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- HealthCheckResult{Status: StatusCritical, Details: fmt.Sprintf("check panicked: %v", r)}
			}
		}()
		done <- check.Run(ctx)
	}()

	var result HealthCheckResult
	select {
	case result = <-done:
	case <-ctx.Done():
		result = HealthCheckResult{
			Status:         StatusCritical,
			ResponseTimeMs: durationMs(e.now().Sub(start)),
			Details:        fmt.Sprintf("%v after %s", ErrCheckTimeout, e.config.Timeout),
		}
		e.logger.Health().Warn("Health check timed out", "component", name, "timeout", e.config.Timeout)
	}

	result.Component = name
	if !result.Status.Valid() {
		result.Details = fmt.Sprintf("invalid status %q: %s", result.Status, result.Details)
		result.Status = StatusCritical
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = e.now().UTC()
	}
	return result
}

func failingComponents(results []HealthCheckResult) []string {
	var failing []string
	for _, r := range results {
		if r.Status != StatusHealthy {
			failing = append(failing, r.Component)
		}
	}
	return failing
}

func durationMs(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
