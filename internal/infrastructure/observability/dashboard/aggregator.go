// Package dashboard composes the read-side view served to operators: the
// trailing metrics trend, the latest health snapshot and the active alerts.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/alerts"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

var errNoHealthRun = errors.New("no health run recorded yet")

// Parts of the view that can degrade independently.
const (
	PartTrend  = "trend"
	PartHealth = "health"
	PartAlerts = "alerts"
	PartCache  = "cache"
)

// TrendSource reads bucketed aggregates from the durable store.
type TrendSource interface {
	QueryAggregates(ctx context.Context, r telemetry.TimeRange) (*telemetry.Trend, error)
}

// HealthSource returns the most recent health run, if any.
type HealthSource interface {
	Latest() (health.SystemHealthStatus, bool)
}

// AlertSource lists the active alerts.
type AlertSource interface {
	Active() []alerts.Alert
}

// CacheSource reports cache store effectiveness.
type CacheSource interface {
	Stats() stores.Stats
}

// Config bounds the trend query.
type Config struct {
	QueryTimeout    time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// NewConfig reads the dashboard settings from the central config package.
func NewConfig() Config {
	return Config{
		QueryTimeout:    config.HealthCheckTimeout * 2,
		BreakerFailures: uint32(config.DashboardBreakerFailures),
		BreakerTimeout:  config.DashboardBreakerTimeout,
	}
}

// SystemMetrics is the combined view. Degraded lists the parts that were
// replaced by defaults; an empty list means every upstream answered.
type SystemMetrics struct {
	Range       telemetry.TimeRange        `json:"range"`
	Trend       *telemetry.Trend           `json:"trend"`
	Health      *health.SystemHealthStatus `json:"health"`
	HealthStale bool                       `json:"healthStale"`
	Alerts      []alerts.Alert             `json:"alerts"`
	Cache       *stores.Stats              `json:"cache,omitempty"`
	Degraded    []string                   `json:"degraded"`
	GeneratedAt time.Time                  `json:"generatedAt"`
}

// Aggregator builds SystemMetrics. It never writes to its sources.
type Aggregator struct {
	trends  TrendSource
	health  HealthSource
	alerts  AlertSource
	cache   CacheSource
	breaker *gobreaker.CircuitBreaker
	config  Config
	logger  *logging.ChanneledLogger
	now     func() time.Time

	mu         sync.Mutex
	lastHealth *health.SystemHealthStatus
}

// NewAggregator creates an aggregator. cache may be nil.
func NewAggregator(trends TrendSource, healthSource HealthSource, alertSource AlertSource, cache CacheSource, cfg Config, logger *logging.ChanneledLogger) *Aggregator {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 5 * time.Second
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}

	a := &Aggregator{
		trends: trends,
		health: healthSource,
		alerts: alertSource,
		cache:  cache,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dashboard-trend",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Metrics().Warn("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})
	return a
}

// BreakerState reports the trend query breaker state.
func (a *Aggregator) BreakerState() string {
	return a.breaker.State().String()
}

// Aggregate composes the view for r. Only an unknown range is an error;
// upstream failures degrade the affected part.
func (a *Aggregator) Aggregate(ctx context.Context, r telemetry.TimeRange) (*SystemMetrics, error) {
	r, err := telemetry.ParseTimeRange(string(r))
	if err != nil {
		return nil, err
	}

	view := &SystemMetrics{
		Range:       r,
		Degraded:    []string{},
		GeneratedAt: a.now().UTC(),
	}

	view.Trend = a.trend(ctx, r, view)
	view.Health, view.HealthStale = a.latestHealth(view)
	view.Alerts = a.activeAlerts(view)
	if a.cache != nil {
		if stats, err := guard(a.cache.Stats); err != nil {
			a.degrade(view, PartCache, err)
		} else {
			view.Cache = &stats
		}
	}

	return view, nil
}

func (a *Aggregator) trend(ctx context.Context, r telemetry.TimeRange, view *SystemMetrics) *telemetry.Trend {
	queryCtx, cancel := context.WithTimeout(ctx, a.config.QueryTimeout)
	defer cancel()

	result, err := a.breaker.Execute(func() (trend interface{}, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("recovered panic: %v", rec)
			}
		}()
		return a.trends.QueryAggregates(queryCtx, r)
	})
	if err != nil {
		a.degrade(view, PartTrend, err)
		return telemetry.EmptyTrend(r)
	}
	trend, _ := result.(*telemetry.Trend)
	if trend == nil {
		return telemetry.EmptyTrend(r)
	}
	return trend
}

func (a *Aggregator) latestHealth(view *SystemMetrics) (*health.SystemHealthStatus, bool) {
	type latest struct {
		status health.SystemHealthStatus
		ok     bool
	}
	got, err := guard(func() latest {
		status, ok := a.health.Latest()
		return latest{status, ok}
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	if err == nil && got.ok {
		status := got.status
		a.lastHealth = &status
		return &status, false
	}

	if err == nil {
		err = errNoHealthRun
	}
	a.degrade(view, PartHealth, err)
	if a.lastHealth == nil {
		return nil, true
	}
	status := *a.lastHealth
	return &status, true
}

func (a *Aggregator) activeAlerts(view *SystemMetrics) []alerts.Alert {
	active, err := guard(a.alerts.Active)
	if err != nil {
		a.degrade(view, PartAlerts, err)
		return []alerts.Alert{}
	}
	if active == nil {
		return []alerts.Alert{}
	}
	return active
}

func (a *Aggregator) degrade(view *SystemMetrics, part string, err error) {
	view.Degraded = append(view.Degraded, part)
	a.logger.Metrics().Warn("Dashboard part degraded", "part", part, "error", err.Error())
}

// guard runs fn and turns a panic into an error so one broken source cannot
// fail the whole view.
func guard[T any](fn func() T) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return fn(), nil
}
