package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/alerts"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

type fakeTrends struct {
	err   error
	calls int
}

func (f *fakeTrends) QueryAggregates(ctx context.Context, r telemetry.TimeRange) (*telemetry.Trend, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &telemetry.Trend{
		Range:         r,
		Points:        []telemetry.TrendPoint{{Requests: 4, Errors: 1, AvgResponseMs: 20}},
		TotalRequests: 4,
		TotalErrors:   1,
		AvgResponseMs: 20,
	}, nil
}

type fakeHealth struct {
	status health.SystemHealthStatus
	ok     bool
	panics bool
}

func (f *fakeHealth) Latest() (health.SystemHealthStatus, bool) {
	if f.panics {
		panic("history corrupted")
	}
	return f.status, f.ok
}

type fakeAlerts struct {
	active []alerts.Alert
	panics bool
}

func (f *fakeAlerts) Active() []alerts.Alert {
	if f.panics {
		panic("alert store gone")
	}
	return f.active
}

type fakeCache struct{}

func (fakeCache) Stats() stores.Stats { return stores.Stats{EntryCount: 3, MaxEntries: 10} }

func newAggregator(trends *fakeTrends, h *fakeHealth, a *fakeAlerts) *Aggregator {
	return NewAggregator(trends, h, a, fakeCache{}, Config{
		QueryTimeout:    time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, logging.NewDiscardLogger())
}

func healthyStatus() health.SystemHealthStatus {
	return health.SystemHealthStatus{Overall: health.OverallHealthy, Score: 100, LastCheck: time.Now()}
}

func TestAggregateCombinesEveryPart(t *testing.T) {
	agg := newAggregator(
		&fakeTrends{},
		&fakeHealth{status: healthyStatus(), ok: true},
		&fakeAlerts{active: []alerts.Alert{{ID: alerts.IDSlowResponses, Severity: alerts.SeverityWarning}}},
	)

	view, err := agg.Aggregate(context.Background(), telemetry.RangeDay)
	require.NoError(t, err)

	assert.Equal(t, telemetry.RangeDay, view.Range)
	assert.Equal(t, int64(4), view.Trend.TotalRequests)
	require.NotNil(t, view.Health)
	assert.Equal(t, health.OverallHealthy, view.Health.Overall)
	assert.False(t, view.HealthStale)
	assert.Len(t, view.Alerts, 1)
	require.NotNil(t, view.Cache)
	assert.Equal(t, 3, view.Cache.EntryCount)
	assert.Empty(t, view.Degraded)
}

func TestAggregateDefaultsToLastHour(t *testing.T) {
	agg := newAggregator(&fakeTrends{}, &fakeHealth{status: healthyStatus(), ok: true}, &fakeAlerts{})

	view, err := agg.Aggregate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, telemetry.RangeHour, view.Range)
	assert.NotNil(t, view.Alerts)
}

func TestAggregateRejectsUnknownRange(t *testing.T) {
	agg := newAggregator(&fakeTrends{}, &fakeHealth{}, &fakeAlerts{})

	_, err := agg.Aggregate(context.Background(), "90d")
	assert.ErrorIs(t, err, telemetry.ErrInvalidTimeRange)
}

func TestStoreFailureSubstitutesEmptyTrend(t *testing.T) {
	agg := newAggregator(
		&fakeTrends{err: errors.New("database is locked")},
		&fakeHealth{status: healthyStatus(), ok: true},
		&fakeAlerts{active: []alerts.Alert{{ID: "x"}}},
	)

	view, err := agg.Aggregate(context.Background(), telemetry.RangeWeek)
	require.NoError(t, err)

	assert.Equal(t, []string{PartTrend}, view.Degraded)
	assert.Equal(t, telemetry.RangeWeek, view.Trend.Range)
	assert.Empty(t, view.Trend.Points)
	assert.NotNil(t, view.Health, "other parts are unaffected")
	assert.Len(t, view.Alerts, 1)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	trends := &fakeTrends{err: errors.New("unreachable")}
	agg := newAggregator(trends, &fakeHealth{status: healthyStatus(), ok: true}, &fakeAlerts{})

	for i := 0; i < 4; i++ {
		view, err := agg.Aggregate(context.Background(), telemetry.RangeHour)
		require.NoError(t, err)
		assert.Contains(t, view.Degraded, PartTrend)
	}

	assert.Equal(t, 2, trends.calls, "open breaker short-circuits the store")
	assert.Equal(t, "open", agg.BreakerState())
}

func TestHealthFallsBackToLastKnown(t *testing.T) {
	h := &fakeHealth{status: healthyStatus(), ok: true}
	agg := newAggregator(&fakeTrends{}, h, &fakeAlerts{})

	_, err := agg.Aggregate(context.Background(), telemetry.RangeHour)
	require.NoError(t, err)

	h.panics = true
	view, err := agg.Aggregate(context.Background(), telemetry.RangeHour)
	require.NoError(t, err)

	require.NotNil(t, view.Health)
	assert.Equal(t, health.OverallHealthy, view.Health.Overall)
	assert.True(t, view.HealthStale)
	assert.Equal(t, []string{PartHealth}, view.Degraded)
}

func TestHealthWithoutAnyRun(t *testing.T) {
	agg := newAggregator(&fakeTrends{}, &fakeHealth{}, &fakeAlerts{})

	view, err := agg.Aggregate(context.Background(), telemetry.RangeHour)
	require.NoError(t, err)
	assert.Nil(t, view.Health)
	assert.True(t, view.HealthStale)
	assert.Equal(t, []string{PartHealth}, view.Degraded)
}

func TestAlertFailureDegradesOnlyAlerts(t *testing.T) {
	agg := newAggregator(&fakeTrends{}, &fakeHealth{status: healthyStatus(), ok: true}, &fakeAlerts{panics: true})

	view, err := agg.Aggregate(context.Background(), telemetry.RangeHour)
	require.NoError(t, err)
	assert.Equal(t, []string{PartAlerts}, view.Degraded)
	assert.Empty(t, view.Alerts)
	assert.Equal(t, int64(4), view.Trend.TotalRequests)
}
