package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
)

var fixedNow = time.Date(2026, 4, 10, 12, 30, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SQLTelemetryRepository {
	t.Helper()
	logger := logging.NewDiscardLogger()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := database.NewConnectionWithLogger(database.DriverSQLite, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewSchemaCreator().CreateSchema(context.Background(), db))

	repo := NewSQLTelemetryRepository(db, logger)
	repo.now = func() time.Time { return fixedNow }
	return repo
}

func sample(id string, status int, ms float64, at time.Time) telemetry.MetricSample {
	return telemetry.MetricSample{
		ID:             id,
		Route:          "/api/v1/records",
		Method:         "GET",
		ResponseTimeMs: ms,
		StatusCode:     status,
		MemoryMB:       64,
		Timestamp:      at,
	}
}

func countSamples(t *testing.T, repo *SQLTelemetryRepository) int {
	t.Helper()
	var n int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM metrics_samples`).Scan(&n))
	return n
}

func TestInsertMetricsBatchIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	batch := []telemetry.MetricSample{
		sample("a", 200, 10, fixedNow.Add(-time.Minute)),
		sample("b", 500, 30, fixedNow.Add(-time.Minute)),
	}
	require.NoError(t, repo.InsertMetricsBatch(ctx, batch))
	require.NoError(t, repo.InsertMetricsBatch(ctx, batch), "a retried batch must not fail")
	assert.Equal(t, 2, countSamples(t, repo))

	require.NoError(t, repo.InsertMetricsBatch(ctx, nil))
}

func TestQueryAggregatesBucketsTrailingRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertMetricsBatch(ctx, []telemetry.MetricSample{
		sample("1", 200, 10, time.Date(2026, 4, 10, 12, 1, 0, 0, time.UTC)),
		sample("2", 503, 30, time.Date(2026, 4, 10, 12, 3, 0, 0, time.UTC)),
		sample("3", 200, 20, time.Date(2026, 4, 10, 12, 11, 0, 0, time.UTC)),
		sample("old", 500, 99, fixedNow.Add(-2*time.Hour)),
	}))

	trend, err := repo.QueryAggregates(ctx, telemetry.RangeHour)
	require.NoError(t, err)

	require.Len(t, trend.Points, 2)
	assert.Equal(t, time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC), trend.Points[0].Bucket)
	assert.Equal(t, int64(2), trend.Points[0].Requests)
	assert.Equal(t, int64(1), trend.Points[0].Errors)
	assert.InDelta(t, 20.0, trend.Points[0].AvgResponseMs, 0.001)
	assert.Equal(t, time.Date(2026, 4, 10, 12, 10, 0, 0, time.UTC), trend.Points[1].Bucket)

	assert.Equal(t, int64(3), trend.TotalRequests)
	assert.Equal(t, int64(1), trend.TotalErrors)
	assert.InDelta(t, 20.0, trend.AvgResponseMs, 0.001)

	day, err := repo.QueryAggregates(ctx, telemetry.RangeDay)
	require.NoError(t, err)
	assert.Equal(t, int64(4), day.TotalRequests)
	assert.Len(t, day.Points, 2, "hourly buckets for 10:00 and 12:00")
}

func TestQueryAggregatesEmpty(t *testing.T) {
	repo := newTestRepo(t)
	trend, err := repo.QueryAggregates(context.Background(), telemetry.RangeWeek)
	require.NoError(t, err)
	assert.Equal(t, telemetry.RangeWeek, trend.Range)
	assert.Empty(t, trend.Points)
	assert.NotNil(t, trend.Points)
}

func TestLogEntriesRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertLogEntry(ctx, telemetry.LogEntry{
		ID: "e1", Level: "error", Category: "alert", Message: "first", Details: `{"id":"x"}`,
		CreatedAt: fixedNow.Add(-time.Minute),
	}))
	require.NoError(t, repo.InsertLogEntry(ctx, telemetry.LogEntry{
		ID: "e2", Level: "info", Category: "alert", Message: "second", CreatedAt: fixedNow,
	}))
	require.NoError(t, repo.InsertLogEntry(ctx, telemetry.LogEntry{
		ID: "e3", Level: "info", Category: "other", Message: "skip", CreatedAt: fixedNow,
	}))

	entries, err := repo.RecentLogEntries(ctx, "alert", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e2", entries[0].ID)
	assert.Equal(t, `{"id":"x"}`, entries[1].Details)
	assert.Equal(t, fixedNow.Add(-time.Minute), entries[1].CreatedAt)
}

func TestPruneBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertMetricsBatch(ctx, []telemetry.MetricSample{
		sample("old", 200, 1, fixedNow.Add(-48*time.Hour)),
		sample("new", 200, 1, fixedNow),
	}))
	require.NoError(t, repo.InsertLogEntry(ctx, telemetry.LogEntry{ID: "l", Level: "info", Category: "alert", Message: "m", CreatedAt: fixedNow.Add(-72 * time.Hour)}))

	removed, err := repo.PruneBefore(ctx, fixedNow.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, countSamples(t, repo))
}

func TestProbes(t *testing.T) {
	repo := newTestRepo(t)
	assert.NoError(t, repo.Ping(context.Background()))
	assert.NoError(t, repo.ProbeQuery(context.Background()))
}
