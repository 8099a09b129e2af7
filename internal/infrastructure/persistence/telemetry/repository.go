// Package telemetry provides the SQL-backed durable store for metric samples
// and log entries, and the primary dependency probe.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
)

// SQLTelemetryRepository persists telemetry to the configured database.
type SQLTelemetryRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
	now    func() time.Time
}

// NewSQLTelemetryRepository creates a new instance of the repository.
func NewSQLTelemetryRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLTelemetryRepository {
	return &SQLTelemetryRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// InsertMetricsBatch writes samples in one transaction. Samples already stored
// under the same id are ignored, so a retried batch never duplicates rows.
func (r *SQLTelemetryRepository) InsertMetricsBatch(ctx context.Context, samples []telemetry.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	const query = `
		INSERT OR IGNORE INTO metrics_samples (id, route, method, response_time_ms, status_code, memory_mb, cpu_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing metrics batch insert", "samples", len(samples))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Database().Error("Metrics batch begin failed", "error", err.Error())
		return fmt.Errorf("failed to begin metrics batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		r.logger.Database().Error("Metrics batch prepare failed", "error", err.Error())
		return fmt.Errorf("failed to prepare metrics batch: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx,
			s.ID,
			s.Route,
			s.Method,
			s.ResponseTimeMs,
			s.StatusCode,
			s.MemoryMB,
			s.CPUMs,
			s.Timestamp.UTC().Format(database.TimeFormat),
		); err != nil {
			r.logger.Database().Error("Metrics sample insert failed", "error", err.Error(), "sampleId", s.ID)
			return fmt.Errorf("failed to insert metric sample %s: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Database().Error("Metrics batch commit failed", "error", err.Error(), "samples", len(samples))
		return fmt.Errorf("failed to commit metrics batch: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Metrics batch insert completed", "samples", len(samples), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, "BATCH_INSERT metrics_samples", duration)
	return nil
}

// InsertLogEntry appends one log entry.
func (r *SQLTelemetryRepository) InsertLogEntry(ctx context.Context, entry telemetry.LogEntry) error {
	const query = `
		INSERT INTO log_entries (id, level, category, message, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.Level,
		entry.Category,
		entry.Message,
		nullString(entry.Details),
		createdAt.UTC().Format(database.TimeFormat),
	)
	if err != nil {
		r.logger.Database().Error("Log entry insert failed", "error", err.Error(), "entryId", entry.ID, "category", entry.Category)
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// QueryAggregates buckets the samples of the trailing range.
func (r *SQLTelemetryRepository) QueryAggregates(ctx context.Context, tr telemetry.TimeRange) (*telemetry.Trend, error) {
	const query = `
		SELECT (CAST(strftime('%s', created_at) AS INTEGER) / ?) * ? AS bucket,
			COUNT(*),
			SUM(CASE WHEN status_code >= 500 THEN 1 ELSE 0 END),
			AVG(response_time_ms),
			AVG(memory_mb)
		FROM metrics_samples
		WHERE created_at >= ?
		GROUP BY bucket
		ORDER BY bucket`

	bucketSeconds := int64(tr.BucketSize() / time.Second)
	since := r.now().UTC().Add(-tr.Duration()).Format(database.TimeFormat)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, bucketSeconds, bucketSeconds, since)
	if err != nil {
		r.logger.Database().Error("Aggregate query failed", "error", err.Error(), "range", tr)
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	trend := telemetry.EmptyTrend(tr)
	var totalResponse float64
	for rows.Next() {
		var (
			bucket int64
			point  telemetry.TrendPoint
		)
		if err := rows.Scan(&bucket, &point.Requests, &point.Errors, &point.AvgResponseMs, &point.AvgMemoryMB); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		point.Bucket = time.Unix(bucket, 0).UTC()
		trend.Points = append(trend.Points, point)
		trend.TotalRequests += point.Requests
		trend.TotalErrors += point.Errors
		totalResponse += point.AvgResponseMs * float64(point.Requests)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregate rows: %w", err)
	}
	if trend.TotalRequests > 0 {
		trend.AvgResponseMs = totalResponse / float64(trend.TotalRequests)
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Aggregate query completed", "range", tr, "points", len(trend.Points), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration)
	return trend, nil
}

// RecentLogEntries returns the newest entries of category, newest first.
func (r *SQLTelemetryRepository) RecentLogEntries(ctx context.Context, category string, limit int) ([]telemetry.LogEntry, error) {
	const query = `
		SELECT id, level, category, message, details, created_at
		FROM log_entries
		WHERE category = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, category, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	entries := []telemetry.LogEntry{}
	for rows.Next() {
		var (
			entry     telemetry.LogEntry
			details   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.Level, &entry.Category, &entry.Message, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry.Details = details.String
		entry.CreatedAt, _ = time.Parse(database.TimeFormat, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneBefore deletes samples and log entries older than cutoff.
func (r *SQLTelemetryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ts := cutoff.UTC().Format(database.TimeFormat)

	var total int64
	for _, query := range []string{
		`DELETE FROM metrics_samples WHERE created_at < ?`,
		`DELETE FROM log_entries WHERE created_at < ?`,
	} {
		res, err := r.db.ExecContext(ctx, query, ts)
		if err != nil {
			return total, fmt.Errorf("failed to prune telemetry: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if total > 0 {
		r.logger.Database().Info("Pruned telemetry", "rows", total, "before", ts)
	}
	return total, nil
}

// Ping is a single round trip to the database.
func (r *SQLTelemetryRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ProbeQuery counts the samples of the last five minutes on the created_at index.
func (r *SQLTelemetryRepository) ProbeQuery(ctx context.Context) error {
	const query = `SELECT COUNT(*) FROM metrics_samples WHERE created_at >= ?`

	since := r.now().UTC().Add(-5 * time.Minute).Format(database.TimeFormat)
	var count int64
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&count); err != nil {
		return fmt.Errorf("probe query failed: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
