// Package records provides the SQL-backed upstream source for the batch loader.
package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/records"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
)

// SQLRecordRepository reads and writes the records table.
type SQLRecordRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLRecordRepository creates a new instance of the repository.
func NewSQLRecordRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLRecordRepository {
	return &SQLRecordRepository{
		db:     db,
		logger: logger,
	}
}

// FindByIDs loads every existing record among ids in one query.
func (r *SQLRecordRepository) FindByIDs(ctx context.Context, ids []string) ([]*records.Record, error) {
	if len(ids) == 0 {
		return []*records.Record{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, owner_id, kind, payload, updated_at FROM records WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	start := time.Now()
	r.logger.Database().Debug("Executing record batch query", "ids", len(ids))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Database().Error("Record batch query failed", "error", err.Error(), "ids", len(ids))
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	result := make([]*records.Record, 0, len(ids))
	for rows.Next() {
		var (
			rec       records.Record
			updatedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Kind, &rec.Payload, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec.UpdatedAt, _ = time.Parse(database.TimeFormat, updatedAt)
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Record batch query completed", "requested", len(ids), "found", len(result), "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration)
	return result, nil
}

// Save inserts or replaces rec.
func (r *SQLRecordRepository) Save(ctx context.Context, rec *records.Record) error {
	const query = `
		INSERT INTO records (id, owner_id, kind, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, kind = excluded.kind,
			payload = excluded.payload, updated_at = excluded.updated_at`

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}

	start := time.Now()
	if _, err := r.db.ExecContext(ctx, query, rec.ID, rec.OwnerID, rec.Kind, rec.Payload,
		rec.UpdatedAt.UTC().Format(database.TimeFormat)); err != nil {
		r.logger.Database().Error("Record save failed", "error", err.Error(), "recordId", rec.ID)
		return fmt.Errorf("failed to save record %s: %w", rec.ID, err)
	}

	r.logger.Database().Info("Record saved", "recordId", rec.ID, "ownerId", rec.OwnerID)
	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return nil
}

// QueryIDs runs a paged id query built by the batch loader and returns the ids in order.
func (r *SQLRecordRepository) QueryIDs(ctx context.Context, query string) ([]string, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Database().Error("Record id query failed", "error", err.Error())
		return nil, fmt.Errorf("failed to query record ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record ids: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, query, time.Since(start))
	return ids, nil
}
