package database

import (
	"context"
	"fmt"
)

// SchemaCreator builds the tables used by the metrics, log and record repositories.
type SchemaCreator struct{}

// NewSchemaCreator creates a new SchemaCreator.
func NewSchemaCreator() *SchemaCreator {
	return &SchemaCreator{}
}

// CreateSchema executes every table and index statement. It is idempotent.
func (sc *SchemaCreator) CreateSchema(ctx context.Context, db *DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// Timestamps are stored as UTC text in TimeFormat so range filters compare lexically.
const TimeFormat = "2006-01-02 15:04:05"

var tables = []string{
	`CREATE TABLE IF NOT EXISTS metrics_samples (id TEXT PRIMARY KEY, route TEXT NOT NULL, method TEXT NOT NULL, response_time_ms REAL NOT NULL, status_code INTEGER NOT NULL, memory_mb REAL NOT NULL DEFAULT 0, cpu_ms REAL NOT NULL DEFAULT 0, created_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS log_entries (id TEXT PRIMARY KEY, level TEXT NOT NULL, category TEXT NOT NULL, message TEXT NOT NULL, details TEXT, created_at TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS records (id TEXT PRIMARY KEY, owner_id TEXT NOT NULL, kind TEXT NOT NULL, payload TEXT NOT NULL, updated_at TEXT NOT NULL)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_metrics_samples_created_at ON metrics_samples(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_created_at ON log_entries(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_log_entries_category ON log_entries(category)`,
	`CREATE INDEX IF NOT EXISTS idx_records_owner_id ON records(owner_id)`,
}
