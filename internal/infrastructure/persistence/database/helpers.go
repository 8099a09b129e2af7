package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

// VerifyConnectionWithLogger runs SELECT 1 on a fresh connection to cfg.
// The verify-db command uses it to validate credentials before deploying.
func VerifyConnectionWithLogger(ctx context.Context, cfg Config, logger *logging.ChanneledLogger) error {
	start := time.Now()
	driver, dsn, err := cfg.DataSource()
	if err != nil {
		return err
	}
	logger.Database().Debug("Testing database connection", "driverName", driver)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Database().Error("Failed to open connection", "error", err.Error(), "driverName", driver)
		return fmt.Errorf("failed to open connection: %w", err)
	}
	defer db.Close()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		logger.Database().Error("Connection test query failed", "error", err.Error(), "driverName", driver)
		return fmt.Errorf("connection test query failed: %w", err)
	}

	if result != 1 {
		logger.Database().Error("Unexpected query result", "result", result, "expected", 1, "driverName", driver)
		return fmt.Errorf("unexpected query result: %d", result)
	}

	logger.Database().Info("Connection test successful", "driverName", driver, "duration", time.Since(start))
	return nil
}

// GetSlowQueryThreshold returns the configured slow query threshold
func GetSlowQueryThreshold() time.Duration {
	return config.SlowQueryThreshold
}

// CheckAndLogSlowQuery checks if a query duration exceeds threshold
// and logs it using the slow query channel if it does
func CheckAndLogSlowQuery(logger *logging.ChanneledLogger, query string, duration time.Duration) {
	threshold := GetSlowQueryThreshold()

	// Batch writes and aggregate scans get a 3x allowance
	if strings.HasPrefix(query, "BATCH_") || strings.Contains(query, "GROUP BY") {
		threshold *= 3
	}

	if duration > threshold {
		logger.LogSlowQuery(query, duration)
	}
}
