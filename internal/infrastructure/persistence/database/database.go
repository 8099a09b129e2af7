// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite3"
	DriverLibSQL = "libsql"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver string
}

// Config selects the driver and pool limits.
type Config struct {
	Driver          string
	SQLitePath      string
	TursoURL        string
	TursoToken      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewConfig reads the database settings from the central config package.
func NewConfig() Config {
	return Config{
		Driver:          config.DatabaseDriver,
		SQLitePath:      config.SQLitePath,
		TursoURL:        config.TursoDatabaseURL,
		TursoToken:      config.TursoAuthToken,
		MaxOpenConns:    config.DBMaxOpenConns,
		MaxIdleConns:    config.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute,
		ConnMaxIdleTime: time.Duration(config.DBConnMaxIdleMinutes) * time.Minute,
	}
}

// DataSource returns the driver name and DSN for cfg.
func (cfg Config) DataSource() (string, string, error) {
	switch cfg.Driver {
	case DriverLibSQL:
		if cfg.TursoURL == "" {
			return "", "", fmt.Errorf("libsql driver requires TURSO_DATABASE_URL")
		}
		dsn := cfg.TursoURL
		if cfg.TursoToken != "" {
			dsn += "?authToken=" + cfg.TursoToken
		}
		return DriverLibSQL, dsn, nil
	case DriverSQLite, "":
		if cfg.SQLitePath == "" {
			return "", "", fmt.Errorf("sqlite3 driver requires SQLITE_PATH")
		}
		return DriverSQLite, cfg.SQLitePath, nil
	}
	return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Open connects using cfg, creating the SQLite directory when needed, and
// applies the pool limits.
func Open(cfg Config, logger *logging.ChanneledLogger) (*DB, error) {
	driver, dsn, err := cfg.DataSource()
	if err != nil {
		return nil, err
	}

	if driver == DriverSQLite && !isMemoryDSN(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := NewConnectionWithLogger(driver, dsn, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	return db, nil
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(driverName, dataSourceName string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Database().Debug("Creating new database connection", "driverName", driverName)

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Database().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		logger.Database().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		db.Close()
		return nil, err
	}

	duration := time.Since(start)
	logger.Database().Info("Database connection established", "driverName", driverName, "duration", duration)
	CheckAndLogSlowQuery(logger, "DATABASE_CONNECTION", duration)

	return &DB{DB: db, Driver: driverName}, nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file::memory:")
}
