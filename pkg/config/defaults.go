// Package config provides centralized default values for the compliance core
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}

		log.Println("Loading configuration overrides from .env file...")
		// godotenv.Load never overrides variables already present in the environment.
		if err := godotenv.Load(); err != nil {
			log.Printf("Failed to load .env file: %v", err)
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%g (default: %g)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	GinMode            string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database
	DatabaseDriver           string
	SQLitePath               string
	TursoDatabaseURL         string
	TursoAuthToken           string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration
	TelemetryRetention       time.Duration

	// Cache Store
	CacheMaxEntries       int
	CacheDefaultTTL       time.Duration
	CacheHitRateFloor     float64
	CacheSaturationWindow time.Duration
	CacheCleanupInterval  time.Duration
	CacheCleanupVerbose   bool

	// Batch Loader
	LoaderTTL          time.Duration
	LoaderMaxPageSize  int
	LoaderFetchTimeout time.Duration

	// Metrics pipeline
	MetricsBufferCapacity   int
	MetricsFlushInterval    time.Duration
	MetricsMaxFlushFailures int

	// Health checks
	HealthCheckInterval time.Duration
	HealthCheckTimeout  time.Duration
	HealthHistorySize   int
	HealthMemoryLimitMB int

	// Dashboard
	DashboardBreakerFailures int
	DashboardBreakerTimeout  time.Duration

	// Alerting
	AlertEvalInterval       time.Duration
	AlertErrorWindow        time.Duration
	AlertErrorThreshold     int
	AlertLatencyWindow      time.Duration
	AlertLatencyThresholdMs float64
	AlertHistorySize        int
	ResendAPIKey            string
	AlertEmailTo            string
	AlertEmailFrom          string
	AlertEmailRatePerHour   int

	// Logging
	LogDirectory string
	LogToFile    bool
	LogJSON      bool
	LogStream    bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	GinMode = getEnvString("GIN_MODE", "debug")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	DatabaseDriver = getEnvString("DATABASE_DRIVER", "sqlite3")
	SQLitePath = getEnvString("SQLITE_PATH", "db/compliance.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = os.Getenv("TURSO_AUTH_TOKEN")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 500*time.Millisecond)
	TelemetryRetention = getEnvDuration("TELEMETRY_RETENTION", 31*24*time.Hour)

	// Cache Store
	CacheMaxEntries = getEnvInt("CACHE_MAX_ENTRIES", 10000)
	CacheDefaultTTL = getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute)
	CacheHitRateFloor = getEnvFloat("CACHE_HIT_RATE_FLOOR", 0.5)
	CacheSaturationWindow = getEnvDuration("CACHE_SATURATION_WINDOW", 5*time.Minute)
	CacheCleanupInterval = getEnvDuration("CACHE_CLEANUP_INTERVAL", time.Minute)
	CacheCleanupVerbose = getEnvBool("CACHE_CLEANUP_VERBOSE", false)

	// Batch Loader
	LoaderTTL = getEnvDuration("LOADER_TTL", 30*time.Second)
	LoaderMaxPageSize = getEnvInt("LOADER_MAX_PAGE_SIZE", 100)
	LoaderFetchTimeout = getEnvDuration("LOADER_FETCH_TIMEOUT", 10*time.Second)

	// Metrics pipeline
	MetricsBufferCapacity = getEnvInt("METRICS_BUFFER_CAPACITY", 1000)
	MetricsFlushInterval = getEnvDuration("METRICS_FLUSH_INTERVAL", 30*time.Second)
	MetricsMaxFlushFailures = getEnvInt("METRICS_MAX_FLUSH_FAILURES", 5)

	// Health checks
	HealthCheckInterval = getEnvDuration("HEALTH_CHECK_INTERVAL", time.Minute)
	HealthCheckTimeout = getEnvDuration("HEALTH_CHECK_TIMEOUT", 2*time.Second)
	HealthHistorySize = getEnvInt("HEALTH_HISTORY_SIZE", 100)
	HealthMemoryLimitMB = getEnvInt("HEALTH_MEMORY_LIMIT_MB", 1024)

	// Dashboard
	DashboardBreakerFailures = getEnvInt("DASHBOARD_BREAKER_FAILURES", 3)
	DashboardBreakerTimeout = getEnvDuration("DASHBOARD_BREAKER_TIMEOUT", 30*time.Second)

	// Alerting
	AlertEvalInterval = getEnvDuration("ALERT_EVAL_INTERVAL", time.Minute)
	AlertErrorWindow = getEnvDuration("ALERT_ERROR_WINDOW", 15*time.Minute)
	AlertErrorThreshold = getEnvInt("ALERT_ERROR_THRESHOLD", 10)
	AlertLatencyWindow = getEnvDuration("ALERT_LATENCY_WINDOW", 5*time.Minute)
	AlertLatencyThresholdMs = getEnvFloat("ALERT_LATENCY_THRESHOLD_MS", 1000)
	AlertHistorySize = getEnvInt("ALERT_HISTORY_SIZE", 500)
	ResendAPIKey = os.Getenv("RESEND_API_KEY")
	AlertEmailTo = getEnvString("ALERT_EMAIL_TO", "")
	AlertEmailFrom = getEnvString("ALERT_EMAIL_FROM", "alerts@compliance-core.local")
	AlertEmailRatePerHour = getEnvInt("ALERT_EMAIL_RATE_PER_HOUR", 12)

	// Logging
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogJSON = getEnvBool("LOG_JSON", true)
	LogStream = getEnvBool("LOG_STREAM", true)
}
