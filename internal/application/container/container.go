// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/application/services"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/cleanup"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/loader"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/email"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/alerts"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/dashboard"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/health"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/database"
	recordsrepo "github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/records"
	telemetryrepo "github.com/AtRiskMedia/compliance-core/internal/infrastructure/persistence/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/scheduler"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	ObservabilityService *services.ObservabilityService
	RecordService        *services.RecordService

	// Caching
	Store         *stores.TaggedStore
	Loader        *loader.BatchLoader
	CleanupWorker *cleanup.Worker

	// Observability
	Collector    *metrics.Collector
	Persister    *metrics.Persister
	Exporter     *metrics.Exporter
	HealthEngine *health.Engine
	AlertManager *alerts.Manager
	AlertStream  *messaging.SSEBroadcaster
	Aggregator   *dashboard.Aggregator

	// Infrastructure Dependencies
	DB            *database.DB
	TelemetryRepo *telemetryrepo.SQLTelemetryRepository
	RecordRepo    *recordsrepo.SQLRecordRepository
	Scheduler     *scheduler.Scheduler
	Logger        *logging.ChanneledLogger
	StartedAt     time.Time
}

// NewLogger builds the channeled logger from the central config package.
func NewLogger() (*logging.ChanneledLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	cfg.JSONFormat = config.LogJSON
	if config.LogStream {
		cfg.Broadcaster = logging.NewLogBroadcaster()
	}
	if config.GinMode == "debug" {
		cfg.ChannelLevels[logging.ChannelDatabase] = slog.LevelDebug
	}
	return logging.NewChanneledLogger(cfg)
}

// NewContainer opens the database, builds every component once and wires
// the collaborators together. Nothing is started.
func NewContainer(ctx context.Context, logger *logging.ChanneledLogger, startedAt time.Time) (*Container, error) {
	db, err := database.Open(database.NewConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.NewSchemaCreator().CreateSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return NewContainerWithDB(db, logger, startedAt)
}

// NewContainerWithDB wires the container over an already opened database.
func NewContainerWithDB(db *database.DB, logger *logging.ChanneledLogger, startedAt time.Time) (*Container, error) {
	c := &Container{
		DB:        db,
		Logger:    logger,
		StartedAt: startedAt,
	}

	// Persistence
	c.TelemetryRepo = telemetryrepo.NewSQLTelemetryRepository(db, logger)
	c.RecordRepo = recordsrepo.NewSQLRecordRepository(db, logger)

	// Metrics exposition observes every other component
	c.Exporter = metrics.NewExporter()

	// Caching
	c.Store = stores.NewTaggedStore(stores.Config{
		MaxEntries: config.CacheMaxEntries,
		DefaultTTL: config.CacheDefaultTTL,
	}, logger)
	c.Store.SetObserver(c.Exporter)
	c.Loader = loader.NewBatchLoader(c.Store, c.RecordRepo, loader.NewConfig(), logger)
	c.CleanupWorker = cleanup.NewWorker(c.Store, cleanup.NewConfig(), os.Stdout, logger)

	// Metrics pipeline
	buffer := metrics.NewRingBuffer(config.MetricsBufferCapacity)
	c.Persister = metrics.NewPersister(buffer, c.TelemetryRepo, metrics.NewPersisterConfig(), logger)
	c.Persister.SetObserver(c.Exporter)
	c.Collector = metrics.NewCollector(buffer, c.Persister, logger)
	c.Collector.AddSink(c.Exporter)

	// Alerting
	c.AlertManager = alerts.NewManager(alerts.NewConfig(), c.TelemetryRepo, logger)
	c.AlertManager.SetObserver(c.Exporter)
	c.Collector.AddSink(c.AlertManager)
	c.Persister.SetDropNotifier(c.AlertManager)
	c.AlertStream = messaging.NewSSEBroadcaster(logger)
	c.AlertManager.AddNotifier(c.AlertStream)
	if config.ResendAPIKey != "" && config.AlertEmailTo != "" {
		mailer, err := email.NewService(config.ResendAPIKey, config.AlertEmailFrom)
		if err != nil {
			return nil, fmt.Errorf("failed to create email service: %w", err)
		}
		c.AlertManager.AddNotifier(alerts.NewEmailNotifier(mailer, config.AlertEmailTo, config.AlertEmailRatePerHour))
		logger.Alert().Info("Email notifications enabled", "recipients", config.AlertEmailTo)
	}

	// Health
	checks := []health.Check{
		health.NewDatabaseCheck(c.TelemetryRepo),
		health.NewLatencyCheck(c.TelemetryRepo),
		health.NewMemoryCheck(uint64(config.HealthMemoryLimitMB) << 20),
		health.NewCPUCheck(),
		health.NewErrorRateCheck(logger.Counter()),
		health.NewCacheCheck(c.Store, config.CacheHitRateFloor, config.CacheSaturationWindow),
	}
	c.HealthEngine = health.NewEngine(checks, health.NewConfig(startedAt), logger)
	c.HealthEngine.AddListener(c.AlertManager)
	c.HealthEngine.AddListener(health.ListenerFunc(func(_ context.Context, status health.SystemHealthStatus) {
		c.Exporter.SetHealth(status.Score, status.CheckWeights())
	}))

	// Dashboard
	c.Aggregator = dashboard.NewAggregator(c.TelemetryRepo, c.HealthEngine.History(), c.AlertManager, c.Store, dashboard.NewConfig(), logger)

	// Gauges read on scrape
	c.Exporter.RegisterGaugeFunc("cache", "entries", "Entries currently held by the cache store.", func() float64 {
		return float64(c.Store.Stats().EntryCount)
	})
	c.Exporter.RegisterGaugeFunc("cache", "memory_estimate_bytes", "Approximate bytes retained by the cache store.", func() float64 {
		return float64(c.Store.Stats().MemoryEstimate)
	})
	c.Exporter.RegisterGaugeFunc("metrics", "buffered_samples", "Samples waiting for the next flush.", func() float64 {
		return float64(c.Collector.Buffered())
	})

	// Application services
	c.ObservabilityService = services.NewObservabilityService(c.Aggregator, c.HealthEngine, c.AlertManager, logger)
	c.RecordService = services.NewRecordService(c.Loader, c.RecordRepo, logger)

	// Background work
	c.Scheduler = scheduler.New(logger)
	if err := c.registerJobs(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Container) registerJobs() error {
	jobs := []scheduler.Job{
		{Name: "metrics-flush", Interval: c.Persister.Interval(), Run: func(ctx context.Context) {
			// Failures are counted and escalated by the persister itself.
			_ = c.Persister.Flush(ctx)
		}},
		{Name: "health-check", Interval: c.HealthEngine.Interval(), Run: func(ctx context.Context) {
			c.HealthEngine.Run(ctx)
		}},
		{Name: "alert-evaluation", Interval: c.AlertManager.Interval(), Run: func(ctx context.Context) {
			c.AlertManager.Evaluate(ctx)
		}},
		{Name: "cache-cleanup", Interval: c.CleanupWorker.Interval(), Run: func(ctx context.Context) {
			c.CleanupWorker.Run(ctx)
		}},
		{Name: "telemetry-retention", Interval: time.Hour, Run: func(ctx context.Context) {
			if _, err := c.TelemetryRepo.PruneBefore(ctx, time.Now().Add(-config.TelemetryRetention)); err != nil {
				c.Logger.Database().Error("Telemetry retention failed", "error", err.Error())
			}
		}},
	}
	for _, job := range jobs {
		if err := c.Scheduler.Register(job); err != nil {
			return err
		}
	}

	c.Scheduler.OnStop("metrics-drain", c.Persister.Drain)
	c.Scheduler.OnStop("alert-notifications", func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			c.AlertManager.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return nil
}

// Close releases the database connection.
func (c *Container) Close() error {
	return c.DB.Close()
}
