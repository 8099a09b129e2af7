// Package cleanup provides the periodic expiry sweep of the cache store
package cleanup

import (
	"context"
	"io"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

// Store is the part of the cache store the sweep needs.
type Store interface {
	PurgeExpired() int
	Stats() stores.Stats
}

// Worker removes expired entries so they stop counting against capacity
// before a read would find them.
type Worker struct {
	store    Store
	config   *Config
	reporter *Reporter
	logger   *logging.ChanneledLogger
}

// NewWorker creates a new cleanup worker with injected configuration.
// Verbose reports are written to out.
func NewWorker(store Store, config *Config, out io.Writer, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		store:    store,
		config:   config,
		reporter: NewReporter(out),
		logger:   logger,
	}
}

// Interval is the scheduled sweep period.
func (w *Worker) Interval() time.Duration {
	return w.config.CleanupInterval
}

// Run performs one sweep and returns the number of entries purged.
func (w *Worker) Run(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	start := time.Now()

	if w.config.VerboseReporting {
		w.reporter.LogStage("PERIODIC CACHE CLEANUP")
		w.reporter.WriteStoreReport(w.store.Stats())
	}

	cleaned := w.store.PurgeExpired()
	duration := time.Since(start)

	if cleaned > 0 {
		w.logger.Cache().Info("Cache cleanup finished", "purged", cleaned, "duration", duration)
		if w.config.VerboseReporting {
			w.reporter.LogSuccess("Cache cleanup finished: %d expired entries purged in %v", cleaned, duration)
		}
	} else if w.config.VerboseReporting {
		w.reporter.LogInfo("Cache cleanup completed - no expired items found (%v)", duration)
	}
	return cleaned
}
