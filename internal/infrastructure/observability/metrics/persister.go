package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/compliance-core/pkg/config"
)

// ErrPersistenceWrite wraps every failed batch write.
var ErrPersistenceWrite = errors.New("metrics persistence write failed")

// DropNotifier is told when a batch is abandoned after repeated failures.
type DropNotifier interface {
	NotifyFlushDropped(ctx context.Context, samples int, attempts int, cause error)
}

// FlushObserver receives flush outcomes, typically the Prometheus exporter.
type FlushObserver interface {
	ObserveFlush(samples int)
	ObserveDrop(samples int)
}

// PersisterConfig bounds the flush loop.
type PersisterConfig struct {
	FlushInterval    time.Duration
	MaxFlushFailures int
}

// NewPersisterConfig reads the persister settings from the central config package.
func NewPersisterConfig() PersisterConfig {
	return PersisterConfig{
		FlushInterval:    config.MetricsFlushInterval,
		MaxFlushFailures: config.MetricsMaxFlushFailures,
	}
}

// PersisterStats counts flush outcomes since start.
type PersisterStats struct {
	Flushes             int64 `json:"flushes"`
	FlushedSamples      int64 `json:"flushedSamples"`
	FailedFlushes       int64 `json:"failedFlushes"`
	DroppedSamples      int64 `json:"droppedSamples"`
	ConsecutiveFailures int   `json:"consecutiveFailures"`
}

// Persister drains the ring buffer into the durable store with at-least-once
// delivery. Flush is serialized, so the buffer always has a single consumer.
type Persister struct {
	buffer   *RingBuffer
	store    telemetry.Repository
	config   PersisterConfig
	notifier DropNotifier
	logger   *logging.ChanneledLogger

	flushMu  sync.Mutex
	failures int

	observer FlushObserver

	flushes atomic.Int64
	flushed atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewPersister creates a persister draining buffer into store.
func NewPersister(buffer *RingBuffer, store telemetry.Repository, cfg PersisterConfig, logger *logging.ChanneledLogger) *Persister {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.MaxFlushFailures < 1 {
		cfg.MaxFlushFailures = 5
	}
	return &Persister{
		buffer: buffer,
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// SetDropNotifier attaches the receiver of dropped-batch signals.
func (p *Persister) SetDropNotifier(n DropNotifier) {
	p.notifier = n
}

// SetObserver attaches a flush outcome observer.
func (p *Persister) SetObserver(o FlushObserver) {
	p.observer = o
}

// Interval is the scheduled flush period.
func (p *Persister) Interval() time.Duration {
	return p.config.FlushInterval
}

// Flush writes the drained buffer in one call. On failure the batch goes back
// to the front of the buffer; after MaxFlushFailures consecutive failures it
// is dropped and the notifier is told. Samples that do not fit back are
// dropped the same way.
func (p *Persister) Flush(ctx context.Context) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	batch := p.buffer.Drain()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	err := p.store.InsertMetricsBatch(ctx, batch)
	if err == nil {
		p.failures = 0
		p.flushes.Add(1)
		p.flushed.Add(int64(len(batch)))
		if p.observer != nil {
			p.observer.ObserveFlush(len(batch))
		}
		p.logger.Metrics().Debug("Metrics batch flushed", "samples", len(batch), "duration", time.Since(start))
		return nil
	}

	p.failures++
	p.failed.Add(1)
	attempts := p.failures

	if attempts >= p.config.MaxFlushFailures {
		p.failures = 0
		p.dropSamples(ctx, len(batch), attempts, err, "Dropping metrics batch after repeated failures")
		return fmt.Errorf("%w: dropped %d samples after %d attempts: %w", ErrPersistenceWrite, len(batch), attempts, err)
	}

	if discarded := p.buffer.Requeue(batch); discarded > 0 {
		p.dropSamples(ctx, discarded, attempts, err, "Requeue overflowed metrics buffer")
	}
	p.logger.Metrics().Warn("Metrics flush failed, batch requeued",
		"samples", len(batch), "attempt", attempts, "maxAttempts", p.config.MaxFlushFailures, "error", err.Error())
	return fmt.Errorf("%w: %w", ErrPersistenceWrite, err)
}

// Drain flushes until the buffer is empty or a flush fails. It runs on shutdown.
func (p *Persister) Drain(ctx context.Context) error {
	for p.buffer.Len() > 0 {
		if err := p.Flush(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// Stats returns the flush counters.
func (p *Persister) Stats() PersisterStats {
	p.flushMu.Lock()
	failures := p.failures
	p.flushMu.Unlock()

	return PersisterStats{
		Flushes:             p.flushes.Load(),
		FlushedSamples:      p.flushed.Load(),
		FailedFlushes:       p.failed.Load(),
		DroppedSamples:      p.dropped.Load(),
		ConsecutiveFailures: failures,
	}
}

// Discard accounts for samples the collector had to overwrite because a
// flush could not make room. They take the same path as a dropped batch.
func (p *Persister) Discard(ctx context.Context, samples int, cause error) {
	p.flushMu.Lock()
	attempts := p.failures
	p.flushMu.Unlock()

	p.dropSamples(ctx, samples, attempts, cause, "Metrics buffer overwrote unflushed samples")
}

// dropSamples counts lost samples, mirrors them to the observer and raises
// the drop signal.
func (p *Persister) dropSamples(ctx context.Context, samples, attempts int, cause error, message string) {
	p.dropped.Add(int64(samples))
	if p.observer != nil {
		p.observer.ObserveDrop(samples)
	}

	args := []any{"samples", samples, "attempts", attempts}
	if cause != nil {
		args = append(args, "error", cause.Error())
	}
	p.logger.Metrics().Error(message, args...)

	if p.notifier != nil {
		p.notifier.NotifyFlushDropped(ctx, samples, attempts, cause)
	}
}
