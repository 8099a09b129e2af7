// Package metrics collects per-operation samples into a bounded ring buffer,
// persists them in batches and exposes process counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

// ErrBufferOverflow is the drop cause when samples arrive faster than a
// successful flush can make room.
var ErrBufferOverflow = errors.New("metrics buffer overflow")

// Flusher drains the buffer to durable storage and accounts for samples the
// buffer could not keep.
type Flusher interface {
	Flush(ctx context.Context) error
	Discard(ctx context.Context, samples int, cause error)
}

// SampleSink receives every recorded sample after it is buffered.
type SampleSink interface {
	ObserveSample(s telemetry.MetricSample)
}

// Collector turns instrumented operations into buffered samples.
type Collector struct {
	buffer  *RingBuffer
	flusher Flusher
	logger  *logging.ChanneledLogger
	now     func() time.Time

	sinksMu sync.RWMutex
	sinks   []SampleSink

	recorded    atomic.Int64
	overwritten atomic.Int64
}

// NewCollector creates a collector appending to buffer. flusher is invoked
// synchronously when the buffer is full.
func NewCollector(buffer *RingBuffer, flusher Flusher, logger *logging.ChanneledLogger) *Collector {
	return &Collector{
		buffer:  buffer,
		flusher: flusher,
		logger:  logger,
		now:     time.Now,
	}
}

// AddSink registers a consumer of recorded samples.
func (c *Collector) AddSink(s SampleSink) {
	c.sinksMu.Lock()
	c.sinks = append(c.sinks, s)
	c.sinksMu.Unlock()
}

// Begin starts measuring an operation.
func (c *Collector) Begin(route, method string) *Marker {
	return &Marker{
		Route:     route,
		Method:    method,
		StartTime: c.now(),
		start:     TakeSnapshot(),
	}
}

// End completes m with statusCode and records the sample.
func (c *Collector) End(ctx context.Context, m *Marker, statusCode int) {
	sample, ok := m.Complete(statusCode, c.now(), TakeSnapshot())
	if !ok {
		return
	}
	c.Record(ctx, sample)
}

// Track measures fn as one operation. fn reports the status code of its
// outcome; a panic is recorded as a 500 and re-raised.
func (c *Collector) Track(ctx context.Context, route, method string, fn func(ctx context.Context) (int, error)) error {
	marker := c.Begin(route, method)
	status := 500
	defer func() {
		c.End(ctx, marker, status)
	}()

	code, err := fn(ctx)
	switch {
	case code > 0:
		status = code
	case err == nil:
		status = 200
	}
	return err
}

// Record buffers sample. A full buffer is flushed first; if the flush cannot
// make room the oldest buffered sample is overwritten and reported to the
// flusher as dropped.
func (c *Collector) Record(ctx context.Context, sample telemetry.MetricSample) {
	if !c.buffer.TryAppend(sample) {
		flushErr := c.flusher.Flush(ctx)
		if flushErr != nil {
			c.logger.Metrics().Warn("Capacity-triggered flush failed", "error", flushErr.Error())
		}
		if c.buffer.Append(sample) {
			c.overwritten.Add(1)
			cause := flushErr
			if cause == nil {
				cause = ErrBufferOverflow
			}
			c.flusher.Discard(ctx, 1, cause)
		}
	}
	c.recorded.Add(1)

	c.sinksMu.RLock()
	defer c.sinksMu.RUnlock()
	for _, sink := range c.sinks {
		sink.ObserveSample(sample)
	}
}

// Buffered returns the number of samples awaiting persistence.
func (c *Collector) Buffered() int {
	return c.buffer.Len()
}

// Recorded returns the number of samples recorded since start.
func (c *Collector) Recorded() int64 {
	return c.recorded.Load()
}

// Overwritten returns the number of samples lost to buffer overwrite.
func (c *Collector) Overwritten() int64 {
	return c.overwritten.Load()
}
