package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// LevelCounter keeps per-minute counts of emitted log records for a trailing
// window. Every channel handler reports into the same counter.
type LevelCounter struct {
	window  time.Duration
	buckets []levelBucket
	mu      sync.Mutex
	now     func() time.Time
}

type levelBucket struct {
	minute int64
	total  int64
	errors int64
}

// LevelCounts summarizes the trailing window.
type LevelCounts struct {
	Total     int64   `json:"total"`
	Errors    int64   `json:"errors"`
	ErrorRate float64 `json:"errorRate"`
}

// NewLevelCounter creates a counter covering window, rounded up to whole minutes.
func NewLevelCounter(window time.Duration) *LevelCounter {
	minutes := int(window / time.Minute)
	if window%time.Minute != 0 {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}
	return &LevelCounter{
		window:  window,
		buckets: make([]levelBucket, minutes),
		now:     time.Now,
	}
}

// Record counts one record emitted at t.
func (lc *LevelCounter) Record(level slog.Level, t time.Time) {
	if t.IsZero() {
		t = lc.now()
	}
	minute := t.Unix() / 60

	lc.mu.Lock()
	defer lc.mu.Unlock()

	b := &lc.buckets[int(minute%int64(len(lc.buckets)))]
	if b.minute != minute {
		*b = levelBucket{minute: minute}
	}
	b.total++
	if level >= slog.LevelError {
		b.errors++
	}
}

// Counts returns totals over the trailing window ending now.
func (lc *LevelCounter) Counts() LevelCounts {
	current := lc.now().Unix() / 60
	oldest := current - int64(len(lc.buckets)) + 1

	lc.mu.Lock()
	defer lc.mu.Unlock()

	var counts LevelCounts
	for _, b := range lc.buckets {
		if b.minute < oldest || b.minute > current {
			continue
		}
		counts.Total += b.total
		counts.Errors += b.errors
	}
	if counts.Total > 0 {
		counts.ErrorRate = float64(counts.Errors) / float64(counts.Total)
	}
	return counts
}

// Wrap returns a handler that records every handled record before delegating.
func (lc *LevelCounter) Wrap(next slog.Handler) slog.Handler {
	return &countingHandler{next: next, counter: lc}
}

type countingHandler struct {
	next    slog.Handler
	counter *LevelCounter
}

func (h *countingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *countingHandler) Handle(ctx context.Context, r slog.Record) error {
	h.counter.Record(r.Level, r.Time)
	return h.next.Handle(ctx, r)
}

func (h *countingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &countingHandler{next: h.next.WithAttrs(attrs), counter: h.counter}
}

func (h *countingHandler) WithGroup(name string) slog.Handler {
	return &countingHandler{next: h.next.WithGroup(name), counter: h.counter}
}
