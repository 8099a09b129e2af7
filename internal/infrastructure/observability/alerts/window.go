package alerts

import (
	"sync"
	"time"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
)

// WindowStats aggregates the samples of a trailing window.
type WindowStats struct {
	Requests      int     `json:"requests"`
	Errors        int     `json:"errors"`
	AvgResponseMs float64 `json:"avgResponseMs"`
}

type windowPoint struct {
	at         time.Time
	isError    bool
	responseMs float64
}

// SampleWindow retains compact sample points for the longest evaluated window.
// Points older than span are pruned on insert; maxPoints bounds memory.
type SampleWindow struct {
	mu        sync.Mutex
	points    []windowPoint
	head      int
	span      time.Duration
	maxPoints int
}

// NewSampleWindow creates a window covering span.
func NewSampleWindow(span time.Duration, maxPoints int) *SampleWindow {
	if maxPoints < 1 {
		maxPoints = 100000
	}
	return &SampleWindow{span: span, maxPoints: maxPoints}
}

// Add records s. Samples are expected in roughly arrival order.
func (w *SampleWindow) Add(s telemetry.MetricSample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.points = append(w.points, windowPoint{at: s.Timestamp, isError: s.IsError(), responseMs: s.ResponseTimeMs})
	w.pruneLocked(s.Timestamp.Add(-w.span))
	if live := len(w.points) - w.head; live > w.maxPoints {
		w.head += live - w.maxPoints
	}
	if w.head > len(w.points)/2 {
		w.points = append(w.points[:0:0], w.points[w.head:]...)
		w.head = 0
	}
}

func (w *SampleWindow) pruneLocked(cutoff time.Time) {
	for w.head < len(w.points) && w.points[w.head].at.Before(cutoff) {
		w.head++
	}
}

// Stats aggregates the points with timestamps after now-within.
func (w *SampleWindow) Stats(now time.Time, within time.Duration) WindowStats {
	cutoff := now.Add(-within)

	w.mu.Lock()
	defer w.mu.Unlock()

	var stats WindowStats
	total := 0.0
	for _, p := range w.points[w.head:] {
		if p.at.Before(cutoff) || p.at.After(now) {
			continue
		}
		stats.Requests++
		total += p.responseMs
		if p.isError {
			stats.Errors++
		}
	}
	if stats.Requests > 0 {
		stats.AvgResponseMs = total / float64(stats.Requests)
	}
	return stats
}

// Len returns the number of retained points.
func (w *SampleWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points) - w.head
}
