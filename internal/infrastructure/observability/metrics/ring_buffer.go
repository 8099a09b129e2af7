package metrics

import (
	"sync"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
)

// RingBuffer is a fixed-capacity FIFO of samples. Producers append
// concurrently; a single consumer drains it.
type RingBuffer struct {
	mu    sync.Mutex
	items []telemetry.MetricSample
	head  int
	count int
}

// NewRingBuffer creates a buffer holding at most capacity samples.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{items: make([]telemetry.MetricSample, capacity)}
}

// TryAppend adds s unless the buffer is full.
func (b *RingBuffer) TryAppend(s telemetry.MetricSample) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.items) {
		return false
	}
	b.items[(b.head+b.count)%len(b.items)] = s
	b.count++
	return true
}

// Append adds s, overwriting the oldest sample when full. It reports
// whether a sample was overwritten.
func (b *RingBuffer) Append(s telemetry.MetricSample) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count < len(b.items) {
		b.items[(b.head+b.count)%len(b.items)] = s
		b.count++
		return false
	}
	b.items[b.head] = s
	b.head = (b.head + 1) % len(b.items)
	return true
}

// Drain swaps in an empty backing array and returns the previous contents
// oldest first.
func (b *RingBuffer) Drain() []telemetry.MetricSample {
	b.mu.Lock()
	old, head, count := b.items, b.head, b.count
	b.items = make([]telemetry.MetricSample, len(old))
	b.head, b.count = 0, 0
	b.mu.Unlock()

	out := make([]telemetry.MetricSample, count)
	for i := 0; i < count; i++ {
		out[i] = old[(head+i)%len(old)]
	}
	return out
}

// Requeue puts batch back in front of the live samples. When there is not
// enough room the oldest samples of batch are discarded; the count of
// discarded samples is returned.
func (b *RingBuffer) Requeue(batch []telemetry.MetricSample) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	discarded := 0
	if room := capacity - b.count; len(batch) > room {
		discarded = len(batch) - room
		batch = batch[discarded:]
	}
	if len(batch) == 0 {
		return discarded
	}

	items := make([]telemetry.MetricSample, capacity)
	n := copy(items, batch)
	for i := 0; i < b.count; i++ {
		items[n+i] = b.items[(b.head+i)%capacity]
	}
	b.items = items
	b.head = 0
	b.count += n
	return discarded
}

// Len returns the number of buffered samples.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity.
func (b *RingBuffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
