package health

import "sync"

// History is a fixed-capacity ring of snapshots; the oldest is dropped first.
type History struct {
	mu    sync.RWMutex
	items []SystemHealthStatus
	head  int
	count int
}

// NewHistory creates a history holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{items: make([]SystemHealthStatus, capacity)}
}

// Add appends s, evicting the oldest snapshot when full.
func (h *History) Add(s SystemHealthStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count < len(h.items) {
		h.items[(h.head+h.count)%len(h.items)] = s
		h.count++
		return
	}
	h.items[h.head] = s
	h.head = (h.head + 1) % len(h.items)
}

// Latest returns the most recent snapshot.
func (h *History) Latest() (SystemHealthStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.count == 0 {
		return SystemHealthStatus{}, false
	}
	return h.items[(h.head+h.count-1)%len(h.items)], true
}

// All returns the snapshots oldest first.
func (h *History) All() []SystemHealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]SystemHealthStatus, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.items[(h.head+i)%len(h.items)]
	}
	return out
}

// Len returns the number of retained snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
