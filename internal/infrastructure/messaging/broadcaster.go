// Package messaging provides the SSE broadcaster that pushes alert events to
// connected dashboards.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/alerts"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

// EventAlertRaised is the SSE event name for a newly active alert.
const EventAlertRaised = "alert_raised"

// SSEBroadcaster manages SSE connections and fans formatted events out to them.
type SSEBroadcaster struct {
	clients map[chan string]struct{}
	mu      sync.Mutex
	logger  *logging.ChanneledLogger
}

// NewSSEBroadcaster creates a broadcaster with no clients.
func NewSSEBroadcaster(logger *logging.ChanneledLogger) *SSEBroadcaster {
	return &SSEBroadcaster{
		clients: make(map[chan string]struct{}),
		logger:  logger,
	}
}

// AddClient registers a new SSE client.
func (b *SSEBroadcaster) AddClient() chan string {
	ch := make(chan string, 10)

	b.mu.Lock()
	b.clients[ch] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Alert().Debug("SSE client registered", "connections", count)
	return ch
}

// RemoveClient unregisters ch. The channel is left open for the reader to drop.
func (b *SSEBroadcaster) RemoveClient(ch chan string) {
	b.mu.Lock()
	delete(b.clients, ch)
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Alert().Debug("SSE client unregistered", "connections", count)
}

// ConnectionCount returns the number of connected clients.
func (b *SSEBroadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Broadcast formats payload as an SSE event and offers it to every client.
// Full clients miss the event. It returns the number of clients reached.
func (b *SSEBroadcaster) Broadcast(event string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Alert().Error("Failed to encode SSE payload", "event", event, "error", err.Error())
		return 0
	}
	message := fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for ch := range b.clients {
		select {
		case ch <- message:
			delivered++
		default:
			b.logger.Alert().Warn("SSE channel full, message dropped", "event", event)
		}
	}
	return delivered
}

// Notify pushes a newly raised alert to connected dashboards.
func (b *SSEBroadcaster) Notify(_ context.Context, a alerts.Alert) error {
	b.Broadcast(EventAlertRaised, a)
	return nil
}
