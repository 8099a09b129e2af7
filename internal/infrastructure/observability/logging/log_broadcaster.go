package logging

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
)

// ChannelAll matches every channel in a stream filter.
const ChannelAll Channel = "all"

// LogEntry is a single log record sent to stream clients.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Channel   string `json:"channel"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`

	level slog.Level
}

// Client is one connected stream listener.
type Client struct {
	id      string
	Channel chan []byte
	filters AppliedFilters
}

// ID identifies the client in logs.
func (c *Client) ID() string { return c.id }

// AppliedFilters selects the records a client receives.
type AppliedFilters struct {
	Channel Channel
	Level   slog.Level
}

func (f AppliedFilters) matches(e LogEntry) bool {
	if f.Channel != ChannelAll && f.Channel != Channel(e.Channel) {
		return false
	}
	return e.level >= f.Level
}

// LogBroadcaster fans log entries out to stream clients. Slow clients lose
// entries rather than blocking the logger.
type LogBroadcaster struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan LogEntry
	stop       chan struct{}
	stopOnce   sync.Once
	nextID     atomic.Int64
	dropped    atomic.Int64
}

// NewLogBroadcaster starts the distribution loop.
func NewLogBroadcaster() *LogBroadcaster {
	b := &LogBroadcaster{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan LogEntry, 1000),
		stop:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *LogBroadcaster) run() {
	for {
		select {
		case <-b.stop:
			for client := range b.clients {
				close(client.Channel)
			}
			b.clients = nil
			return
		case client := <-b.register:
			b.clients[client] = true
		case client := <-b.unregister:
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Channel)
			}
		case entry := <-b.broadcast:
			b.distribute(entry)
		}
	}
}

func (b *LogBroadcaster) distribute(entry LogEntry) {
	var message []byte
	for client := range b.clients {
		if !client.filters.matches(entry) {
			continue
		}
		if message == nil {
			var err error
			if message, err = json.Marshal(entry); err != nil {
				return
			}
		}
		select {
		case client.Channel <- message:
		default:
			b.dropped.Add(1)
		}
	}
}

// SubmitLog queues entry without blocking. Entries are dropped when the queue is full.
func (b *LogBroadcaster) SubmitLog(entry LogEntry) {
	select {
	case b.broadcast <- entry:
	default:
		b.dropped.Add(1)
	}
}

// Dropped counts entries lost to full queues.
func (b *LogBroadcaster) Dropped() int64 {
	return b.dropped.Load()
}

// NewClient creates a client; it receives nothing until registered.
func (b *LogBroadcaster) NewClient(filters AppliedFilters) *Client {
	return &Client{
		id:      strconv.FormatInt(b.nextID.Add(1), 10),
		Channel: make(chan []byte, 100),
		filters: filters,
	}
}

// RegisterClient adds client. It returns false once the broadcaster is shut down.
func (b *LogBroadcaster) RegisterClient(client *Client) bool {
	select {
	case <-b.stop:
		return false
	default:
	}
	select {
	case b.register <- client:
		return true
	case <-b.stop:
		return false
	}
}

// UnregisterClient removes client and closes its channel.
func (b *LogBroadcaster) UnregisterClient(client *Client) {
	select {
	case b.unregister <- client:
	case <-b.stop:
	}
}

// Shutdown stops the loop and closes every client channel.
func (b *LogBroadcaster) Shutdown() {
	b.stopOnce.Do(func() { close(b.stop) })
}
