package logging

import (
	"context"
	"log/slog"
	"time"
)

// broadcastHandler forwards every handled record to a LogBroadcaster.
type broadcastHandler struct {
	broadcaster *LogBroadcaster
	channel     Channel
	level       slog.Leveler
	attrs       []slog.Attr
}

func newBroadcastHandler(b *LogBroadcaster, channel Channel, level slog.Leveler) *broadcastHandler {
	return &broadcastHandler{broadcaster: b, channel: channel, level: level}
}

func (h *broadcastHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *broadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	entry := LogEntry{
		Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		Channel:   string(h.channel),
		Level:     r.Level.String(),
		Message:   r.Message,
		level:     r.Level,
	}
	find := func(a slog.Attr) bool {
		if a.Key == string(RequestIDKey) {
			entry.RequestID = a.Value.String()
			return false
		}
		return true
	}
	for _, a := range h.attrs {
		if !find(a) {
			break
		}
	}
	if entry.RequestID == "" {
		r.Attrs(find)
	}
	h.broadcaster.SubmitLog(entry)
	return nil
}

func (h *broadcastHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *broadcastHandler) WithGroup(string) slog.Handler {
	return h
}

// teeHandler sends each record to both handlers.
type teeHandler struct {
	primary, secondary slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.primary.Enabled(ctx, level) || t.secondary.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if t.primary.Enabled(ctx, r.Level) {
		err = t.primary.Handle(ctx, r.Clone())
	}
	if t.secondary.Enabled(ctx, r.Level) {
		_ = t.secondary.Handle(ctx, r)
	}
	return err
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{primary: t.primary.WithAttrs(attrs), secondary: t.secondary.WithAttrs(attrs)}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{primary: t.primary.WithGroup(name), secondary: t.secondary.WithGroup(name)}
}
