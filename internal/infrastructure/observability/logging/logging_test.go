package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLogger(t *testing.T, b *LogBroadcaster) (*ChanneledLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultLoggerConfig()
	cfg.Output = &buf
	cfg.Broadcaster = b
	logger, err := NewChanneledLogger(cfg)
	require.NoError(t, err)
	return logger, &buf
}

func TestLevelCounterTrailingWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	lc := NewLevelCounter(2 * time.Minute)
	lc.now = func() time.Time { return now }

	lc.Record(slog.LevelError, now)
	lc.Record(slog.LevelInfo, now)
	lc.Record(slog.LevelWarn, now.Add(-time.Minute))

	counts := lc.Counts()
	assert.Equal(t, int64(3), counts.Total)
	assert.Equal(t, int64(1), counts.Errors)
	assert.InDelta(t, 1.0/3.0, counts.ErrorRate, 0.0001)

	now = now.Add(3 * time.Minute)
	assert.Equal(t, LevelCounts{}, lc.Counts())
}

func TestChannelsCountEveryRecord(t *testing.T) {
	logger, buf := newBufferedLogger(t, nil)

	logger.Cache().Info("one")
	logger.Database().Error("two")
	logger.LogError(ChannelAlert, "notify", errors.New("boom"), map[string]any{"alertId": "a1"})

	counts := logger.Counter().Counts()
	assert.Equal(t, int64(3), counts.Total)
	assert.Equal(t, int64(2), counts.Errors)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var last map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, "alert", last["channel"])
	assert.Equal(t, "notify", last["operation"])
	assert.Equal(t, "a1", last["alertId"])
}

func TestSetChannelLevel(t *testing.T) {
	logger, buf := newBufferedLogger(t, nil)

	require.NoError(t, logger.SetChannelLevel(ChannelCache, slog.LevelWarn))
	assert.Equal(t, "WARN", logger.GetChannelLevels()["cache"])
	assert.Equal(t, "INFO", logger.GetChannelLevels()["health"])

	buf.Reset()
	logger.Cache().Info("suppressed")
	assert.Empty(t, buf.String())

	assert.Error(t, logger.SetChannelLevel(Channel("nope"), slog.LevelDebug))
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1 FROM t", sanitizeQuery("SELECT 1\n\tFROM   t"))
	assert.True(t, strings.HasSuffix(sanitizeQuery(strings.Repeat("x", 600)), "..."))
}

func receive(t *testing.T, client *Client) LogEntry {
	t.Helper()
	select {
	case message := <-client.Channel:
		var entry LogEntry
		require.NoError(t, json.Unmarshal(message, &entry))
		return entry
	case <-time.After(2 * time.Second):
		t.Fatal("no log entry streamed")
	}
	return LogEntry{}
}

func TestBroadcasterFiltersByChannelAndLevel(t *testing.T) {
	b := NewLogBroadcaster()
	logger, _ := newBufferedLogger(t, b)
	t.Cleanup(func() { logger.Close() })

	client := b.NewClient(AppliedFilters{Channel: ChannelCache, Level: slog.LevelWarn})
	require.True(t, b.RegisterClient(client))

	logger.Cache().Info("below level")
	logger.Alert().Warn("other channel")
	logger.Cache().Warn("delivered")

	entry := receive(t, client)
	assert.Equal(t, "delivered", entry.Message)
	assert.Equal(t, "cache", entry.Channel)
	assert.Equal(t, "WARN", entry.Level)

	select {
	case extra := <-client.Channel:
		t.Fatalf("unexpected entry %s", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcasterCarriesRequestID(t *testing.T) {
	b := NewLogBroadcaster()
	logger, _ := newBufferedLogger(t, b)
	t.Cleanup(func() { logger.Close() })

	client := b.NewClient(AppliedFilters{Channel: ChannelAll, Level: slog.LevelDebug})
	require.True(t, b.RegisterClient(client))

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-42")
	logger.WithContext(ChannelHTTP, ctx).Info("served")

	entry := receive(t, client)
	assert.Equal(t, "req-42", entry.RequestID)
	assert.Equal(t, "http", entry.Channel)
}

func TestBroadcasterShutdownClosesClients(t *testing.T) {
	b := NewLogBroadcaster()
	client := b.NewClient(AppliedFilters{Channel: ChannelAll})
	require.True(t, b.RegisterClient(client))

	b.Shutdown()
	b.Shutdown()

	select {
	case _, open := <-client.Channel:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("client channel not closed")
	}
	assert.False(t, b.RegisterClient(b.NewClient(AppliedFilters{})))
	b.UnregisterClient(client)
}
