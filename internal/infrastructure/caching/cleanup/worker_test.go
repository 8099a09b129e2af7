package cleanup

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/caching/stores"
	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

func TestRunPurgesExpiredEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := stores.NewTaggedStore(stores.Config{MaxEntries: 10, DefaultTTL: time.Minute}, nil)
	store.SetClock(func() time.Time { return now })

	store.Set("short", 1, time.Second)
	store.Set("long", 2, time.Hour)
	now = now.Add(2 * time.Second)

	var out bytes.Buffer
	worker := NewWorker(store, &Config{CleanupInterval: time.Minute, VerboseReporting: true}, &out, logging.NewDiscardLogger())

	assert.Equal(t, 1, worker.Run(context.Background()))
	assert.Equal(t, []string{"long"}, store.Keys())
	assert.Contains(t, out.String(), "PERIODIC CACHE CLEANUP")
	assert.Contains(t, out.String(), "1 expired entries purged")

	out.Reset()
	assert.Equal(t, 0, worker.Run(context.Background()))
	assert.Contains(t, out.String(), "no expired items found")
}

func TestQuietRunWritesNothing(t *testing.T) {
	store := stores.NewTaggedStore(stores.Config{MaxEntries: 10}, nil)
	var out bytes.Buffer
	worker := NewWorker(store, &Config{CleanupInterval: time.Minute}, &out, logging.NewDiscardLogger())

	worker.Run(context.Background())
	assert.Empty(t, out.String())
	assert.Equal(t, time.Minute, worker.Interval())
}

func TestCancelledContextSkipsSweep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := stores.NewTaggedStore(stores.Config{MaxEntries: 10}, nil)
	worker := NewWorker(store, &Config{CleanupInterval: time.Minute}, nil, logging.NewDiscardLogger())
	assert.Equal(t, 0, worker.Run(ctx))
}

func TestStoreReportShowsCounters(t *testing.T) {
	report := GenerateStoreReport(stores.Stats{
		EntryCount:     10,
		MaxEntries:     10,
		Hits:           3,
		Misses:         7,
		HitRate:        0.3,
		Evictions:      4,
		Deletes:        5,
		MemoryEstimate: 2048,
		TagCount:       2,
	})

	assert.Contains(t, report, "10/10")
	assert.Contains(t, report, "2.0KB")
	assert.Contains(t, report, "30.0%")
	assert.Contains(t, report, "evicted:")
	assert.Contains(t, report, "deleted:")
	assert.Contains(t, report, "cleared:")
}
