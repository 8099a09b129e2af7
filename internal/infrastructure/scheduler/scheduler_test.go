package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/compliance-core/internal/infrastructure/observability/logging"
)

func TestRegisterValidatesJobs(t *testing.T) {
	s := New(logging.NewDiscardLogger())

	assert.ErrorIs(t, s.Register(Job{Name: "", Interval: time.Second, Run: func(context.Context) {}}), ErrInvalidJob)
	assert.ErrorIs(t, s.Register(Job{Name: "x", Interval: 0, Run: func(context.Context) {}}), ErrInvalidJob)
	assert.ErrorIs(t, s.Register(Job{Name: "x", Interval: time.Second}), ErrInvalidJob)
	require.NoError(t, s.Register(Job{Name: "ok", Interval: time.Second, Run: func(context.Context) {}}))
	assert.Equal(t, []string{"ok"}, s.Jobs())
}

func TestJobsRunUntilStop(t *testing.T) {
	s := New(logging.NewDiscardLogger())

	var runs atomic.Int32
	require.NoError(t, s.Register(Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context) {
		runs.Add(1)
	}}))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.ErrorIs(t, s.Register(Job{Name: "late", Interval: time.Second, Run: func(context.Context) {}}), ErrAlreadyStarted)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop returns")
}

func TestStopRunsDrainsAfterLoopsExit(t *testing.T) {
	s := New(logging.NewDiscardLogger())

	var running atomic.Bool
	require.NoError(t, s.Register(Job{Name: "slow", Interval: time.Millisecond, Run: func(ctx context.Context) {
		running.Store(true)
		time.Sleep(10 * time.Millisecond)
		running.Store(false)
	}}))

	var order []string
	var sawRunning bool
	s.OnStop("flush", func(context.Context) error {
		sawRunning = running.Load()
		order = append(order, "flush")
		return nil
	})
	s.OnStop("notify", func(context.Context) error {
		order = append(order, "notify")
		return errors.New("smtp down")
	})

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, running.Load, time.Second, time.Millisecond)

	err := s.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notify: smtp down")
	assert.False(t, sawRunning)
	assert.Equal(t, []string{"flush", "notify"}, order)

	assert.NoError(t, s.Stop(context.Background()))
}

func TestPanickingJobKeepsLooping(t *testing.T) {
	s := New(logging.NewDiscardLogger())

	var runs atomic.Int32
	require.NoError(t, s.Register(Job{Name: "boom", Interval: 2 * time.Millisecond, Run: func(context.Context) {
		runs.Add(1)
		panic("boom")
	}}))

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	s := New(logging.NewDiscardLogger())
	called := false
	s.OnStop("drain", func(context.Context) error { called = true; return nil })
	assert.NoError(t, s.Stop(context.Background()))
	assert.False(t, called)
}
