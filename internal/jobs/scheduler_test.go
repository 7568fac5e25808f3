package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sumfields/sumfields/internal/logger"
	"github.com/sumfields/sumfields/internal/status"
)

func noop(ctx context.Context) error { return nil }

func TestAddScheduleValidation(t *testing.T) {
	s := NewScheduler(nil)

	err := s.AddSchedule(Every("", time.Minute, noop))
	assert.ErrorContains(t, err, "schedule name is required")

	err = s.AddSchedule(Every("gendata", 0, noop))
	assert.ErrorContains(t, err, "interval must be positive")

	err = s.AddSchedule(Every("gendata", time.Minute, nil))
	assert.ErrorContains(t, err, "task is required")

	require.NoError(t, s.AddSchedule(Every("gendata", time.Minute, noop)))
	err = s.AddSchedule(Every("gendata", time.Minute, noop))
	assert.ErrorContains(t, err, "already exists")

	require.Len(t, s.schedules, 1)
	assert.True(t, s.schedules["gendata"].Enabled)
	assert.False(t, s.schedules["gendata"].NextRun.IsZero())
}

func TestRunDue(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := NewScheduler(logger.NewWithCore(core))

	base := time.Date(2026, time.October, 17, 2, 0, 0, 0, time.UTC)
	clock := base
	s.now = func() time.Time { return clock }

	var calls int
	require.NoError(t, s.AddSchedule(Every("gendata", time.Hour, func(ctx context.Context) error {
		calls++
		return nil
	})))
	require.NoError(t, s.AddSchedule(Every("busy", time.Hour, func(ctx context.Context) error {
		return status.ErrBusy
	})))
	require.NoError(t, s.AddSchedule(Every("broken", time.Hour, func(ctx context.Context) error {
		return errors.New("boom")
	})))

	s.runDue(context.Background(), base.Add(30*time.Minute))
	assert.Equal(t, 0, calls)

	clock = base.Add(time.Hour)
	s.runDue(context.Background(), clock)
	assert.Equal(t, 1, calls)

	for _, sc := range s.schedules {
		assert.Equal(t, base.Add(time.Hour), sc.LastRun)
		assert.Equal(t, base.Add(2*time.Hour), sc.NextRun)
	}

	assert.Equal(t, 1, logs.FilterMessage("scheduled task skipped, a run is in progress").Len())
	failed := logs.FilterMessage("scheduled task failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["name"])
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(nil)
	s.tick = 5 * time.Millisecond

	var calls int32
	require.NoError(t, s.AddSchedule(Every("gendata", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})))

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := atomic.LoadInt32(&calls)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&calls))

	s.Stop()
}

func TestScheduler_StopsOnContext(t *testing.T) {
	s := NewScheduler(nil)
	s.tick = 5 * time.Millisecond

	taskCtx := make(chan context.Context, 1)
	require.NoError(t, s.AddSchedule(Every("gendata", time.Millisecond, func(ctx context.Context) error {
		select {
		case taskCtx <- ctx:
		default:
		}
		<-ctx.Done()
		return ctx.Err()
	})))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	var running context.Context
	select {
	case running = <-taskCtx:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	cancel()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Error(t, running.Err())
}
