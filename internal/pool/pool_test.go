package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolLifecycle(t *testing.T) {
	p := New(2, 4)

	t.Run("rejects before start", func(t *testing.T) {
		err := p.Submit(func(context.Context) {})
		assert.ErrorIs(t, err, ErrNotStarted)
		assert.True(t, IsRejected(err))
	})

	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	t.Run("runs tasks", func(t *testing.T) {
		var wg sync.WaitGroup
		var ran atomic.Int64
		for i := 0; i < 4; i++ {
			wg.Add(1)
			require.NoError(t, p.Submit(func(context.Context) {
				defer wg.Done()
				ran.Add(1)
			}))
		}
		wg.Wait()
		assert.Equal(t, int64(4), ran.Load())
	})

	require.NoError(t, p.Stop(time.Second))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrStopped)
	assert.NoError(t, p.Stop(time.Second), "second stop is a no-op")
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := New(1, 1)
	require.NoError(t, p.Start(context.Background()))

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-block
	}))
	<-started

	require.NoError(t, p.Submit(func(context.Context) {}))
	err := p.Submit(func(context.Context) {})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), p.Stats().Dropped)

	close(block)
	require.NoError(t, p.Stop(time.Second))
	assert.Equal(t, int64(2), p.Stats().Processed)
}

func TestPoolRecoversPanics(t *testing.T) {
	p := New(1, 4)
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker died after panic")
	}
	require.NoError(t, p.Stop(time.Second))

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.Panicked)
	assert.Equal(t, int64(2), stats.Processed)
}

func TestPoolStopTimeout(t *testing.T) {
	p := New(1, 1)
	require.NoError(t, p.Start(context.Background()))

	block := make(chan struct{})
	defer close(block)
	require.NoError(t, p.Submit(func(context.Context) { <-block }))

	assert.ErrorIs(t, p.Stop(10*time.Millisecond), ErrStopTimeout)
}

func TestPoolMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := New(1, 2, WithRegisterer(reg, "test_events"))
	require.NoError(t, p.Start(context.Background()))

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))
	<-done
	require.NoError(t, p.Stop(time.Second))

	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.submitted))
	assert.Equal(t, float64(1), testutil.ToFloat64(p.metrics.processed))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_events_submitted_total")
	assert.Contains(t, names, "test_events_task_duration_seconds")
}

func TestDefaults(t *testing.T) {
	p := New(0, 0)
	stats := p.Stats()
	assert.Equal(t, DefaultWorkers, stats.Workers)
	assert.Equal(t, DefaultQueueSize, stats.QueueSize)
}
