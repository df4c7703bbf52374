package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblocks/metric"
)

type testWork struct {
	id    int
	delay time.Duration
	fail  bool
	panic bool
}

func testProcessor(ctx context.Context, w testWork) error {
	if w.panic {
		panic("exploded")
	}
	if w.delay > 0 {
		select {
		case <-time.After(w.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if w.fail {
		return errors.New("failed")
	}
	return nil
}

func waitForProcessed(t *testing.T, p *Pool[testWork], n int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.Stats().Processed >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestNewPool_Defaults(t *testing.T) {
	tests := []struct {
		name      string
		workers   int
		queue     int
		wantWork  int
		wantQueue int
	}{
		{"explicit", 5, 100, 5, 100},
		{"zero workers", 0, 100, defaultWorkers, 100},
		{"zero queue", 5, 0, 5, defaultQueueSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.workers, tt.queue, testProcessor)
			assert.Equal(t, tt.wantWork, pool.workers)
			assert.Equal(t, tt.wantQueue, pool.queueSize)
		})
	}
}

func TestNewPool_NilProcessor(t *testing.T) {
	assert.PanicsWithValue(t, ErrNilProcessor, func() {
		NewPool[testWork](1, 1, nil)
	})
}

func TestPool_Lifecycle(t *testing.T) {
	pool := NewPool(2, 10, testProcessor)

	assert.ErrorIs(t, pool.Submit(testWork{id: 1}), ErrPoolNotStarted)

	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)

	require.NoError(t, pool.Submit(testWork{id: 1}))
	waitForProcessed(t, pool, 1)

	require.NoError(t, pool.Stop(time.Second))
	assert.ErrorIs(t, pool.Submit(testWork{id: 2}), ErrPoolStopped)
	assert.NoError(t, pool.Stop(time.Second), "second stop is a no-op")
}

func TestPool_QueueFull(t *testing.T) {
	release := make(chan struct{})
	blocking := func(ctx context.Context, _ testWork) error {
		<-release
		return nil
	}
	pool := NewPool(1, 1, blocking)
	require.NoError(t, pool.Start(context.Background()))
	defer func() {
		close(release)
		_ = pool.Stop(time.Second)
	}()

	var full error
	for i := 0; i < 10 && full == nil; i++ {
		full = pool.Submit(testWork{id: i})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
	assert.GreaterOrEqual(t, pool.Stats().Dropped, int64(1))
}

func TestPool_FailuresAndPanics(t *testing.T) {
	pool := NewPool(2, 10, testProcessor)
	require.NoError(t, pool.Start(context.Background()))

	require.NoError(t, pool.Submit(testWork{id: 1}))
	require.NoError(t, pool.Submit(testWork{id: 2, fail: true}))
	require.NoError(t, pool.Submit(testWork{id: 3, panic: true}))

	waitForProcessed(t, pool, 3)
	require.NoError(t, pool.Stop(time.Second))

	stats := pool.Stats()
	assert.Equal(t, int64(3), stats.Submitted)
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Panics)
}

func TestPool_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(1, 10, testProcessor)
	require.NoError(t, pool.Start(ctx))

	require.NoError(t, pool.Submit(testWork{id: 1, delay: time.Minute}))
	cancel()

	assert.NoError(t, pool.Stop(2*time.Second))
}

func TestPool_ConcurrentSubmissions(t *testing.T) {
	var handled int64
	pool := NewPool(4, 1000, func(_ context.Context, _ testWork) error {
		atomic.AddInt64(&handled, 1)
		return nil
	})
	require.NoError(t, pool.Start(context.Background()))

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				assert.NoError(t, pool.Submit(testWork{id: g*100 + i}))
			}
		}(g)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&handled) == 500
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, pool.Stop(time.Second))
}

func TestPool_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	pool := NewPool(1, 10, testProcessor, WithMetricsRegistry[testWork](registry, "test_pool"))
	require.NotNil(t, pool.metrics)

	require.NoError(t, pool.Start(context.Background()))
	require.NoError(t, pool.Submit(testWork{id: 1}))
	waitForProcessed(t, pool, 1)
	require.NoError(t, pool.Stop(time.Second))

	assert.Equal(t, 1.0, testutil.ToFloat64(pool.metrics.submitted))

	// A second pool with the same prefix keeps working without metrics.
	dup := NewPool(1, 10, testProcessor, WithMetricsRegistry[testWork](registry, "test_pool"))
	assert.Nil(t, dup.metrics)
}

func TestPool_SentinelErrorsAreUnwrapped(t *testing.T) {
	pool := NewPool(1, 1, testProcessor)
	err := pool.Submit(testWork{})
	assert.True(t, err == ErrPoolNotStarted)
}

func TestIsShed(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{err: ErrQueueFull, want: true},
		{err: ErrPoolStopped, want: true},
		{err: ErrPoolNotStarted, want: false},
		{err: errors.New("other"), want: false},
		{err: nil, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsShed(tt.err), "%v", tt.err)
	}
}
