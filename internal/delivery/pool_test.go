package delivery

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsAndDrainsJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	handler := HandlerFunc(func(ctx context.Context, job Job) {
		mu.Lock()
		seen = append(seen, job.EndpointID)
		mu.Unlock()
	})

	p := NewPool(handler, 4, 16, zerolog.Nop())
	p.Start(context.Background())
	for _, id := range []string{"wh_a", "wh_b", "wh_c"} {
		require.NoError(t, p.Submit(Job{EndpointID: id, EnqueuedAt: time.Now()}))
	}
	p.Stop()

	assert.ElementsMatch(t, []string{"wh_a", "wh_b", "wh_c"}, seen)
	assert.ErrorIs(t, p.Submit(Job{}), ErrPoolStopped)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	handler := HandlerFunc(func(ctx context.Context, job Job) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		running.Add(-1)
	})

	p := NewPool(handler, 2, 10, zerolog.Nop())
	p.Start(context.Background())
	for i := 0; i < 6; i++ {
		require.NoError(t, p.Submit(Job{}))
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	p.Stop()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_RejectsWhenQueueFull(t *testing.T) {
	p := NewPool(HandlerFunc(func(context.Context, Job) {}), 1, 1, zerolog.Nop())
	require.NoError(t, p.Submit(Job{}))
	assert.ErrorIs(t, p.Submit(Job{}), ErrQueueFull)
	p.Stop()
}

func TestPool_RecoversFromPanics(t *testing.T) {
	var calls atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, job Job) {
		calls.Add(1)
		if job.EndpointID == "wh_bad" {
			panic("bad job")
		}
	})
	p := NewPool(handler, 1, 4, zerolog.Nop())
	p.Start(context.Background())
	require.NoError(t, p.Submit(Job{EndpointID: "wh_bad"}))
	require.NoError(t, p.Submit(Job{EndpointID: "wh_ok"}))
	p.Stop()
	assert.Equal(t, int32(2), calls.Load())
}

func TestPool_DrainsAfterParentContextCancelled(t *testing.T) {
	var calls atomic.Int32
	var cancelled atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, job Job) {
		time.Sleep(10 * time.Millisecond)
		if ctx.Err() != nil {
			cancelled.Add(1)
		}
		calls.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool(handler, 1, 8, zerolog.Nop())
	p.Start(ctx)
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(Job{}))
	}
	cancel()
	p.Stop()

	assert.Equal(t, int32(4), calls.Load())
	assert.Zero(t, cancelled.Load())
}

func TestPool_StopWithinCancelsStuckJobs(t *testing.T) {
	var aborted atomic.Int32
	handler := HandlerFunc(func(ctx context.Context, job Job) {
		select {
		case <-ctx.Done():
			aborted.Add(1)
		case <-time.After(5 * time.Second):
		}
	})

	p := NewPool(handler, 1, 4, zerolog.Nop())
	p.Start(context.Background())
	require.NoError(t, p.Submit(Job{}))
	require.NoError(t, p.Submit(Job{}))

	start := time.Now()
	p.StopWithin(50 * time.Millisecond)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(2), aborted.Load())
}
