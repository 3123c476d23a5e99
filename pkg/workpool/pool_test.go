package workpool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/workpool"
)

func newTestPool(t *testing.T, cfg workpool.Config) *workpool.Pool {
	s := testsupport.NewStore(t)
	if cfg.PodID == "" {
		cfg.PodID = "test-pod"
	}
	pool := workpool.New(s, cfg, nil, nil)
	t.Cleanup(pool.Stop)
	return pool
}

func TestPool_ExecutesEnqueuedTaskExactlyOnceOnSuccess(t *testing.T) {
	pool := newTestPool(t, workpool.Config{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var calls int32
	done := make(chan struct{})
	pool.RegisterHandler("noop", func(ctx context.Context, task workpool.Task) error {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(done)
		}
		return nil
	})

	pool.Start(ctx)
	_, err := pool.Enqueue(ctx, "noop", []byte(`{}`), workpool.EnqueueOptions{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("task was never executed")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPool_RetriesWithBackoffThenDeadLetters(t *testing.T) {
	pool := newTestPool(t, workpool.Config{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var attempts int32
	deadLettered := make(chan struct{})

	pool.RegisterHandler("always-fails", func(ctx context.Context, task workpool.Task) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	})
	pool.RegisterDeadLetterFunc("always-fails", func(ctx context.Context, task workpool.Task, finalErr error) error {
		close(deadLettered)
		return nil
	})

	pool.Start(ctx)
	_, err := pool.Enqueue(ctx, "always-fails", []byte(`{}`), workpool.EnqueueOptions{})
	require.NoError(t, err)

	select {
	case <-deadLettered:
	case <-time.After(15 * time.Second):
		t.Fatal("task was never dead-lettered")
	}

	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&attempts)), 5)
}

func TestPool_HonorsPerTaskMaxAttempts(t *testing.T) {
	pool := newTestPool(t, workpool.Config{PollInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var attempts int32
	deadLettered := make(chan struct{})

	pool.RegisterHandler("always-fails-custom", func(ctx context.Context, task workpool.Task) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	})
	pool.RegisterDeadLetterFunc("always-fails-custom", func(ctx context.Context, task workpool.Task, finalErr error) error {
		close(deadLettered)
		return nil
	})

	pool.Start(ctx)
	_, err := pool.Enqueue(ctx, "always-fails-custom", []byte(`{}`), workpool.EnqueueOptions{
		MaxAttempts:      2,
		InitialBackoffMs: 5,
		Base:             1.0,
	})
	require.NoError(t, err)

	select {
	case <-deadLettered:
	case <-time.After(15 * time.Second):
		t.Fatal("task was never dead-lettered")
	}

	assert.Equal(t, 2, int(atomic.LoadInt32(&attempts)), "a MaxAttempts: 2 policy must not run a 3rd attempt")
}

func TestPool_SerializesTasksWithinAPartition(t *testing.T) {
	pool := newTestPool(t, workpool.Config{PollInterval: 5 * time.Millisecond, MaxParallelism: 4})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var mu sync.Mutex
	var order []int
	var active int32
	var sawOverlap bool

	pool.RegisterHandler("serialized", func(ctx context.Context, task workpool.Task) error {
		if atomic.AddInt32(&active, 1) > 1 {
			sawOverlap = true
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&active, -1)

		var n int
		mu.Lock()
		n = len(order) + 1
		order = append(order, n)
		mu.Unlock()
		return nil
	})

	partition := "order-1"
	for i := 0; i < 5; i++ {
		_, err := pool.Enqueue(ctx, "serialized", []byte(`{}`), workpool.EnqueueOptions{PartitionKey: &partition})
		require.NoError(t, err)
	}

	pool.Start(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, 10*time.Second, 20*time.Millisecond)

	assert.False(t, sawOverlap, "tasks sharing a partition key must not run concurrently")
}
