package replay_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/projection"
	"github.com/coreflow/runtime/pkg/replay"
	"github.com/coreflow/runtime/pkg/workpool"
)

func TestTriggerRebuild_ReplaysExistingEventsThroughHandler(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	registry := projection.NewRegistry()
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)

	var replayed int32
	registry.Register(projection.Definition{
		Name: "order-summary",
		Kind: projection.KindPrimary,
		EventHandlers: map[string]projection.EventHandler{
			"OrderOpened": func(ctx context.Context, args projection.Args) error {
				atomic.AddInt32(&replayed, 1)
				return nil
			},
		},
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := events.AppendToStream(ctx, "order", "order-1", i, "orders", []eventstore.NewEvent{
			{EventType: "OrderOpened", Payload: []byte(`{}`)},
		})
		require.NoError(t, err)
	}

	replayer := replay.New(s, events, registry, pool, nil)
	replayer.Wire()
	pool.Start(ctx)

	replayID, err := replayer.TriggerRebuild(ctx, "order-summary", nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := replayer.GetRebuildStatus(ctx, replayID)
		return err == nil && status.Status == replay.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int32(3), atomic.LoadInt32(&replayed))
}

func TestTriggerRebuild_RejectsSecondConcurrentRun(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	registry := projection.NewRegistry()
	registry.Register(projection.Definition{Name: "noop-projection", Kind: projection.KindPrimary, EventHandlers: map[string]projection.EventHandler{}})
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)

	ctx := context.Background()
	_, err := events.AppendToStream(ctx, "order", "order-2", 0, "orders", []eventstore.NewEvent{{EventType: "OrderOpened", Payload: []byte(`{}`)}})
	require.NoError(t, err)

	replayer := replay.New(s, events, registry, pool, nil)
	replayer.Wire()

	_, err = replayer.TriggerRebuild(ctx, "noop-projection", nil, nil)
	require.NoError(t, err)

	_, err = replayer.TriggerRebuild(ctx, "noop-projection", nil, nil)
	assert.ErrorIs(t, err, replay.ErrReplayAlreadyActive)
}
