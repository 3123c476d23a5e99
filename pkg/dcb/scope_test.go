package dcb_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/dcb"
	"github.com/coreflow/runtime/pkg/eventstore"
)

func TestGetOrCreateScope_CreatesAtVersionZero(t *testing.T) {
	s := testsupport.NewStore(t)
	store := dcb.NewStore(s.DB, eventstore.New(s, nil))

	key := dcb.ScopeKey("tenant-1", "reservation", "res-1")
	scope, err := store.GetOrCreateScope(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 0, scope.CurrentVersion)

	again, err := store.GetOrCreateScope(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 0, again.CurrentVersion)
}

func TestCommitScope_OCCRejectsStaleExpectedVersion(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	store := dcb.NewStore(s.DB, events)

	key := dcb.ScopeKey("tenant-1", "reservation", "res-2")
	_, err := store.GetOrCreateScope(context.Background(), key)
	require.NoError(t, err)

	scope, err := store.CommitScope(context.Background(), key, 0, []string{"product:p1"})
	require.NoError(t, err)
	assert.Equal(t, 1, scope.CurrentVersion)
	assert.Equal(t, []string{"product:p1"}, scope.StreamIDs)

	_, err = store.CommitScope(context.Background(), key, 0, []string{"product:p2"})
	assert.ErrorIs(t, err, dcb.ErrVersionConflict)

	scope, err = store.CommitScope(context.Background(), key, 1, []string{"product:p2"})
	require.NoError(t, err)
	assert.Equal(t, 2, scope.CurrentVersion)
	assert.ElementsMatch(t, []string{"product:p1", "product:p2"}, scope.StreamIDs)
}

func TestReadVirtualStream_AggregatesAcrossScopedStreamsInOrder(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	store := dcb.NewStore(s.DB, events)

	payload, err := json.Marshal(map[string]string{"sku": "p1"})
	require.NoError(t, err)
	_, err = events.AppendToStream(context.Background(), "product", "p1", 0, "inventory", []eventstore.NewEvent{
		{EventType: "StockReserved", BoundedContext: "inventory", Payload: payload},
	})
	require.NoError(t, err)
	_, err = events.AppendToStream(context.Background(), "product", "p2", 0, "inventory", []eventstore.NewEvent{
		{EventType: "StockReserved", BoundedContext: "inventory", Payload: payload},
	})
	require.NoError(t, err)

	key := dcb.ScopeKey("tenant-1", "reservation", "res-3")
	_, err = store.CommitScope(context.Background(), key, 0, []string{"product:p1", "product:p2"})
	require.NoError(t, err)

	stream, err := store.ReadVirtualStream(context.Background(), key, 0, 10)
	require.NoError(t, err)
	assert.Len(t, stream, 2)
	assert.LessOrEqual(t, stream[0].GlobalPosition, stream[1].GlobalPosition)
}
