package eventstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/eventstore"
)

func newTestStore(t *testing.T) *eventstore.Store {
	return eventstore.New(testsupport.NewStore(t), nil)
}

func TestAppendToStream_AssignsSequentialVersions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.AppendToStream(ctx, "order", "order-1", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderPlaced", Payload: []byte(`{}`)},
		{EventType: "OrderLineAdded", Payload: []byte(`{}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.NewVersion)
	assert.Len(t, result.EventIDs, 2)

	version, err := s.GetStreamVersion(ctx, "order", "order-1")
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestAppendToStream_ConflictOnStaleExpectedVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendToStream(ctx, "order", "order-2", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderPlaced", Payload: []byte(`{}`)},
	})
	require.NoError(t, err)

	_, err = s.AppendToStream(ctx, "order", "order-2", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderCancelled", Payload: []byte(`{}`)},
	})
	require.Error(t, err)

	var conflict *eventstore.Conflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 1, conflict.CurrentVersion)
	assert.Equal(t, 0, conflict.ExpectedVersion)
}

func TestAppendToStream_IdempotencyKeyIsANoOp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	key := "cmd-123"

	first, err := s.AppendToStream(ctx, "order", "order-3", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderPlaced", Payload: []byte(`{}`), IdempotencyKey: &key},
	})
	require.NoError(t, err)

	second, err := s.AppendToStream(ctx, "order", "order-3", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderPlaced", Payload: []byte(`{"retried":true}`), IdempotencyKey: &key},
	})
	require.NoError(t, err)

	assert.Equal(t, first.EventIDs, second.EventIDs)
	assert.Equal(t, first.GlobalPositions, second.GlobalPositions)

	version, err := s.GetStreamVersion(ctx, "order", "order-3")
	require.NoError(t, err)
	assert.Equal(t, 1, version, "the retried append must not be applied a second time")
}

func TestReadFromPosition_FiltersByEventTypeAndOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.AppendToStream(ctx, "order", "order-4", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderPlaced", Payload: []byte(`{}`)},
		{EventType: "OrderShipped", Payload: []byte(`{}`)},
		{EventType: "OrderPlaced", Payload: []byte(`{}`)},
	})
	require.NoError(t, err)

	events, err := s.ReadFromPosition(ctx, 0, 10, []string{"OrderShipped"}, "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "OrderShipped", events[0].EventType)
}

func TestGetByCorrelation_ReturnsFullChain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	correlationID := uuid.New()

	_, err := s.AppendToStream(ctx, "order", "order-5", 0, "ordering", []eventstore.NewEvent{
		{EventType: "OrderPlaced", Payload: []byte(`{}`), CorrelationID: &correlationID},
	})
	require.NoError(t, err)
	_, err = s.AppendToStream(ctx, "inventory", "sku-9", 0, "inventory", []eventstore.NewEvent{
		{EventType: "StockReserved", Payload: []byte(`{}`), CorrelationID: &correlationID},
	})
	require.NoError(t, err)

	events, err := s.GetByCorrelation(ctx, correlationID)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestGetByIdempotencyKey_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByIdempotencyKey(context.Background(), "missing")
	assert.ErrorIs(t, err, eventstore.ErrEventNotFound)
}
