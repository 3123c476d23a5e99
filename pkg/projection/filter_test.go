package projection_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/pkg/projection"
)

func TestExplainEvent_AppliesFilterExpr(t *testing.T) {
	engine, registry, _ := newTestEngine(t)
	registry.Register(projection.Definition{
		Name:       "order-summary",
		Kind:       projection.KindPrimary,
		FilterExpr: "{orderId: .order_id, big: (.amount > 100)}",
	})

	result, err := engine.ExplainEvent("order-summary", []byte(`{"order_id":"order-1","amount":150}`))
	require.NoError(t, err)

	m, ok := result.(map[string]any)
	require.True(t, ok, "expected filter to emit an object")
	assert.Equal(t, "order-1", m["orderId"])
	assert.Equal(t, true, m["big"])
}

func TestExplainEvent_UnknownProjection(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.ExplainEvent("does-not-exist", []byte(`{}`))
	require.ErrorIs(t, err, projection.ErrUnknownProjection)
}

func TestExplainEvent_NoFilterExprRegistered(t *testing.T) {
	engine, registry, _ := newTestEngine(t)
	registry.Register(projection.Definition{Name: "no-filter", Kind: projection.KindPrimary})

	_, err := engine.ExplainEvent("no-filter", []byte(`{}`))
	require.ErrorIs(t, err, projection.ErrNoFilterExpr)
}
