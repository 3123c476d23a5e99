package orchestrator_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/domainport"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/workpool"
)

type orderOpened struct {
	OrderID string `json:"order_id"`
}

func newTestOrchestrator(t *testing.T) (*orchestrator.Orchestrator, *workpool.Pool) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)
	return orchestrator.New(s, events, pool, nil), pool
}

func TestExecute_SuccessAppendsEventAndSchedulesProjection(t *testing.T) {
	orch, pool := newTestOrchestrator(t)

	scheduled := make(chan workpool.Task, 1)
	pool.RegisterHandler("projection:order-summary", func(ctx context.Context, task workpool.Task) error {
		scheduled <- task
		return nil
	})

	handler := domainport.CommandHandlerFunc(func(ctx context.Context, commandType string, args []byte) (domainport.Decision, error) {
		var payload orderOpened
		require.NoError(t, json.Unmarshal(args, &payload))
		return domainport.Decision{
			Status:          domainport.DecisionSuccess,
			StreamType:      "order",
			StreamID:        payload.OrderID,
			ExpectedVersion: 0,
			Events: []eventstore.NewEvent{{
				EventType: "OrderOpened",
				Payload:   args,
			}},
			Data: payload.OrderID,
		}, nil
	})

	orch.Register(orchestrator.CommandConfig{
		CommandType: "OpenOrder",
		StreamType:  "order",
		PrimaryProjection: &orchestrator.ProjectionTarget{
			ProjectionName: "order-summary",
			PartitionKeyFromPayload: func(payload []byte) (string, error) {
				var p orderOpened
				if err := json.Unmarshal(payload, &p); err != nil {
					return "", err
				}
				return p.OrderID, nil
			},
		},
		BoundedContext: "orders",
	}, handler)

	pool.Start(context.Background())

	payload, err := json.Marshal(orderOpened{OrderID: "order-1"})
	require.NoError(t, err)

	env := orchestrator.Envelope{
		CommandID:     uuid.New(),
		CommandType:   "OpenOrder",
		CorrelationID: uuid.New(),
		Timestamp:     time.Now(),
		Payload:       payload,
	}

	result, err := orch.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultSuccess, result.Status)
	assert.Equal(t, 1, result.Version)

	select {
	case task := <-scheduled:
		require.NotNil(t, task.PartitionKey)
		assert.Equal(t, "order-1", *task.PartitionKey)
	case <-time.After(5 * time.Second):
		t.Fatal("projection task was never scheduled")
	}
}

func TestExecute_MissingRequiredFieldIsInvalidEnvelope(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	_, err := orch.Execute(context.Background(), orchestrator.Envelope{
		CommandID:   uuid.New(),
		CommandType: "OpenOrder",
		// CorrelationID, Timestamp, UserID, TargetContext all left zero.
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrInvalidEnvelope)
}

func TestExecute_RejectedDecisionDoesNotAppend(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	handler := domainport.CommandHandlerFunc(func(ctx context.Context, commandType string, args []byte) (domainport.Decision, error) {
		return domainport.Decision{
			Status:          domainport.DecisionRejected,
			RejectionCode:   "ORDER_ALREADY_CLOSED",
			RejectionReason: "order is closed",
		}, nil
	})

	orch.Register(orchestrator.CommandConfig{CommandType: "CloseOrder", StreamType: "order", BoundedContext: "orders"}, handler)

	env := orchestrator.Envelope{
		CommandID:     uuid.New(),
		CommandType:   "CloseOrder",
		CorrelationID: uuid.New(),
		Timestamp:     time.Now(),
		Payload:       []byte(`{}`),
	}

	result, err := orch.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultRejected, result.Status)
	assert.Equal(t, "ORDER_ALREADY_CLOSED", result.RejectionCode)
}

func TestExecute_DuplicateCommandIDReturnsPriorOutcome(t *testing.T) {
	orch, _ := newTestOrchestrator(t)

	calls := 0
	handler := domainport.CommandHandlerFunc(func(ctx context.Context, commandType string, args []byte) (domainport.Decision, error) {
		calls++
		return domainport.Decision{
			Status:          domainport.DecisionSuccess,
			StreamType:      "order",
			StreamID:        "order-2",
			ExpectedVersion: calls - 1,
			Events:          []eventstore.NewEvent{{EventType: "OrderOpened", Payload: []byte(`{}`)}},
		}, nil
	})
	orch.Register(orchestrator.CommandConfig{CommandType: "OpenOrder", StreamType: "order", BoundedContext: "orders"}, handler)

	env := orchestrator.Envelope{
		CommandID:     uuid.New(),
		CommandType:   "OpenOrder",
		CorrelationID: uuid.New(),
		Timestamp:     time.Now(),
		Payload:       []byte(`{}`),
	}

	first, err := orch.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultSuccess, first.Status)

	second, err := orch.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.ResultSuccess, second.Status)
	assert.Equal(t, 1, calls, "handler must not re-run for a previously completed command id")
}
