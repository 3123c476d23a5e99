package agentbc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/agentbc"
	"github.com/coreflow/runtime/pkg/eventstore"
	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/workpool"
)

type fakeExecutor struct {
	executed []orchestrator.Envelope
}

func (f *fakeExecutor) Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error) {
	f.executed = append(f.executed, env)
	return orchestrator.Result{Status: orchestrator.ResultSuccess}, nil
}

type orderPlaced struct {
	OrderID string `json:"order_id"`
}

func TestLifecycleHandler_StartThenInvalidTransitionRejected(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	checkpoints := agentbc.NewCheckpointStore(s.DB)
	audit := agentbc.NewAuditLog(s.DB)
	handler := agentbc.NewLifecycleHandler(checkpoints, audit, events)

	payload, err := json.Marshal(map[string]string{"agent_id": "fraud-detector"})
	require.NoError(t, err)

	decision, err := handler.Handle(context.Background(), "StartAgent", payload)
	require.NoError(t, err)
	assert.Equal(t, "success", string(decision.Status))

	checkpoint, err := checkpoints.GetOrCreate(context.Background(), "fraud-detector", "fraud-detector")
	require.NoError(t, err)
	assert.Equal(t, agentbc.LifecycleActive, checkpoint.Status)

	decision, err = handler.Handle(context.Background(), "StartAgent", payload)
	require.NoError(t, err)
	assert.Equal(t, "rejected", string(decision.Status))
	assert.Equal(t, "INVALID_LIFECYCLE_TRANSITION", decision.RejectionCode)
}

func TestManager_HighConfidenceDecisionRoutesCommandDirectly(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)

	checkpoints := agentbc.NewCheckpointStore(s.DB)
	_, err := checkpoints.GetOrCreate(context.Background(), "fraud-detector", "fraud-detector")
	require.NoError(t, err)
	require.NoError(t, checkpoints.SetStatus(context.Background(), "fraud-detector", agentbc.LifecycleActive))

	exec := &fakeExecutor{}
	mgr := agentbc.NewManager(s.DB, events, pool, exec, nil)
	mgr.Register(agentbc.Subscription{
		AgentID:        "fraud-detector",
		SubscriptionID: "fraud-detector",
		EventTypes:     []string{"OrderPlaced"},
		Config: agentbc.Config{
			PatternWindow: agentbc.PatternWindow{Duration: "1h", MinEvents: 1, EventLimit: 10},
		},
		OnEvent: func(ctx context.Context, ec agentbc.AgentExecutionContext) (*agentbc.Decision, error) {
			return &agentbc.Decision{
				Command:    &orchestrator.Envelope{CommandType: "FlagOrder", Payload: ec.Event.Payload},
				Confidence: 0.99,
			}, nil
		},
	})
	mgr.Wire()
	pool.Start(context.Background())

	payload, err := json.Marshal(orderPlaced{OrderID: "ord-1"})
	require.NoError(t, err)
	appendResult, err := events.AppendToStream(context.Background(), "order", "ord-1", 0, "orders", []eventstore.NewEvent{
		{EventType: "OrderPlaced", BoundedContext: "orders", Payload: payload},
	})
	require.NoError(t, err)

	args, err := json.Marshal(struct {
		EventID        string `json:"event_id"`
		EventType      string `json:"event_type"`
		StreamID       string `json:"stream_id"`
		GlobalPosition int64  `json:"global_position"`
	}{
		EventID:        appendResult.EventIDs[0].String(),
		EventType:      "OrderPlaced",
		StreamID:       "ord-1",
		GlobalPosition: appendResult.GlobalPositions[0],
	})
	require.NoError(t, err)

	partitionKey := "fraud-detector:ord-1"
	_, err = pool.Enqueue(context.Background(), "agent-event:fraud-detector", args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(exec.executed) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "FlagOrder", exec.executed[0].CommandType)
}

func TestManager_LowConfidenceDecisionRaisesApproval(t *testing.T) {
	s := testsupport.NewStore(t)
	events := eventstore.New(s, nil)
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)

	checkpoints := agentbc.NewCheckpointStore(s.DB)
	_, err := checkpoints.GetOrCreate(context.Background(), "fraud-detector", "fraud-detector")
	require.NoError(t, err)
	require.NoError(t, checkpoints.SetStatus(context.Background(), "fraud-detector", agentbc.LifecycleActive))

	exec := &fakeExecutor{}
	approvals := agentbc.NewApprovalStore(s.DB)
	mgr := agentbc.NewManager(s.DB, events, pool, exec, nil)
	mgr.Register(agentbc.Subscription{
		AgentID:        "fraud-detector",
		SubscriptionID: "fraud-detector",
		EventTypes:     []string{"OrderPlaced"},
		Config: agentbc.Config{
			PatternWindow:       agentbc.PatternWindow{Duration: "1h", MinEvents: 1, EventLimit: 10},
			ConfidenceThreshold: 0.9,
		},
		OnEvent: func(ctx context.Context, ec agentbc.AgentExecutionContext) (*agentbc.Decision, error) {
			return &agentbc.Decision{
				Command:    &orchestrator.Envelope{CommandType: "FlagOrder", Payload: ec.Event.Payload},
				Confidence: 0.5,
				Reason:     "unusual order size",
			}, nil
		},
	})
	mgr.Wire()
	pool.Start(context.Background())

	payload, err := json.Marshal(orderPlaced{OrderID: "ord-2"})
	require.NoError(t, err)
	appendResult, err := events.AppendToStream(context.Background(), "order", "ord-2", 0, "orders", []eventstore.NewEvent{
		{EventType: "OrderPlaced", BoundedContext: "orders", Payload: payload},
	})
	require.NoError(t, err)

	args, err := json.Marshal(struct {
		EventID        string `json:"event_id"`
		EventType      string `json:"event_type"`
		StreamID       string `json:"stream_id"`
		GlobalPosition int64  `json:"global_position"`
	}{
		EventID:        appendResult.EventIDs[0].String(),
		EventType:      "OrderPlaced",
		StreamID:       "ord-2",
		GlobalPosition: appendResult.GlobalPositions[0],
	})
	require.NoError(t, err)

	partitionKey := "fraud-detector:ord-2"
	_, err = pool.Enqueue(context.Background(), "agent-event:fraud-detector", args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var count int
		err := s.DB.Get(&count, `SELECT count(*) FROM pending_approvals WHERE agent_id = $1`, "fraud-detector")
		return err == nil && count == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Empty(t, exec.executed)
	_ = approvals
}

func TestCheckBudget_DeniesWhenOverDailyBudget(t *testing.T) {
	tracker := agentbc.BudgetTracker{DailyBudget: 10, CurrentSpend: 9.5}
	decision := agentbc.CheckBudget(tracker, 1.0)
	assert.True(t, decision.Denied)
	assert.Equal(t, "budget_exceeded", decision.Reason)
}

func TestCheckBudget_AllowsWithinBudgetAndFlagsAlertThreshold(t *testing.T) {
	tracker := agentbc.BudgetTracker{DailyBudget: 10, CurrentSpend: 9, AlertThreshold: 0.8}
	decision := agentbc.CheckBudget(tracker, 0.5)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.AtAlertThreshold)
}
