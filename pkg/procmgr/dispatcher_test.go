package procmgr_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreflow/runtime/internal/testsupport"
	"github.com/coreflow/runtime/pkg/orchestrator"
	"github.com/coreflow/runtime/pkg/procmgr"
	"github.com/coreflow/runtime/pkg/workpool"
)

type fakeExecutor struct {
	executed []orchestrator.Envelope
}

func (f *fakeExecutor) Execute(ctx context.Context, env orchestrator.Envelope) (orchestrator.Result, error) {
	f.executed = append(f.executed, env)
	return orchestrator.Result{Status: orchestrator.ResultSuccess}, nil
}

type shipmentPayload struct {
	OrderID string `json:"order_id"`
}

func TestManager_StartThenSuccessTransitionsInstance(t *testing.T) {
	s := testsupport.NewStore(t)
	pool := workpool.New(s, workpool.Config{PollInterval: 10 * time.Millisecond}, nil, nil)
	t.Cleanup(pool.Stop)

	exec := &fakeExecutor{}
	mgr := procmgr.NewManager(s.DB, pool, exec, nil)

	start := procmgr.EventStart
	success := procmgr.EventSuccess

	mgr.Register(procmgr.Definition{
		PMName: "fulfillment",
		InstanceIDFromPayload: func(payload []byte) (string, error) {
			var p shipmentPayload
			if err := json.Unmarshal(payload, &p); err != nil {
				return "", err
			}
			return p.OrderID, nil
		},
		OnEvent: func(ctx context.Context, inst procmgr.Instance, event procmgr.EventView) (procmgr.Decision, error) {
			switch event.EventType {
			case "OrderPlaced":
				return procmgr.Decision{
					Transition: &start,
					Commands:   []orchestrator.Envelope{{CommandType: "ReserveInventory", Payload: event.Payload}},
				}, nil
			case "InventoryReserved":
				return procmgr.Decision{Transition: &success}, nil
			default:
				return procmgr.Decision{}, nil
			}
		},
	})
	mgr.Wire()
	pool.Start(context.Background())

	payload, err := json.Marshal(shipmentPayload{OrderID: "order-9"})
	require.NoError(t, err)

	enqueue := func(eventType string) {
		args, err := json.Marshal(struct {
			EventID        string `json:"event_id"`
			EventType      string `json:"event_type"`
			GlobalPosition int64  `json:"global_position"`
			CorrelationID  string `json:"correlation_id"`
			Payload        []byte `json:"payload"`
		}{EventID: eventType, EventType: eventType, GlobalPosition: 1, Payload: payload})
		require.NoError(t, err)
		partitionKey := "fulfillment:order-9"
		_, err = pool.Enqueue(context.Background(), "pm-event:fulfillment", args, workpool.EnqueueOptions{PartitionKey: &partitionKey})
		require.NoError(t, err)
	}

	enqueue("OrderPlaced")
	require.Eventually(t, func() bool {
		inst, err := procmgr.NewStore(s.DB).GetOrCreate(context.Background(), "fulfillment", "order-9")
		return err == nil && inst.Status == procmgr.StateProcessing
	}, 5*time.Second, 20*time.Millisecond)

	enqueue("InventoryReserved")
	require.Eventually(t, func() bool {
		inst, err := procmgr.NewStore(s.DB).GetOrCreate(context.Background(), "fulfillment", "order-9")
		return err == nil && inst.Status == procmgr.StateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.Len(t, exec.executed, 1)
	assert.Equal(t, "ReserveInventory", exec.executed[0].CommandType)
}
