package agentbc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/coreflow/runtime/pkg/workpool"
)

// ReplayDeadLetter re-enqueues a pending agent dead letter's triggering
// event against its subscription and marks the dead letter replayed — the
// per-agent analogue of projection.Engine.ReplayPoisonEvent.
func (m *Manager) ReplayDeadLetter(ctx context.Context, deadLetterID uuid.UUID) error {
	dl, err := m.deadletters.Get(ctx, deadLetterID)
	if err != nil {
		return err
	}
	if dl.Status != DeadLetterPending {
		return fmt.Errorf("agentbc: dead letter %s is not pending", deadLetterID)
	}
	if _, ok := m.subs[dl.AgentID]; !ok {
		return fmt.Errorf("agentbc: no subscription registered for agent %q", dl.AgentID)
	}

	args, err := json.Marshal(agentEventArgs{EventID: dl.EventID.String(), GlobalPosition: dl.GlobalPosition})
	if err != nil {
		return fmt.Errorf("agentbc: marshal replay args: %w", err)
	}
	partitionKey := dl.AgentID + ":" + dl.SubscriptionID
	if _, err := m.pool.Enqueue(ctx, "agent-event:"+dl.AgentID, args, workpool.EnqueueOptions{PartitionKey: &partitionKey}); err != nil {
		return fmt.Errorf("agentbc: reschedule dead letter %s: %w", deadLetterID, err)
	}
	return m.deadletters.SetStatus(ctx, deadLetterID, DeadLetterReplayed)
}

// IgnoreDeadLetter marks a pending agent dead letter ignored without
// replaying it.
func (m *Manager) IgnoreDeadLetter(ctx context.Context, deadLetterID uuid.UUID) error {
	return m.deadletters.SetStatus(ctx, deadLetterID, DeadLetterIgnored)
}
