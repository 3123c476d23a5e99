// Package workpool is the partitioned, at-least-once, durable task
// scheduler every other subsystem schedules work through: the command
// orchestrator's projection/saga fan-out (§4.B steps 6/6b), the projection
// engine's checkpointed handler invocations (§4.D), event replay's chunk
// processing (§4.E), and process managers/sagas' partition-serialized
// command emission (§4.F).
//
// Scheduling model: tasks with the same PartitionKey run strictly FIFO
// relative to each other; tasks with distinct (or absent) partition keys
// run with bounded global parallelism. A durable per-task row survives
// process restarts — crashes resume the attempt, never a partial mutation,
// which is why registered handlers must themselves be idempotent.
package workpool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// State is a task's lifecycle stage.
type State string

const (
	StateScheduled State = "scheduled"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateDead      State = "dead"
)

// Task is one durable unit of work.
type Task struct {
	TaskID           uuid.UUID
	TargetRef        string
	Args             []byte
	PartitionKey     *string
	AttemptCount     int
	MaxAttempts      int
	InitialBackoffMs int
	Base             float64
	NextRunAt        time.Time
	State            State
	LastError        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LockedBy         *string
	LockedAt         *time.Time
}

// EnqueueOptions customizes a single task's scheduling and retry policy.
type EnqueueOptions struct {
	PartitionKey     *string
	MaxAttempts      int     // default 5
	InitialBackoffMs int     // default 500
	Base             float64 // default 2.0
	RunAt            *time.Time
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.InitialBackoffMs <= 0 {
		o.InitialBackoffMs = 500
	}
	if o.Base <= 0 {
		o.Base = 2.0
	}
	return o
}

// Handler executes one attempt of a task. Handlers MUST be idempotent: a
// crash after a successful mutation but before the task row is marked
// succeeded causes the next attempt to re-run the same handler call.
type Handler func(ctx context.Context, task Task) error

// DeadLetterFunc is invoked once, after a task exhausts MaxAttempts, to
// persist a subsystem-specific dead-letter record (§4.C "onComplete").
type DeadLetterFunc func(ctx context.Context, task Task, finalErr error) error
