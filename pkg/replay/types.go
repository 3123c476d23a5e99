// Package replay implements chunked event replay (spec.md §4.E): rebuilds
// a projection's read model from its event history by calling the
// projection's registered EventHandlers directly (no projection checkpoint
// is consulted or advanced, so handlers must be idempotent on their own),
// one chunk at a time, serialized on the workpool partition key
// "replay:{projectionName}" so chunks for the same projection never
// interleave with themselves.
package replay

import (
	"time"

	"github.com/google/uuid"
)

// Status is a replay run's lifecycle stage.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Checkpoint is the durable row tracking one replay run.
type Checkpoint struct {
	ReplayID        uuid.UUID  `db:"replay_id"`
	Projection      string     `db:"projection"`
	StartPosition   int64      `db:"start_position"`
	LastPosition    int64      `db:"last_position"`
	TargetPosition  *int64     `db:"target_position"`
	Status          Status     `db:"status"`
	EventsProcessed int64      `db:"events_processed"`
	ChunksCompleted int        `db:"chunks_completed"`
	StartedAt       time.Time  `db:"started_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	Error           *string    `db:"error"`
}

// RebuildStatus is the computed view returned by GetRebuildStatus.
type RebuildStatus struct {
	Checkpoint
	TotalEvents           int64
	PercentComplete       float64
	EstimatedRemainingMs  *int64
}

const (
	defaultChunkSize = 100
)
