// Package eventstore implements the append-only, globally ordered event
// store every bounded context writes through: appendToStream with optimistic
// concurrency control, idempotent retries, and read paths by stream,
// global position, correlation, and idempotency key.
package eventstore

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an event for subscription routing and projection
// registry filtering.
type Category string

const (
	CategoryDomain      Category = "domain"
	CategoryIntegration Category = "integration"
	CategoryTrigger     Category = "trigger"
	CategoryFat         Category = "fat"
)

// Event is the immutable unit of record. Payload and Metadata are opaque
// JSON to the store; domain packages own their shape.
type Event struct {
	EventID         uuid.UUID
	EventType       string
	StreamType      string
	StreamID        string
	Version         int
	GlobalPosition  int64
	BoundedContext  string
	Category        Category
	SchemaVersion   int
	CorrelationID   uuid.UUID
	CausationID     *uuid.UUID
	Timestamp       time.Time
	Payload         []byte
	Metadata        []byte
	IdempotencyKey  *string
}

// NewEvent is the unpersisted append request for one event within a call to
// AppendToStream. Version, GlobalPosition, EventID, Timestamp, and
// CorrelationID (if absent) are assigned by the store.
type NewEvent struct {
	EventType      string
	BoundedContext string
	Category       Category // defaults to CategoryDomain
	SchemaVersion  int      // defaults to 1
	CorrelationID  *uuid.UUID
	CausationID    *uuid.UUID
	Payload        []byte
	Metadata       []byte
	IdempotencyKey *string
}

// AppendResult is the outcome of a successful AppendToStream call.
type AppendResult struct {
	EventIDs        []uuid.UUID
	GlobalPositions []int64
	NewVersion      int
}

// Conflict is returned (as an error) when the caller's ExpectedVersion does
// not match the stream's current version.
type Conflict struct {
	StreamType      string
	StreamID        string
	ExpectedVersion int
	CurrentVersion  int
}

func (c *Conflict) Error() string {
	return "eventstore: version conflict on " + c.StreamType + ":" + c.StreamID
}
