// Package projection implements the checkpointed, partition-ordered
// projection engine (spec.md §4.D): event handlers registered against a
// projectionName are invoked at most once per (projectionName,
// partitionKey, globalPosition) via a checkpoint table, serialized by
// workpool partition key, and quarantined into the poison-events store
// after repeated failure.
package projection

import "context"

// Category classifies what a projection is for.
type Category string

const (
	CategoryView        Category = "view"
	CategoryIntegration Category = "integration"
	CategoryLogic       Category = "logic"
	CategoryReporting   Category = "reporting"
)

// Kind controls rebuild ordering: primary projections rebuild before
// secondary, which rebuild before cross-context.
type Kind string

const (
	KindPrimary      Kind = "primary"
	KindSecondary    Kind = "secondary"
	KindCrossContext Kind = "cross-context"
)

// Args is what an EventHandler receives for one matching event.
type Args struct {
	EventID        string
	EventType      string
	GlobalPosition int64
	PartitionKey   string
	Payload        []byte
}

// EventHandler mutates a projection's read model for one event. Handlers
// must be safe to call more than once for the same Args if a crash lands
// between the handler's own write and the checkpoint advance — the engine
// only guarantees each globalPosition is dispatched once per partition
// under normal operation, not exactly-once in the face of arbitrary
// handler-side partial writes.
type EventHandler func(ctx context.Context, args Args) error

// PartitionKeyFunc derives a projection's serialization key from the raw
// event payload (e.g. orderId).
type PartitionKeyFunc func(payload []byte) (string, error)

// Definition is one registered projection.
type Definition struct {
	Name           string
	Category       Category
	Kind           Kind
	BoundedContext string

	// EventHandlers maps eventType to the handler invoked for it. Event
	// types with no entry are ignored.
	EventHandlers map[string]EventHandler

	// GetPartitionKey derives the serialization/checkpoint key from the
	// event payload. If nil, the projection name itself is the partition
	// key (effectively unpartitioned, single-threaded for this
	// projection).
	GetPartitionKey PartitionKeyFunc

	// FilterExpr is an optional gojq filter expression run against an
	// event's decoded JSON payload before the admin preview surface shows
	// it. It has no effect on dispatch to EventHandlers — those always
	// receive the raw payload — it only shapes what ExplainEvent returns,
	// so an operator can see what a handler's input would look like
	// without registering a throwaway Go handler to find out.
	FilterExpr string
}

// PartitionKey derives the serialization/checkpoint key for payload,
// falling back to the projection's own name when no GetPartitionKey was
// registered.
func (d Definition) PartitionKey(payload []byte) (string, error) {
	if d.GetPartitionKey == nil {
		return d.Name, nil
	}
	return d.GetPartitionKey(payload)
}
