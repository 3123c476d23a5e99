package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Event holds the schema definition for a single immutable domain/integration
// event appended to a stream. This is the canonical, hand-maintained
// documentation of the event-store row shape; the runtime store in
// internal/store operates on the equivalent Go struct directly (see
// DESIGN.md for why the generated ent client is not used here).
type Event struct {
	ent.Schema
}

// Fields of the Event.
func (Event) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("event_id").
			Unique().
			Immutable(),
		field.String("event_type").
			Immutable(),
		field.String("stream_type").
			Immutable(),
		field.String("stream_id").
			Immutable(),
		field.Int("version").
			Immutable().
			Comment("1-based, dense per stream"),
		field.Int64("global_position").
			Immutable().
			Comment("timestamp_ms*1e6 + streamHash*1e3 + (version mod 1e3)"),
		field.String("bounded_context").
			Immutable(),
		field.Enum("category").
			Values("domain", "integration", "trigger", "fat").
			Default("domain").
			Immutable(),
		field.Int("schema_version").
			Default(1).
			Immutable(),
		field.String("correlation_id").
			Immutable(),
		field.String("causation_id").
			Optional().
			Nillable().
			Immutable(),
		field.Time("timestamp").
			Default(time.Now).
			Immutable(),
		field.Bytes("payload").
			Comment("opaque JSON payload").
			Immutable(),
		field.Bytes("metadata").
			Optional().
			Immutable(),
		field.String("idempotency_key").
			Optional().
			Nillable().
			Immutable(),
	}
}

// Indexes of the Event. Mirrors spec.md §6 "secondary indexes required".
func (Event) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("stream_type", "stream_id", "version").Unique(),
		index.Fields("global_position").Unique(),
		index.Fields("correlation_id"),
		index.Fields("idempotency_key").Unique(),
		index.Fields("event_type"),
	}
}
