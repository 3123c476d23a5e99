package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Stream holds the schema definition for the per-stream version counter that
// backs optimistic concurrency control in the event store.
type Stream struct {
	ent.Schema
}

// Fields of the Stream.
func (Stream) Fields() []ent.Field {
	return []ent.Field{
		field.String("stream_type").Immutable(),
		field.String("stream_id").Immutable(),
		field.Int("current_version").
			Default(0).
			Comment("equals the highest version of any event on this stream"),
	}
}

// Indexes of the Stream.
func (Stream) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("stream_type", "stream_id").Unique(),
	}
}
