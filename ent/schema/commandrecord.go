package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// CommandRecord holds the schema definition for the orchestrator's
// exactly-once command bookkeeping row (spec.md §4.B step 1).
type CommandRecord struct {
	ent.Schema
}

// Fields of the CommandRecord.
func (CommandRecord) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			StorageKey("command_id").
			Unique().
			Immutable(),
		field.String("command_type").Immutable(),
		field.Enum("status").
			Values("pending", "completed", "rejected", "failed").
			Default("pending"),
		field.String("correlation_id").Immutable(),
		field.Bytes("result_digest").Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

// Indexes of the CommandRecord.
func (CommandRecord) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("correlation_id"),
		index.Fields("status"),
	}
}
