package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PoisonEvent records an event that a specific projection cannot process.
// Quarantine is scoped to (event, projection): the same event may poison
// one projection while staying healthy for another.
type PoisonEvent struct {
	ent.Schema
}

func (PoisonEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("event_id").Immutable(),
		field.String("event_type").Immutable(),
		field.String("projection_name").Immutable(),
		field.Enum("status").
			Values("pending", "quarantined", "replayed", "ignored").
			Default("pending"),
		field.Int("attempt_count").Default(0),
		field.String("error").Optional(),
		field.String("error_stack").Optional(),
		field.Bytes("event_payload").Optional(),
		field.Time("quarantined_at").Optional().Nillable(),
		field.String("resolved_by").Optional(),
		field.String("review_notes").Optional(),
	}
}

func (PoisonEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id", "projection_name").Unique(),
		index.Fields("status", "projection_name"),
	}
}
