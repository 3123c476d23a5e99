package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ReplayCheckpoint tracks the progress of one projection rebuild run.
type ReplayCheckpoint struct {
	ent.Schema
}

func (ReplayCheckpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("replay_id").Unique().Immutable(),
		field.String("projection").Immutable(),
		field.Int64("start_position").Immutable(),
		field.Int64("last_position").Default(-1),
		field.Int64("target_position").Optional().Nillable(),
		field.Enum("status").
			Values("running", "paused", "completed", "failed", "cancelled").
			Default("running"),
		field.Int("events_processed").Default(0),
		field.Int("chunks_completed").Default(0),
		field.Time("started_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
		field.Time("completed_at").Optional().Nillable(),
		field.String("error").Optional(),
	}
}

func (ReplayCheckpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("projection", "status"),
	}
}
