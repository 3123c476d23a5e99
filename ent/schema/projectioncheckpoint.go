package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// ProjectionCheckpoint tracks the last globalPosition a projection handler
// advanced past, per partition. Sentinel -1 means nothing processed yet.
type ProjectionCheckpoint struct {
	ent.Schema
}

func (ProjectionCheckpoint) Fields() []ent.Field {
	return []ent.Field{
		field.String("projection_name").Immutable(),
		field.String("partition_key").Immutable(),
		field.Int64("last_global_position").Default(-1),
		field.String("last_event_id").Optional(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (ProjectionCheckpoint) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("projection_name", "partition_key").Unique(),
	}
}
