package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// WorkpoolTask is a durable record of one asynchronous unit of work. The
// target is an opaque target_ref string (for example "projection:{name}")
// that the workpool resolves to a registered handler at dispatch time.
type WorkpoolTask struct {
	ent.Schema
}

func (WorkpoolTask) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").StorageKey("task_id").Unique().Immutable(),
		field.String("target_ref").Immutable(),
		field.Bytes("args").Immutable(),
		field.String("partition_key").Optional().Immutable(),
		field.Int("attempt_count").Default(0),
		field.Time("next_run_at").Default(time.Now),
		field.Enum("state").
			Values("scheduled", "running", "succeeded", "failed", "dead").
			Default("scheduled"),
		field.String("last_error").Optional(),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (WorkpoolTask) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("state", "next_run_at"),
		index.Fields("partition_key"),
	}
}
