package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// DCBScope is a named, version-OCC'd Dynamic Consistency Boundary spanning
// the set of streamIds a domain operation needs to reason about atomically.
type DCBScope struct {
	ent.Schema
}

func (DCBScope) Fields() []ent.Field {
	return []ent.Field{
		field.String("scope_key").
			Comment(`"tenant:{tid}:{type}:{id}"`).
			Unique().
			Immutable(),
		field.Int("current_version").Default(0),
		field.Strings("stream_ids"),
		field.Time("created_at").Default(time.Now).Immutable(),
		field.Time("last_updated_at").Default(time.Now).UpdateDefault(time.Now),
	}
}

func (DCBScope) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("scope_key").Unique(),
	}
}
