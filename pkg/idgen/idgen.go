// Package idgen centralizes the runtime's identifier formats: UUID v7 for
// anything that benefits from roughly time-ordered ids (events, commands,
// correlation chains) and the agent decision id format used throughout the
// agent bounded context's audit trail.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns a UUID v7, falling back to a random v4 if the runtime's
// entropy source ever makes v7 generation fail (practically never).
func New() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}

// DecisionID returns an agent decision identifier in the
// "dec_{epochMs}_{8hex}" format every Agent Audit Event carries.
func DecisionID(now time.Time) string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("dec_%d_%s", now.UnixMilli(), hex.EncodeToString(buf[:]))
}
