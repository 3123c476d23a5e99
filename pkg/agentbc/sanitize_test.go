package agentbc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeError_StripsStackFramesAndPaths(t *testing.T) {
	raw := "nil pointer dereference\n    at /root/module/pkg/agentbc/subscriber.go:120\n    at /usr/local/go/src/runtime/panic.go:260"
	got := sanitizeError(raw)
	assert.NotContains(t, got, "at /")
	assert.Contains(t, got, "[path]")
	assert.Contains(t, got, "nil pointer dereference")
}

func TestSanitizeError_TruncatesLongMessages(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	got := sanitizeError(raw)
	assert.LessOrEqual(t, len(got), maxSanitizedErrorLen)
	assert.True(t, strings.HasSuffix(got, "…"))
}
