package agentbc

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCircuitBreaker_UsesSpecDefaults(t *testing.T) {
	cb := NewCircuitBreaker("remediation-agent")

	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, failing })
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State(), "default policy trips after 5 consecutive failures, not 4")

	_, _ = cb.Execute(func() (any, error) { return nil, failing })
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestNewCircuitBreakerWithPolicy_HonorsConfiguredThreshold(t *testing.T) {
	cb := NewCircuitBreakerWithPolicy("remediation-agent", CircuitBreakerPolicy{
		ConsecutiveFailures: 2,
		OpenTimeout:         time.Minute,
		HalfOpenMaxRequests: 1,
	})

	failing := errors.New("boom")
	_, _ = cb.Execute(func() (any, error) { return nil, failing })
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	_, _ = cb.Execute(func() (any, error) { return nil, failing })
	assert.Equal(t, gobreaker.StateOpen, cb.State(), "configured threshold of 2 should have tripped the breaker")
}

func TestNewCircuitBreakerWithPolicy_ZeroFieldsFallBackToDefaults(t *testing.T) {
	cb := NewCircuitBreakerWithPolicy("remediation-agent", CircuitBreakerPolicy{})

	failing := errors.New("boom")
	for i := 0; i < 4; i++ {
		_, _ = cb.Execute(func() (any, error) { return nil, failing })
	}
	require.Equal(t, gobreaker.StateClosed, cb.State())
}
