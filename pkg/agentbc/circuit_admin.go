package agentbc

import (
	"errors"
	"fmt"
)

// ErrNoCircuit means an admin call named an agentId with no registered
// subscription, so there is no circuit breaker to report on or reset.
var ErrNoCircuit = errors.New("agentbc: no circuit for agent")

// CircuitState reports the current gobreaker state for one agent's
// subscription handler circuit, for the admin surface's getCircuitState.
func (m *Manager) CircuitState(agentID string) (string, error) {
	cb, ok := m.breakers[agentID]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoCircuit, agentID)
	}
	return cb.State().String(), nil
}

// ResetCircuit forces an agent's circuit breaker back to a fresh closed
// state — gobreaker v1 exposes no in-place reset, so this discards the
// breaker and installs a new one with the same settings.
func (m *Manager) ResetCircuit(agentID string) error {
	if _, ok := m.breakers[agentID]; !ok {
		return fmt.Errorf("%w: %q", ErrNoCircuit, agentID)
	}
	sub := m.subs[agentID]
	m.breakers[agentID] = NewCircuitBreakerWithPolicy(agentID, sub.Config.CircuitBreaker)
	return nil
}
