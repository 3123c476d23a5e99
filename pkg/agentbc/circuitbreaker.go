package agentbc

import (
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerPolicy tunes a per-agent breaker's trip/recovery
// thresholds. A zero value field falls back to spec.md §4.G's default:
// 5 consecutive failures trips it open, 60s before it tries half-open,
// and 1 success in half-open closes it again.
type CircuitBreakerPolicy struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenMaxRequests uint32
}

// NewCircuitBreaker wraps gobreaker with spec.md §4.G's default policy.
// State is in-process only — it resets on restart, a documented
// limitation (spec.md §5).
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return NewCircuitBreakerWithPolicy(name, CircuitBreakerPolicy{})
}

// NewCircuitBreakerWithPolicy wraps gobreaker using an explicit,
// operator-configured policy, falling back to the §4.G default for any
// zero field.
func NewCircuitBreakerWithPolicy(name string, policy CircuitBreakerPolicy) *gobreaker.CircuitBreaker {
	consecutiveFailures := policy.ConsecutiveFailures
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	openTimeout := policy.OpenTimeout
	if openTimeout == 0 {
		openTimeout = 60 * time.Second
	}
	maxRequests := policy.HalfOpenMaxRequests
	if maxRequests == 0 {
		maxRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}
