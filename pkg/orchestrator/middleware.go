package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MiddlewareResult is what a Middleware returns: either "continue" (the
// zero value) or a short-circuiting rejection.
type MiddlewareResult struct {
	Rejected bool
	Code     string
	Reason   string
}

// Middleware is one link in the orchestrator's step-2 interceptor chain.
type Middleware func(ctx context.Context, env Envelope) (MiddlewareResult, error)

// runChain executes middleware in order, stopping at the first rejection
// or error.
func runChain(ctx context.Context, chain []Middleware, env Envelope) (MiddlewareResult, error) {
	for _, m := range chain {
		result, err := m(ctx, env)
		if err != nil {
			return MiddlewareResult{}, err
		}
		if result.Rejected {
			return result, nil
		}
	}
	return MiddlewareResult{}, nil
}

// LoggingMiddleware logs each command's receipt (id, type, correlation id),
// never short-circuiting. It logs neither the outcome nor any timing.
func LoggingMiddleware(log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, env Envelope) (MiddlewareResult, error) {
		start := time.Now()
		log.Info("command received",
			"command_id", env.CommandID,
			"command_type", env.CommandType,
			"correlation_id", env.CorrelationID)
		_ = start // unused: no duration is logged
		return MiddlewareResult{}, nil
	}
}

// ValidatorFunc validates a command's payload against commandType's schema,
// returning a non-nil error to reject.
type ValidatorFunc func(commandType string, payload []byte) error

// ValidationMiddleware rejects commands whose payload fails validate.
func ValidationMiddleware(validate ValidatorFunc) Middleware {
	return func(ctx context.Context, env Envelope) (MiddlewareResult, error) {
		if err := validate(env.CommandType, env.Payload); err != nil {
			return MiddlewareResult{Rejected: true, Code: "VALIDATION_FAILED", Reason: err.Error()}, nil
		}
		return MiddlewareResult{}, nil
	}
}

// RateLimiter caps command throughput per (user, commandType) key using a
// fixed-window counter — adequate for an admin-facing command surface; a
// sliding window or token bucket would be overkill at this volume.
type RateLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	limit    int
	counters map[string]*rateWindow
}

type rateWindow struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter returns a RateLimiter allowing up to limit commands per
// (user, commandType) within each window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		window:   window,
		limit:    limit,
		counters: make(map[string]*rateWindow),
	}
}

// Middleware rejects with RATE_LIMITED once a (user, commandType) key
// exceeds its window budget.
func (r *RateLimiter) Middleware() Middleware {
	return func(ctx context.Context, env Envelope) (MiddlewareResult, error) {
		key := fmt.Sprintf("%s:%s", env.UserID, env.CommandType)

		r.mu.Lock()
		defer r.mu.Unlock()

		now := time.Now()
		w, ok := r.counters[key]
		if !ok || now.After(w.windowEnd) {
			w = &rateWindow{count: 0, windowEnd: now.Add(r.window)}
			r.counters[key] = w
		}
		w.count++
		if w.count > r.limit {
			return MiddlewareResult{Rejected: true, Code: "RATE_LIMITED", Reason: "command rate limit exceeded"}, nil
		}
		return MiddlewareResult{}, nil
	}
}

// Authorizer decides whether userID may issue commandType, returning a
// non-nil error (with a human-readable reason) to deny.
type Authorizer func(userID, commandType string) error

// AuthMiddleware rejects with UNAUTHORIZED when authorize denies the
// command. Optional — omit from a CommandConfig's Middleware chain when
// the context has no auth concept (internal-only commands).
func AuthMiddleware(authorize Authorizer) Middleware {
	return func(ctx context.Context, env Envelope) (MiddlewareResult, error) {
		if err := authorize(env.UserID, env.CommandType); err != nil {
			return MiddlewareResult{Rejected: true, Code: "UNAUTHORIZED", Reason: err.Error()}, nil
		}
		return MiddlewareResult{}, nil
	}
}
