// Package adminapi implements the internal-only admin HTTP surface
// (spec.md §6): rebuild control, poison-event and agent dead-letter
// review, pending-approval review, and circuit-breaker introspection.
// Every route sits behind the test-mode guard described in §6 — this
// surface drives destructive/operator-only actions and is not meant to
// be reachable from a production deployment's public ingress.
package adminapi

// maxListRows bounds every admin listing endpoint — a heuristic cap
// (spec.md §9 open question iii) against an operator requesting an
// unbounded table scan through a debug surface.
const maxListRows = 10000

func clampLimit(requested int) int {
	if requested <= 0 || requested > maxListRows {
		return maxListRows
	}
	return requested
}
