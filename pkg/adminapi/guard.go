package adminapi

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
)

// ProductionMarkerEnv is the environment variable whose presence means
// "this process is running in production" (spec.md §6 test-mode guard).
// Its value is never inspected, only whether it is set at all.
const ProductionMarkerEnv = "COREFLOW_PRODUCTION"

// GuardConfig selects which of the three test-mode guard conditions
// (spec.md §6) this server honors: an explicit flag, a test-harness
// global, or the absence of the production marker env var. Production
// mode is the default — all three must fail the override check for a
// test-only route to be refused.
type GuardConfig struct {
	// TestMode is an explicit operator/flag override (e.g. a CLI --test-mode
	// flag or a config field), always wins when true.
	TestMode bool

	// HarnessGlobal, when non-nil, is consulted as a second override —
	// e.g. a package-level bool a test binary flips before driving the
	// admin surface in-process.
	HarnessGlobal func() bool
}

// testOnlyGuard refuses every request unless the caller is in a non-
// production context by one of the three §6 conditions.
func testOnlyGuard(cfg GuardConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.TestMode {
				return next(c)
			}
			if cfg.HarnessGlobal != nil && cfg.HarnessGlobal() {
				return next(c)
			}
			if _, productionMarkerSet := os.LookupEnv(ProductionMarkerEnv); !productionMarkerSet {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, "admin surface disabled: production marker is set and no test-mode override is active")
		}
	}
}

// securityHeaders sets the same baseline response headers the public API
// server does, since this surface is still reachable over HTTP even though
// it is meant to stay off any public ingress.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}
