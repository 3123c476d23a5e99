package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/coreflow/runtime/internal/store"
	"github.com/coreflow/runtime/pkg/agentbc"
	"github.com/coreflow/runtime/pkg/projection"
	"github.com/coreflow/runtime/pkg/replay"
	"github.com/coreflow/runtime/pkg/workpool"
)

// Server is the admin-only HTTP surface (spec.md §6): rebuild control,
// poison-event and agent dead-letter review, pending-approval review, and
// circuit-breaker introspection, plus a /healthz mirroring the public
// API's health shape.
type Server struct {
	echo *echo.Echo
	http *http.Server

	db         *store.Store
	pool       *workpool.Pool
	replayer   *replay.Replayer
	projection *projection.Engine
	agents     *agentbc.Manager
	approvals  *agentbc.ApprovalStore
	deadletter *agentbc.DeadLetterStore
}

// New wires the admin server over its subsystems. guard selects which of
// the §6 test-mode overrides this deployment honors.
func New(db *store.Store, pool *workpool.Pool, replayer *replay.Replayer, proj *projection.Engine, agents *agentbc.Manager, approvals *agentbc.ApprovalStore, deadletter *agentbc.DeadLetterStore, guard GuardConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:       e,
		db:         db,
		pool:       pool,
		replayer:   replayer,
		projection: proj,
		agents:     agents,
		approvals:  approvals,
		deadletter: deadletter,
	}

	e.Use(securityHeaders())
	e.Use(middleware.BodyLimit("1M"))

	e.GET("/healthz", s.healthHandler)

	admin := e.Group("/admin", testOnlyGuard(guard))
	admin.POST("/rebuilds", s.triggerRebuildHandler)
	admin.GET("/rebuilds", s.listActiveRebuildsHandler)
	admin.GET("/rebuilds/:replayId", s.getRebuildStatusHandler)
	admin.POST("/rebuilds/:replayId/cancel", s.cancelRebuildHandler)
	admin.POST("/projections/:name/preview", s.previewProjectionEventHandler)

	admin.GET("/poison-events", s.listPoisonEventsHandler)
	admin.POST("/poison-events/:eventId/replay", s.replayPoisonEventHandler)
	admin.POST("/poison-events/:eventId/ignore", s.ignorePoisonEventHandler)

	admin.GET("/agent-dead-letters", s.listAgentDeadLettersHandler)
	admin.POST("/agent-dead-letters/:id/replay", s.replayDeadLetterHandler)
	admin.POST("/agent-dead-letters/:id/ignore", s.ignoreDeadLetterHandler)

	admin.GET("/approvals", s.listPendingApprovalsHandler)
	admin.POST("/approvals/:id/approve", s.approveHandler)
	admin.POST("/approvals/:id/reject", s.rejectHandler)

	admin.GET("/agents/:agentId/circuit", s.getCircuitStateHandler)
	admin.POST("/agents/:agentId/circuit/reset", s.resetCircuitHandler)

	return s
}

// Echo returns the underlying router so a caller can mount additional
// routes (e.g. a /metrics endpoint) before Start is called.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start listens on addr and blocks until the server stops or ctx is
// cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.echo}

	errCh := make(chan error, 1)
	go func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			errCh <- fmt.Errorf("adminapi: listen %s: %w", addr, err)
			return
		}
		errCh <- s.http.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully stops the server, giving in-flight requests up to
// 5 seconds to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) healthHandler(c echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := "healthy"

	if dbHealth, err := s.db.Health(reqCtx); err != nil {
		status = "unhealthy"
		checks["database"] = HealthCheck{Status: "unhealthy", Message: err.Error()}
	} else {
		checks["database"] = HealthCheck{Status: dbHealth.Status}
	}

	if poolHealth, err := s.pool.Health(reqCtx); err == nil && poolHealth != nil {
		checks["workpool"] = HealthCheck{Status: "healthy"}
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	return c.JSON(httpStatus, &HealthResponse{Status: status, Time: time.Now().UTC(), Checks: checks})
}
