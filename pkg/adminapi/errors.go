package adminapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/coreflow/runtime/pkg/agentbc"
	"github.com/coreflow/runtime/pkg/dcb"
	"github.com/coreflow/runtime/pkg/fsm"
	"github.com/coreflow/runtime/pkg/projection"
	"github.com/coreflow/runtime/pkg/replay"
	"github.com/coreflow/runtime/pkg/saga"
)

// mapServiceError maps sentinel/typed errors surfaced by the runtime's
// subsystems to the admin surface's HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var approvalTransition *fsm.EventTransitionError[agentbc.ApprovalStatus, agentbc.ApprovalEvent]
	if errors.As(err, &approvalTransition) {
		return echo.NewHTTPError(http.StatusConflict, approvalTransition.Error())
	}
	if errors.Is(err, replay.ErrReplayAlreadyActive) {
		return echo.NewHTTPError(http.StatusConflict, "a rebuild is already running for this projection")
	}
	if errors.Is(err, replay.ErrReplayNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "replay not found")
	}
	if errors.Is(err, dcb.ErrVersionConflict) {
		return echo.NewHTTPError(http.StatusConflict, "scope version conflict")
	}
	if errors.Is(err, saga.ErrAlreadyRunning) {
		return echo.NewHTTPError(http.StatusConflict, "saga instance already running")
	}
	if errors.Is(err, agentbc.ErrNoCircuit) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, projection.ErrUnknownProjection) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if errors.Is(err, projection.ErrNoFilterExpr) {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	slog.Error("adminapi: unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
