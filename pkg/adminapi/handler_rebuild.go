package adminapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// triggerRebuildHandler handles POST /admin/rebuilds.
func (s *Server) triggerRebuildHandler(c echo.Context) error {
	var req TriggerRebuildRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Projection == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "projection is required")
	}

	replayID, err := s.replayer.TriggerRebuild(c.Request().Context(), req.Projection, req.FromPosition, req.ChunkSize)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusAccepted, &RebuildResponse{ReplayID: replayID.String()})
}

// listActiveRebuildsHandler handles GET /admin/rebuilds.
func (s *Server) listActiveRebuildsHandler(c echo.Context) error {
	active, err := s.replayer.ListActiveRebuilds(c.Request().Context())
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, active)
}

// getRebuildStatusHandler handles GET /admin/rebuilds/:replayId.
func (s *Server) getRebuildStatusHandler(c echo.Context) error {
	replayID, err := uuid.Parse(c.Param("replayId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid replayId")
	}
	status, err := s.replayer.GetRebuildStatus(c.Request().Context(), replayID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, status)
}

// cancelRebuildHandler handles POST /admin/rebuilds/:replayId/cancel.
func (s *Server) cancelRebuildHandler(c echo.Context) error {
	replayID, err := uuid.Parse(c.Param("replayId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid replayId")
	}
	if err := s.replayer.CancelRebuild(c.Request().Context(), replayID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
