package adminapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// listPoisonEventsHandler handles GET /admin/poison-events?projection=&limit=.
func (s *Server) listPoisonEventsHandler(c echo.Context) error {
	limit := clampLimit(atoiOrZero(c.QueryParam("limit")))
	events, err := s.projection.ListPoisonEvents(c.Request().Context(), c.QueryParam("projection"), limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, events)
}

// replayPoisonEventHandler handles POST /admin/poison-events/:eventId/replay.
func (s *Server) replayPoisonEventHandler(c echo.Context) error {
	var req ReplayPoisonEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Projection == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "projection is required")
	}
	if err := s.projection.ReplayPoisonEvent(c.Request().Context(), req.Projection, c.Param("eventId"), req.ResolvedBy); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ignorePoisonEventHandler handles POST /admin/poison-events/:eventId/ignore.
func (s *Server) ignorePoisonEventHandler(c echo.Context) error {
	var req IgnorePoisonEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Projection == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "projection is required")
	}
	if err := s.projection.IgnorePoisonEvent(c.Request().Context(), req.Projection, c.Param("eventId"), req.ResolvedBy, req.Notes); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
