package adminapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// listAgentDeadLettersHandler handles GET /admin/agent-dead-letters?agentId=&limit=.
func (s *Server) listAgentDeadLettersHandler(c echo.Context) error {
	limit := clampLimit(atoiOrZero(c.QueryParam("limit")))
	letters, err := s.deadletter.ListPending(c.Request().Context(), c.QueryParam("agentId"), limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, letters)
}

// replayDeadLetterHandler handles POST /admin/agent-dead-letters/:id/replay.
func (s *Server) replayDeadLetterHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dead letter id")
	}
	if err := s.agents.ReplayDeadLetter(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ignoreDeadLetterHandler handles POST /admin/agent-dead-letters/:id/ignore.
func (s *Server) ignoreDeadLetterHandler(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid dead letter id")
	}
	if err := s.agents.IgnoreDeadLetter(c.Request().Context(), id); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
