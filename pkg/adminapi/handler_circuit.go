package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// getCircuitStateHandler handles GET /admin/agents/:agentId/circuit.
func (s *Server) getCircuitStateHandler(c echo.Context) error {
	agentID := c.Param("agentId")
	state, err := s.agents.CircuitState(agentID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, &CircuitStateResponse{AgentID: agentID, State: state})
}

// resetCircuitHandler handles POST /admin/agents/:agentId/circuit/reset.
func (s *Server) resetCircuitHandler(c echo.Context) error {
	agentID := c.Param("agentId")
	if err := s.agents.ResetCircuit(agentID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
