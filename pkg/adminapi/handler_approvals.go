package adminapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/coreflow/runtime/pkg/agentbc"
)

// listPendingApprovalsHandler handles GET /admin/approvals?agentId=&limit=.
func (s *Server) listPendingApprovalsHandler(c echo.Context) error {
	limit := clampLimit(atoiOrZero(c.QueryParam("limit")))
	approvals, err := s.approvals.ListPending(c.Request().Context(), c.QueryParam("agentId"), limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, approvals)
}

// approveHandler handles POST /admin/approvals/:id/approve.
func (s *Server) approveHandler(c echo.Context) error {
	return s.reviewApproval(c, agentbc.EventApprove)
}

// rejectHandler handles POST /admin/approvals/:id/reject.
func (s *Server) rejectHandler(c echo.Context) error {
	return s.reviewApproval(c, agentbc.EventReject)
}

func (s *Server) reviewApproval(c echo.Context, event agentbc.ApprovalEvent) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid approval id")
	}
	var req ReviewApprovalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ReviewerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewerId is required")
	}

	var note *string
	if req.Note != "" {
		note = &req.Note
	}
	pa, err := s.approvals.Transition(c.Request().Context(), id, event, &req.ReviewerID, note)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, pa)
}
