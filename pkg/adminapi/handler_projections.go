package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// previewProjectionEventHandler handles POST /admin/projections/:name/preview.
// It runs the named projection's gojq filter expression against the
// supplied event payload and returns the transformed result, without
// invoking the projection's own handler or touching any checkpoint.
func (s *Server) previewProjectionEventHandler(c echo.Context) error {
	var req PreviewEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.EventPayload) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "eventPayload is required")
	}

	result, err := s.projection.ExplainEvent(c.Param("name"), req.EventPayload)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"result": result})
}
