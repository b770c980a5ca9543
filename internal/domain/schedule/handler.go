package schedule

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes schedule admission over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the schedule route; g is the notifications group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/schedule", h.Create)
}

// Create handles POST /notifications/schedule.
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sched, err := h.svc.Create(c.Request().Context(), &req)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return echo.NewHTTPError(http.StatusBadRequest, ve.Msg)
		}
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"schedule_id": sched.ScheduleID})
}
