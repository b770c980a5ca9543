package analytics

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler exposes the analytics summary over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the analytics routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/summary", h.Summary)
}

// Summary handles GET /analytics/summary.
func (h *Handler) Summary(c echo.Context) error {
	start, err := windowParam(c, "window_start")
	if err != nil {
		return err
	}
	end, err := windowParam(c, "window_end")
	if err != nil {
		return err
	}
	summary, err := h.svc.Summary(c.Request().Context(), start, end)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func windowParam(c echo.Context, name string) (*time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be an RFC3339 timestamp")
	}
	return &t, nil
}
