package template

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/notifyd/notifyd/pkg/pagination"
)

// Handler provides the HTTP endpoints for template management.
type Handler struct {
	svc *Service
}

// NewHandler creates a new template handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the template endpoints on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
}

// Create stores a new template.
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	t, err := h.svc.Create(c.Request().Context(), &req)
	if errors.Is(err, ErrDuplicateName) {
		return echo.NewHTTPError(http.StatusBadRequest, "Template with this name already exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

// List returns one page of templates, optionally filtered by channel and
// active state.
func (h *Handler) List(c echo.Context) error {
	f := ListFilter{}
	if v := c.QueryParam("channel"); v != "" {
		f.Channel = &v
	}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "active must be true or false")
		}
		f.Active = &active
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Template{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
