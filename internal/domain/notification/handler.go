package notification

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler provides the HTTP endpoints for notification intake and status.
type Handler struct {
	svc *Service
}

// NewHandler creates a new notification handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the notification endpoints on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/send", h.Send)
	g.POST("/batch", h.Batch)
	g.GET("/:tracking_id/status", h.GetStatus)
}

// sendRequest is the /send payload: a single notification, or the same
// fields plus recipients for the bulk variant.
type sendRequest struct {
	Request
	Recipients []string `json:"recipients,omitempty"`
}

// Send admits one notification, or one per recipient when the bulk
// recipients field is present.
func (h *Handler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	if req.Recipients != nil {
		ids, err := h.svc.SendBulk(ctx, req.Request, req.Recipients)
		if err != nil {
			return admissionError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"tracking_ids": ids,
			"count":        len(ids),
		})
	}

	id, err := h.svc.Send(ctx, req.Request)
	if err != nil {
		return admissionError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"tracking_id": id})
}

// Batch admits up to MaxBatchSize notifications in one call.
func (h *Handler) Batch(c echo.Context) error {
	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := h.svc.Batch(c.Request().Context(), req)
	if err != nil {
		return admissionError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetStatus returns the delivery status and attempt history.
func (h *Handler) GetStatus(c echo.Context) error {
	st, err := h.svc.Status(c.Request().Context(), c.Param("tracking_id"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Tracking ID not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// admissionError maps correctable input problems to 400 and lets everything
// else surface as 500.
func admissionError(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return echo.NewHTTPError(http.StatusBadRequest, ve.Msg)
	}
	return err
}
