package webhook

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pharmguard/pharmguard/pkg/pagination"
)

// Handler exposes the outbound delivery log over HTTP for operators.
type Handler struct {
	notifier *Notifier
}

// NewHandler creates a webhook Handler.
func NewHandler(n *Notifier) *Handler {
	return &Handler{notifier: n}
}

// RegisterRoutes binds delivery log routes to the API group. admin guards
// both routes.
func (h *Handler) RegisterRoutes(g *echo.Group, admin echo.MiddlewareFunc) {
	g.GET("/webhooks/deliveries", h.ListDeliveries, admin)
	g.POST("/webhooks/deliveries/:id/retry", h.RetryDelivery, admin)
}

// ListDeliveries handles GET /webhooks/deliveries. Admin only.
func (h *Handler) ListDeliveries(c echo.Context) error {
	p := pagination.FromContext(c)
	logs, total, err := h.notifier.DeliveryLogs(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(logs, total, p.Limit, p.Offset))
}

// RetryDelivery handles POST /webhooks/deliveries/:id/retry. Admin only.
func (h *Handler) RetryDelivery(c echo.Context) error {
	attempt, err := h.notifier.RetryDelivery(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrDeliveryNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "delivery not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, attempt)
}
