package refill

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes refill alerts over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a refill Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes binds refill routes to the API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/users/:id/alerts", h.GetAlerts)
}

// GetAlerts handles GET /users/:id/alerts.
func (h *Handler) GetAlerts(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user id is required")
	}

	alerts, err := h.svc.AlertsForUser(c.Request().Context(), userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"alerts":  alerts,
	})
}
