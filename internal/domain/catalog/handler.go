package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the catalog over HTTP.
type Handler struct {
	svc *Service
}

// NewHandler creates a catalog Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes binds inventory routes to the API group. Extra middleware
// (such as response caching) applies to the read-only inventory routes.
func (h *Handler) RegisterRoutes(g *echo.Group, mw ...echo.MiddlewareFunc) {
	g.GET("/inventory", h.ListInventory, mw...)
	g.GET("/inventory/:id", h.GetMedicine, mw...)
}

// ListInventory handles GET /inventory.
func (h *Handler) ListInventory(c echo.Context) error {
	meds := h.svc.List(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  meds,
		"total": len(meds),
	})
}

// GetMedicine handles GET /inventory/:id.
func (h *Handler) GetMedicine(c echo.Context) error {
	m, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "medicine not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}
