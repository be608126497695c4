package trace

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes sealed traces over HTTP.
type Handler struct {
	recorder *Recorder
}

// NewHandler creates a trace Handler.
func NewHandler(recorder *Recorder) *Handler {
	return &Handler{recorder: recorder}
}

// RegisterRoutes binds trace routes to the API group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/traces/:id", h.GetTrace)
}

// GetTrace handles GET /traces/:id.
func (h *Handler) GetTrace(c echo.Context) error {
	rec, err := h.recorder.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "trace not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
