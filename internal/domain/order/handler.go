package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
	"github.com/pharmguard/pharmguard/internal/domain/nlu"
	"github.com/pharmguard/pharmguard/internal/platform/webhook"
	"github.com/pharmguard/pharmguard/pkg/pagination"
)

// Handler exposes the order pipeline over HTTP.
type Handler struct {
	orch          *Orchestrator
	events        FulfillmentEventRepository
	webhookSecret string
}

// NewHandler creates an order Handler.
func NewHandler(orch *Orchestrator, events FulfillmentEventRepository, webhookSecret string) *Handler {
	return &Handler{orch: orch, events: events, webhookSecret: webhookSecret}
}

// RegisterRoutes binds order routes to the API group. admin guards the
// operational routes: procurements and the fulfillment event log.
func (h *Handler) RegisterRoutes(g *echo.Group, admin echo.MiddlewareFunc) {
	g.POST("/converse", h.Converse)
	g.POST("/orders", h.PlaceOrder)
	g.GET("/orders/:id", h.GetOrder)
	g.GET("/orders/:id/events", h.ListOrderEvents, admin)
	g.GET("/users/:id/orders", h.ListOrders)
	g.GET("/users/:id/history", h.ListHistory)
	g.GET("/procurements", h.ListProcurements, admin)
	g.POST("/procurements/:id/status", h.UpdateProcurement, admin)
	g.POST("/webhooks/fulfillment", h.FulfillmentCallback)
}

// Converse handles POST /converse.
func (h *Handler) Converse(c echo.Context) error {
	var req ConverseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || strings.TrimSpace(req.Text) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and text are required")
	}

	res, err := h.orch.Converse(c.Request().Context(), req)
	if err != nil {
		return mapPipelineError(err)
	}
	return c.JSON(http.StatusOK, res)
}

// PlaceOrder handles POST /orders.
func (h *Handler) PlaceOrder(c echo.Context) error {
	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" || req.MedicineID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id and medicine_id are required")
	}

	res, err := h.orch.PlaceOrder(c.Request().Context(), req)
	if err != nil {
		return mapPipelineError(err)
	}
	status := http.StatusOK
	if res.Order != nil {
		status = http.StatusCreated
	}
	return c.JSON(status, res)
}

// GetOrder handles GET /orders/:id.
func (h *Handler) GetOrder(c echo.Context) error {
	ord, err := h.orch.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, ord)
}

// ListOrders handles GET /users/:id/orders.
func (h *Handler) ListOrders(c echo.Context) error {
	p := pagination.FromContext(c)
	orders, total, err := h.orch.ListOrders(c.Request().Context(), c.Param("id"), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(orders, total, p.Limit, p.Offset))
}

// ListHistory handles GET /users/:id/history.
func (h *Handler) ListHistory(c echo.Context) error {
	entries, err := h.orch.ListHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  entries,
		"total": len(entries),
	})
}

// ListProcurements handles GET /procurements. Admin only.
func (h *Handler) ListProcurements(c echo.Context) error {
	p := pagination.FromContext(c)
	procs, total, err := h.orch.ListPendingProcurements(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(procs, total, p.Limit, p.Offset))
}

// ListOrderEvents handles GET /orders/:id/events. Admin only.
func (h *Handler) ListOrderEvents(c echo.Context) error {
	events, err := h.events.ListByOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*FulfillmentEvent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  events,
		"total": len(events),
	})
}

// procurementStatusRequest is the body for POST /procurements/:id/status.
type procurementStatusRequest struct {
	Status string `json:"status"`
}

// UpdateProcurement handles POST /procurements/:id/status. Admin only.
func (h *Handler) UpdateProcurement(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid procurement id")
	}
	var req procurementStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !ValidProcurementStatus(req.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown procurement status")
	}

	if err := h.orch.UpdateProcurement(c.Request().Context(), id, req.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "procurement not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id.String(), "status": req.Status})
}

// fulfillmentCallback is the JSON body the partner POSTs back.
type fulfillmentCallback struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// FulfillmentCallback handles POST /webhooks/fulfillment. The body must carry
// a valid HMAC signature; a bad signature is a 401, not a 400, so the partner
// can distinguish key drift from malformed payloads.
func (h *Handler) FulfillmentCallback(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	sig := strings.TrimPrefix(c.Request().Header.Get("X-Webhook-Signature"), "sha256=")
	if sig == "" || !webhook.VerifySignature(body, h.webhookSecret, sig) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	var cb fulfillmentCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}
	if cb.OrderID == "" || !ValidStatus(cb.Status) {
		return echo.NewHTTPError(http.StatusBadRequest, "order_id and a valid status are required")
	}

	if err := h.orch.AdvanceOrder(c.Request().Context(), cb.OrderID, cb.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "order not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if err := h.events.Append(c.Request().Context(), &FulfillmentEvent{
		OrderPublicID: cb.OrderID,
		Status:        cb.Status,
		Payload:       body,
	}); err != nil {
		c.Logger().Error(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"order_id": cb.OrderID, "status": cb.Status})
}

func mapPipelineError(err error) error {
	switch {
	case errors.Is(err, nlu.ErrInvalidQuantity):
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must be a positive number")
	case errors.Is(err, catalog.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "medicine not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
