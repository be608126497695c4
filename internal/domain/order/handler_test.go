package order

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
	"github.com/pharmguard/pharmguard/internal/platform/webhook"
)

type memEvents struct {
	events []*FulfillmentEvent
}

func (m *memEvents) Append(_ context.Context, e *FulfillmentEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) ListByOrder(_ context.Context, orderPublicID string) ([]*FulfillmentEvent, error) {
	var out []*FulfillmentEvent
	for _, e := range m.events {
		if e.OrderPublicID == orderPublicID {
			out = append(out, e)
		}
	}
	return out, nil
}

const callbackSecret = "cb-secret"

func adminRequest(t *testing.T, h echo.HandlerFunc, method, target string, body []byte, paramID string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(paramID)
	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestListOrderEvents(t *testing.T) {
	f := newFixture(t)
	events := &memEvents{}
	h := NewHandler(f.orch, events, callbackSecret)

	events.Append(context.Background(), &FulfillmentEvent{OrderPublicID: "ord_a", Status: StatusShipped})
	events.Append(context.Background(), &FulfillmentEvent{OrderPublicID: "ord_a", Status: StatusDelivered})
	events.Append(context.Background(), &FulfillmentEvent{OrderPublicID: "ord_b", Status: StatusShipped})

	rec := adminRequest(t, h.ListOrderEvents, http.MethodGet, "/orders/ord_a/events", nil, "ord_a")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data  []*FulfillmentEvent `json:"data"`
		Total int                 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 2 || len(body.Data) != 2 {
		t.Errorf("expected the 2 events for ord_a, got total %d, data %d", body.Total, len(body.Data))
	}
}

func TestUpdateProcurement_ReceivedRestocks(t *testing.T) {
	f := newFixture(t, &catalog.Medicine{
		ID: "med_aspirin_75", Name: "Aspirin", Strength: "75mg", Form: "tablet", StockQty: 30,
	})
	if _, err := f.orch.Converse(context.Background(), ConverseRequest{
		UserID: "u_1", Text: "I need 100 aspirin",
	}); err != nil {
		t.Fatal(err)
	}
	pending, _, _ := f.procs.ListPending(context.Background(), 10, 0)
	if len(pending) != 1 {
		t.Fatalf("expected 1 procurement, got %d", len(pending))
	}
	id := pending[0].ID

	h := NewHandler(f.orch, &memEvents{}, callbackSecret)
	rec := adminRequest(t, h.UpdateProcurement, http.MethodPost,
		"/procurements/"+id.String()+"/status", []byte(`{"status":"received"}`), id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	m, _ := f.catalog.Get(context.Background(), "med_aspirin_75")
	if m.StockQty != 70 {
		t.Errorf("received procurement of 70 must restock from 0 to 70, got %d", m.StockQty)
	}
	if pending, _, _ := f.procs.ListPending(context.Background(), 10, 0); len(pending) != 0 {
		t.Errorf("received procurement must leave the pending queue, got %d", len(pending))
	}

	// Repeating the same status is a no-op, not a second restock.
	rec = adminRequest(t, h.UpdateProcurement, http.MethodPost,
		"/procurements/"+id.String()+"/status", []byte(`{"status":"received"}`), id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d", rec.Code)
	}
	m, _ = f.catalog.Get(context.Background(), "med_aspirin_75")
	if m.StockQty != 70 {
		t.Errorf("repeated receipt must not restock again, got %d", m.StockQty)
	}
}

func TestUpdateProcurement_BadRequests(t *testing.T) {
	f := newFixture(t)
	h := NewHandler(f.orch, &memEvents{}, callbackSecret)

	rec := adminRequest(t, h.UpdateProcurement, http.MethodPost,
		"/procurements/not-a-uuid/status", []byte(`{"status":"received"}`), "not-a-uuid")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", rec.Code)
	}

	id := uuid.New()
	rec = adminRequest(t, h.UpdateProcurement, http.MethodPost,
		"/procurements/"+id.String()+"/status", []byte(`{"status":"vaporized"}`), id.String())
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = adminRequest(t, h.UpdateProcurement, http.MethodPost,
		"/procurements/"+id.String()+"/status", []byte(`{"status":"ordered"}`), id.String())
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown procurement, got %d", rec.Code)
	}
}

func callbackRequest(t *testing.T, f *fixture, events *memEvents, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(f.orch, events, callbackSecret)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/fulfillment", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if sign {
		req.Header.Set("X-Webhook-Signature", "sha256="+webhook.SignPayload(body, callbackSecret))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.FulfillmentCallback(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestFulfillmentCallback_ValidSignature(t *testing.T) {
	f := newFixture(t)
	res, err := f.orch.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID: "u_1", MedicineID: "med_aspirin_75", Quantity: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	events := &memEvents{}
	body := []byte(`{"order_id":"` + res.Order.PublicID + `","status":"shipped"}`)
	rec := callbackRequest(t, f, events, body, true)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, _ := f.orch.GetOrder(context.Background(), res.Order.PublicID)
	if got.Status != StatusShipped {
		t.Errorf("expected shipped, got %s", got.Status)
	}
	if len(events.events) != 1 {
		t.Errorf("expected event recorded, got %d", len(events.events))
	}
}

func TestFulfillmentCallback_MissingSignature(t *testing.T) {
	f := newFixture(t)
	rec := callbackRequest(t, f, &memEvents{},
		[]byte(`{"order_id":"ord_x","status":"shipped"}`), false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without signature, got %d", rec.Code)
	}
}

func TestFulfillmentCallback_BadSignature(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"order_id":"ord_x","status":"shipped"}`)

	h := NewHandler(f.orch, &memEvents{}, callbackSecret)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/fulfillment", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Webhook-Signature", "sha256="+webhook.SignPayload([]byte("other"), callbackSecret))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.FulfillmentCallback(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad signature, got %d", rec.Code)
	}
}

func TestFulfillmentCallback_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"order_id":"ord_x","status":"teleported"}`)
	rec := callbackRequest(t, f, &memEvents{}, body, true)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestFulfillmentCallback_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"order_id":"ord_missing","status":"shipped"}`)
	rec := callbackRequest(t, f, &memEvents{}, body, true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown order, got %d", rec.Code)
	}
}
