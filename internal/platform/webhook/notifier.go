// Package webhook delivers fulfillment events to an external partner endpoint
// with HMAC-SHA256 signing, delivery logging, and retry support. It also
// verifies signatures on inbound fulfillment callbacks.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is the payload shipped to the fulfillment partner.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	OrderID   string          `json:"order_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Event types emitted by the order pipeline.
const (
	EventOrderCreated       = "order.created"
	EventOrderPartial       = "order.partial"
	EventProcurementCreated = "procurement.created"
)

// DeliveryAttempt records a single delivery attempt for an event.
type DeliveryAttempt struct {
	ID           string        `json:"id"`
	EventType    string        `json:"event_type"`
	EventID      string        `json:"event_id"`
	Payload      []byte        `json:"payload"`
	Signature    string        `json:"signature"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body"`
	Duration     time.Duration `json:"duration_ns"`
	Attempt      int           `json:"attempt"`
	Status       string        `json:"status"` // "success", "failed", "pending"
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ErrDeliveryNotFound is returned when a delivery attempt does not exist.
var ErrDeliveryNotFound = errors.New("webhook: delivery not found")

// DeliveryStore persists delivery attempts for inspection and retry.
type DeliveryStore interface {
	RecordDelivery(ctx context.Context, attempt *DeliveryAttempt) error
	ListDeliveries(ctx context.Context, limit, offset int) ([]*DeliveryAttempt, int, error)
	GetDelivery(ctx context.Context, id string) (*DeliveryAttempt, error)
}

// InMemoryDeliveryStore is a thread-safe, in-memory DeliveryStore.
type InMemoryDeliveryStore struct {
	mu         sync.RWMutex
	deliveries map[string]*DeliveryAttempt
	// ordered keys for deterministic pagination
	order []string
}

// NewInMemoryDeliveryStore creates a new empty in-memory store.
func NewInMemoryDeliveryStore() *InMemoryDeliveryStore {
	return &InMemoryDeliveryStore{deliveries: make(map[string]*DeliveryAttempt)}
}

func (s *InMemoryDeliveryStore) RecordDelivery(_ context.Context, attempt *DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[attempt.ID]; !ok {
		s.order = append(s.order, attempt.ID)
	}
	s.deliveries[attempt.ID] = attempt
	return nil
}

func (s *InMemoryDeliveryStore) ListDeliveries(_ context.Context, limit, offset int) ([]*DeliveryAttempt, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.order)
	if offset >= total {
		return []*DeliveryAttempt{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]*DeliveryAttempt, 0, end-offset)
	for _, id := range s.order[offset:end] {
		out = append(out, s.deliveries[id])
	}
	return out, total, nil
}

func (s *InMemoryDeliveryStore) GetDelivery(_ context.Context, id string) (*DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", id, ErrDeliveryNotFound)
	}
	return d, nil
}

// SignPayload computes an HMAC-SHA256 signature of the payload using the given
// secret, returning the hex-encoded result.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature returns true when the hex-encoded signature matches the
// HMAC-SHA256 of payload under the given secret.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithHTTPClient overrides the default HTTP client used for deliveries.
func WithHTTPClient(c *http.Client) NotifierOption {
	return func(n *Notifier) { n.httpClient = c }
}

// Notifier signs and POSTs fulfillment events to the configured endpoint,
// recording every attempt.
type Notifier struct {
	url        string
	secret     string
	store      DeliveryStore
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNotifier creates a Notifier. An empty url disables delivery: Notify
// becomes a no-op so the order pipeline works without a partner configured.
func NewNotifier(url, secret string, store DeliveryStore, logger zerolog.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		url:    url,
		secret: secret,
		store:  store,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Enabled reports whether a partner endpoint is configured.
func (n *Notifier) Enabled() bool { return n.url != "" }

// Notify builds an Event and delivers it. Callers on the hot path run this in
// a goroutine; delivery failure is logged, never propagated.
func (n *Notifier) Notify(ctx context.Context, eventType, orderID string, payload interface{}) {
	if !n.Enabled() {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Error().Err(err).Str("event_type", eventType).Msg("event payload marshal failed")
		return
	}
	event := Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		OrderID:   orderID,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}
	attempt := n.deliver(ctx, event)
	if attempt.Status != "success" {
		n.logger.Warn().
			Str("event_type", eventType).
			Str("order_id", orderID).
			Str("error", attempt.Error).
			Msg("fulfillment event delivery failed")
	}
}

// deliver signs the payload and POSTs it to the endpoint, recording the result.
func (n *Notifier) deliver(ctx context.Context, event Event) *DeliveryAttempt {
	payload, _ := json.Marshal(event)
	sig := SignPayload(payload, n.secret)
	now := time.Now()

	attempt := &DeliveryAttempt{
		ID:        uuid.New().String(),
		EventType: event.Type,
		EventID:   event.ID,
		Payload:   payload,
		Signature: sig,
		Attempt:   1,
		Status:    "pending",
		CreatedAt: now,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		attempt.Status = "failed"
		attempt.Error = err.Error()
		n.store.RecordDelivery(ctx, attempt)
		return attempt
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "sha256="+sig)
	req.Header.Set("X-Webhook-Timestamp", now.UTC().Format(time.RFC3339))

	start := time.Now()
	resp, err := n.httpClient.Do(req)
	attempt.Duration = time.Since(start)

	if err != nil {
		attempt.Status = "failed"
		attempt.Error = err.Error()
		attempt.StatusCode = 0
		n.store.RecordDelivery(ctx, attempt)
		return attempt
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode

	// Read at most 1KB of response body.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	attempt.ResponseBody = string(bodyBytes)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		attempt.Status = "success"
	} else {
		attempt.Status = "failed"
		attempt.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}

	n.store.RecordDelivery(ctx, attempt)
	return attempt
}

// RetryDelivery re-delivers a previously failed attempt, incrementing the
// attempt counter.
func (n *Notifier) RetryDelivery(ctx context.Context, deliveryID string) (*DeliveryAttempt, error) {
	original, err := n.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	var event Event
	if err := json.Unmarshal(original.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original payload: %w", err)
	}

	attempt := n.deliver(ctx, event)
	attempt.Attempt = original.Attempt + 1
	n.store.RecordDelivery(ctx, attempt)

	return attempt, nil
}

// DeliveryLogs returns paginated delivery attempts.
func (n *Notifier) DeliveryLogs(ctx context.Context, limit, offset int) ([]*DeliveryAttempt, int, error) {
	return n.store.ListDeliveries(ctx, limit, offset)
}
