package order

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an order or procurement does not exist.
var ErrNotFound = errors.New("order: not found")

// Order statuses. An order is created in StatusCreated and advanced by the
// fulfillment webhook; it is otherwise immutable.
const (
	StatusCreated    = "created"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

var validStatuses = map[string]bool{
	StatusCreated:    true,
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCancelled:  true,
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool { return validStatuses[s] }

// Order maps to the pharmacy_order table.
type Order struct {
	ID              uuid.UUID `db:"id" json:"-"`
	PublicID        string    `db:"public_id" json:"order_id"`
	UserID          string    `db:"user_id" json:"user_id"`
	MedicineID      string    `db:"medicine_id" json:"medicine_id"`
	Quantity        int       `db:"quantity" json:"quantity"`
	FulfilledQty    int       `db:"fulfilled_qty" json:"fulfilled_qty"`
	Disposition     string    `db:"disposition" json:"disposition"`
	Rationale       string    `db:"rationale" json:"rationale"`
	PrescriptionRef *string   `db:"prescription_ref" json:"prescription_ref,omitempty"`
	Status          string    `db:"status" json:"status"`
	TraceID         string    `db:"trace_id" json:"trace_id"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// HistoryEntry maps to the order_history table. Append-only; the source of
// truth for refill prediction.
type HistoryEntry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"user_id"`
	MedicineID   string    `db:"medicine_id" json:"medicine_id"`
	Quantity     int       `db:"quantity" json:"quantity"`
	PurchaseDate time.Time `db:"purchase_date" json:"purchase_date"`
}

// Procurement statuses.
const (
	ProcurementPending  = "pending"
	ProcurementOrdered  = "ordered"
	ProcurementReceived = "received"
)

var validProcurementStatuses = map[string]bool{
	ProcurementPending:  true,
	ProcurementOrdered:  true,
	ProcurementReceived: true,
}

// ValidProcurementStatus reports whether s is a known procurement status.
func ValidProcurementStatus(s string) bool { return validProcurementStatuses[s] }

// Procurement maps to the procurement table: a scheduled restock for the
// shortfall left by a partial fulfillment, or for a rejected out-of-stock
// request. OrderID is nil for the reject path, where no order exists.
type Procurement struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	OrderID    *uuid.UUID `db:"order_id" json:"order_id,omitempty"`
	MedicineID string     `db:"medicine_id" json:"medicine_id"`
	Quantity   int        `db:"quantity" json:"quantity"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// FulfillmentEvent maps to the fulfillment_event table: the audit log of
// inbound status callbacks from the fulfillment partner.
type FulfillmentEvent struct {
	ID            uuid.UUID `db:"id" json:"id"`
	OrderPublicID string    `db:"order_public_id" json:"order_id"`
	Status        string    `db:"status" json:"status"`
	Payload       []byte    `db:"payload" json:"-"`
	ReceivedAt    time.Time `db:"received_at" json:"received_at"`
}

// NewPublicID mints the short public order id, e.g. "ord_3f9c2a81d04e".
func NewPublicID() string {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return "ord_" + hex.EncodeToString(b)
}
