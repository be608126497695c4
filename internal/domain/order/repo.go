package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByPublicID(ctx context.Context, publicID string) (*Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Order, int, error)
	UpdateStatus(ctx context.Context, publicID, status string) error
}

// HistoryRepository is the append-only purchase log.
type HistoryRepository interface {
	Append(ctx context.Context, e *HistoryEntry) error
	// ListByUser returns entries in chronological purchase order.
	ListByUser(ctx context.Context, userID string) ([]*HistoryEntry, error)
}

// FulfillmentEventRepository is the append-only inbound callback log.
type FulfillmentEventRepository interface {
	Append(ctx context.Context, e *FulfillmentEvent) error
	ListByOrder(ctx context.Context, orderPublicID string) ([]*FulfillmentEvent, error)
}

// ProcurementRepository persists scheduled restocks.
type ProcurementRepository interface {
	Create(ctx context.Context, p *Procurement) error
	GetByID(ctx context.Context, id uuid.UUID) (*Procurement, error)
	ListPending(ctx context.Context, limit, offset int) ([]*Procurement, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}
