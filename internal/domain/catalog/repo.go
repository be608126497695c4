package catalog

import "context"

// InventoryRepository is the durable store behind the in-memory index. The
// index is authoritative during a process's lifetime; every stock mutation is
// mirrored here so a restart reloads consistent state.
type InventoryRepository interface {
	Create(ctx context.Context, m *Medicine) error
	GetByID(ctx context.Context, id string) (*Medicine, error)
	List(ctx context.Context, limit, offset int) ([]*Medicine, int, error)
	// ApplyStockDelta adjusts stock atomically. A negative delta that would
	// take stock below zero returns ErrInsufficientStock without mutating.
	ApplyStockDelta(ctx context.Context, id string, delta int) error
}
