package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Service owns the in-memory index and keeps the durable inventory store in
// sync with it. All runtime reads go through the index; the repository is the
// write-behind mirror and the load source at startup.
type Service struct {
	index  *Index
	repo   InventoryRepository
	logger zerolog.Logger
}

// NewService creates a catalog Service around an empty index.
func NewService(repo InventoryRepository, logger zerolog.Logger) *Service {
	return &Service{
		index:  NewIndex(),
		repo:   repo,
		logger: logger,
	}
}

// Index exposes the in-memory index for collaborators (slot extractor,
// orchestrator).
func (s *Service) Index() *Index { return s.index }

// LoadFromStore hydrates the index from the inventory table.
func (s *Service) LoadFromStore(ctx context.Context) error {
	meds, total, err := s.repo.List(ctx, 10000, 0)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	s.index.Load(meds)
	s.logger.Info().Int("medicines", total).Msg("catalog loaded")
	return nil
}

// List returns the full catalog from the index.
func (s *Service) List(ctx context.Context) []*Medicine {
	return s.index.List()
}

// Get returns one medicine by id.
func (s *Service) Get(ctx context.Context, id string) (*Medicine, error) {
	return s.index.Lookup(id)
}

// ReserveStock atomically decrements stock in the in-memory index. The
// durable side is written separately via MirrorReservation so callers can
// commit it in the same transaction as the rows that justify it.
func (s *Service) ReserveStock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	return s.index.DecrementStock(id, qty)
}

// MirrorReservation applies a reservation to the durable store. Callers run
// it in the same transaction as the order insert; a crash then never leaves
// a decrement without its order row.
func (s *Service) MirrorReservation(ctx context.Context, id string, qty int) error {
	return s.repo.ApplyStockDelta(ctx, id, -qty)
}

// ReleaseReservation returns reserved units to the index after the
// surrounding transaction rolled the durable decrement back.
func (s *Service) ReleaseReservation(id string, qty int) {
	if err := s.index.AddStock(id, qty); err != nil {
		s.logger.Error().Err(err).Str("medicine_id", id).Msg("reservation release failed")
	}
}

// Restock increases stock in both the index and the store (procurement
// arrival, manual adjustment).
func (s *Service) Restock(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restock quantity must be positive, got %d", qty)
	}
	if err := s.index.AddStock(id, qty); err != nil {
		return err
	}
	if err := s.repo.ApplyStockDelta(ctx, id, qty); err != nil {
		s.logger.Error().Err(err).Str("medicine_id", id).Msg("restock mirror failed")
		return err
	}
	return nil
}
