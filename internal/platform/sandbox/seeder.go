// Package sandbox seeds demo catalog and purchase data for local development
// and evaluation environments.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pharmguard/pharmguard/internal/domain/catalog"
	"github.com/pharmguard/pharmguard/internal/domain/order"
)

// SeedConfig controls what the seeder generates.
type SeedConfig struct {
	// DemoUserID receives the synthetic purchase history.
	DemoUserID string
	// HistoryMonths is how far back the synthetic purchases reach.
	HistoryMonths int
}

// DefaultSeedConfig returns the standard demo dataset configuration.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		DemoUserID:    "u_1001",
		HistoryMonths: 4,
	}
}

// Seeder writes the demo dataset through the domain repositories.
type Seeder struct {
	inventory catalog.InventoryRepository
	history   order.HistoryRepository
	cfg       SeedConfig
	logger    zerolog.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(inventory catalog.InventoryRepository, history order.HistoryRepository, cfg SeedConfig, logger zerolog.Logger) *Seeder {
	return &Seeder{inventory: inventory, history: history, cfg: cfg, logger: logger}
}

// demoCatalog is the fixed four-entry catalog used across demos and tests.
func demoCatalog() []*catalog.Medicine {
	return []*catalog.Medicine{
		{ID: "med_aspirin_75", Name: "Aspirin", Strength: "75mg", Form: "tablet", RxRequired: false, StockQty: 120, UnitPrice: 2.50},
		{ID: "med_azithro_250", Name: "Azithromycin", Strength: "250mg", Form: "tablet", RxRequired: true, StockQty: 35, UnitPrice: 12.00},
		{ID: "med_losartan_50", Name: "Losartan", Strength: "50mg", Form: "tablet", RxRequired: true, StockQty: 60, UnitPrice: 8.50},
		{ID: "med_metformin_500", Name: "Metformin", Strength: "500mg", Form: "tablet", RxRequired: true, StockQty: 90, UnitPrice: 5.00},
	}
}

// Run seeds the catalog and a purchase history dense enough for the refill
// predictor to produce alerts.
func (s *Seeder) Run(ctx context.Context) error {
	for _, m := range demoCatalog() {
		if err := s.inventory.Create(ctx, m); err != nil {
			return fmt.Errorf("seed medicine %s: %w", m.ID, err)
		}
	}
	s.logger.Info().Int("medicines", len(demoCatalog())).Msg("catalog seeded")

	now := time.Now().UTC()
	entries := []*order.HistoryEntry{
		// Metformin roughly monthly; last purchase far enough back to alert.
		{UserID: s.cfg.DemoUserID, MedicineID: "med_metformin_500", Quantity: 30, PurchaseDate: now.AddDate(0, 0, -95)},
		{UserID: s.cfg.DemoUserID, MedicineID: "med_metformin_500", Quantity: 30, PurchaseDate: now.AddDate(0, 0, -64)},
		{UserID: s.cfg.DemoUserID, MedicineID: "med_metformin_500", Quantity: 30, PurchaseDate: now.AddDate(0, 0, -33)},
		// Losartan twice; the recent purchase should not alert yet.
		{UserID: s.cfg.DemoUserID, MedicineID: "med_losartan_50", Quantity: 30, PurchaseDate: now.AddDate(0, 0, -40)},
		{UserID: s.cfg.DemoUserID, MedicineID: "med_losartan_50", Quantity: 30, PurchaseDate: now.AddDate(0, 0, -10)},
		// A single aspirin purchase: excluded from prediction.
		{UserID: s.cfg.DemoUserID, MedicineID: "med_aspirin_75", Quantity: 10, PurchaseDate: now.AddDate(0, 0, -20)},
	}
	for _, e := range entries {
		if err := s.history.Append(ctx, e); err != nil {
			return fmt.Errorf("seed history: %w", err)
		}
	}
	s.logger.Info().
		Str("user_id", s.cfg.DemoUserID).
		Int("entries", len(entries)).
		Msg("purchase history seeded")

	return nil
}
