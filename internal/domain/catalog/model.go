package catalog

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a medicine id is not in the catalog.
	ErrNotFound = errors.New("medicine not found")
	// ErrInsufficientStock is returned when a stock decrement would go negative.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Medicine maps to the medicine table (catalog master data).
// Everything except StockQty is immutable at runtime.
type Medicine struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Strength   string    `db:"strength" json:"strength"`
	Form       string    `db:"form" json:"form"`
	RxRequired bool      `db:"rx_required" json:"rx_required"`
	StockQty   int       `db:"stock_qty" json:"stock_qty"`
	UnitPrice  float64   `db:"unit_price" json:"unit_price"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// ScoredMedicine is a fuzzy-resolve candidate with its similarity score in [0,1].
type ScoredMedicine struct {
	Medicine Medicine `json:"medicine"`
	Score    float64  `json:"score"`
}

// DisplayName renders the catalog entry the way it is shown to users,
// e.g. "Aspirin 75mg tablet".
func (m *Medicine) DisplayName() string {
	s := m.Name
	if m.Strength != "" {
		s += " " + m.Strength
	}
	if m.Form != "" {
		s += " " + m.Form
	}
	return s
}
