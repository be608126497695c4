package refill

import (
	"context"
	"time"

	"github.com/pharmguard/pharmguard/internal/domain/order"
)

// Service computes refill alerts over the purchase log.
type Service struct {
	history order.HistoryRepository
	now     func() time.Time
}

// NewService creates a refill Service.
func NewService(history order.HistoryRepository) *Service {
	return &Service{history: history, now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// AlertsForUser returns the refill forecast for every medicine the user has
// bought at least twice.
func (s *Service) AlertsForUser(ctx context.Context, userID string) ([]Alert, error) {
	history, err := s.history.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Predict(history, s.now()), nil
}
