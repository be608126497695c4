package refill

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pharmguard/pharmguard/internal/domain/order"
)

func day(n int) time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, n)
}

func entry(med string, d time.Time) *order.HistoryEntry {
	return &order.HistoryEntry{UserID: "u_1", MedicineID: med, Quantity: 30, PurchaseDate: d}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPredict_SinglePurchaseExcluded(t *testing.T) {
	alerts := Predict([]*order.HistoryEntry{entry("med_a", day(0))}, day(30))
	if len(alerts) != 0 {
		t.Fatalf("single purchase must produce no forecast, got %d", len(alerts))
	}
}

func TestPredict_OverdueAlert(t *testing.T) {
	// Purchases 10 days apart, evaluated 18 days after the last one.
	alerts := Predict([]*order.HistoryEntry{
		entry("med_a", day(0)),
		entry("med_a", day(10)),
	}, day(28))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(alerts))
	}
	a := alerts[0]
	if !approx(a.AvgIntervalDays, 10) {
		t.Errorf("expected avg interval 10, got %f", a.AvgIntervalDays)
	}
	if !approx(a.DaysLeft, -8) {
		t.Errorf("expected days_left -8, got %f", a.DaysLeft)
	}
	if !a.Alert {
		t.Error("overdue medicine must alert")
	}
}

func TestPredict_LongOverdue(t *testing.T) {
	// Purchases 10 days apart, evaluated 28 days after the last one.
	alerts := Predict([]*order.HistoryEntry{
		entry("med_a", day(0)),
		entry("med_a", day(10)),
	}, day(38))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(alerts))
	}
	a := alerts[0]
	if !approx(a.AvgIntervalDays, 10) {
		t.Errorf("expected avg interval 10, got %f", a.AvgIntervalDays)
	}
	if !approx(a.DaysLeft, -18) {
		t.Errorf("expected days_left -18, got %f", a.DaysLeft)
	}
	if !a.Alert {
		t.Error("long overdue medicine must alert")
	}
}

func TestPredict_RecentPurchaseNoAlert(t *testing.T) {
	// Monthly cadence, last purchase 10 days ago: 20 days left.
	alerts := Predict([]*order.HistoryEntry{
		entry("med_a", day(0)),
		entry("med_a", day(30)),
		entry("med_a", day(60)),
	}, day(70))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(alerts))
	}
	a := alerts[0]
	if !approx(a.AvgIntervalDays, 30) {
		t.Errorf("expected avg interval 30, got %f", a.AvgIntervalDays)
	}
	if !approx(a.DaysLeft, 20) {
		t.Errorf("expected days_left 20, got %f", a.DaysLeft)
	}
	if a.Alert {
		t.Error("20 days of supply must not alert")
	}
}

func TestPredict_BoundaryAlertsAtWindow(t *testing.T) {
	// days_left exactly at the window still alerts.
	alerts := Predict([]*order.HistoryEntry{
		entry("med_a", day(0)),
		entry("med_a", day(30)),
	}, day(53))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(alerts))
	}
	if !approx(alerts[0].DaysLeft, 7) {
		t.Errorf("expected days_left 7, got %f", alerts[0].DaysLeft)
	}
	if !alerts[0].Alert {
		t.Error("days_left == window must alert")
	}
}

func TestPredict_UnsortedInput(t *testing.T) {
	alerts := Predict([]*order.HistoryEntry{
		entry("med_a", day(20)),
		entry("med_a", day(0)),
		entry("med_a", day(10)),
	}, day(25))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 forecast, got %d", len(alerts))
	}
	if !approx(alerts[0].AvgIntervalDays, 10) {
		t.Errorf("expected avg interval 10 from sorted dates, got %f", alerts[0].AvgIntervalDays)
	}
}

func TestPredict_MultipleMedicinesSortedByID(t *testing.T) {
	alerts := Predict([]*order.HistoryEntry{
		entry("med_z", day(0)), entry("med_z", day(10)),
		entry("med_a", day(0)), entry("med_a", day(10)),
	}, day(15))
	if len(alerts) != 2 {
		t.Fatalf("expected 2 forecasts, got %d", len(alerts))
	}
	if alerts[0].MedicineID != "med_a" || alerts[1].MedicineID != "med_z" {
		t.Errorf("expected deterministic id order, got %s, %s",
			alerts[0].MedicineID, alerts[1].MedicineID)
	}
}

type stubHistory struct {
	entries []*order.HistoryEntry
}

func (s *stubHistory) Append(_ context.Context, e *order.HistoryEntry) error {
	s.entries = append(s.entries, e)
	return nil
}

func (s *stubHistory) ListByUser(_ context.Context, _ string) ([]*order.HistoryEntry, error) {
	return s.entries, nil
}

func TestService_AlertsForUser(t *testing.T) {
	hist := &stubHistory{entries: []*order.HistoryEntry{
		entry("med_a", day(0)),
		entry("med_a", day(10)),
	}}
	svc := NewService(hist)
	svc.SetClock(func() time.Time { return day(28) })

	alerts, err := svc.AlertsForUser(context.Background(), "u_1")
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || !alerts[0].Alert {
		t.Fatalf("expected one firing alert, got %+v", alerts)
	}
}
