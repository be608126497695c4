// Package refill forecasts medicine depletion from purchase-interval history.
// The projection is stateless: it is recomputed on every read and never
// persisted.
package refill

import (
	"sort"
	"time"

	"github.com/pharmguard/pharmguard/internal/domain/order"
)

// AlertWindowDays is the days-left threshold at or below which an alert fires.
const AlertWindowDays = 7

// Alert is the per-medicine refill forecast for one user.
type Alert struct {
	MedicineID      string  `json:"medicine_id"`
	AvgIntervalDays float64 `json:"avg_interval_days"`
	DaysLeft        float64 `json:"days_left"`
	Alert           bool    `json:"alert"`
}

// Predict computes refill alerts from a user's purchase history as of now.
// Medicines with fewer than two purchases are excluded: a single purchase
// gives no interval to average, so no alert is produced for it.
func Predict(history []*order.HistoryEntry, now time.Time) []Alert {
	byMedicine := make(map[string][]time.Time)
	for _, e := range history {
		byMedicine[e.MedicineID] = append(byMedicine[e.MedicineID], e.PurchaseDate)
	}

	ids := make([]string, 0, len(byMedicine))
	for id := range byMedicine {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var alerts []Alert
	for _, id := range ids {
		dates := byMedicine[id]
		if len(dates) < 2 {
			continue
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		var totalDays float64
		for i := 1; i < len(dates); i++ {
			totalDays += dates[i].Sub(dates[i-1]).Hours() / 24
		}
		avgInterval := totalDays / float64(len(dates)-1)

		elapsed := now.Sub(dates[len(dates)-1]).Hours() / 24
		daysLeft := avgInterval - elapsed

		alerts = append(alerts, Alert{
			MedicineID:      id,
			AvgIntervalDays: avgInterval,
			DaysLeft:        daysLeft,
			Alert:           daysLeft <= AlertWindowDays,
		})
	}
	return alerts
}
