package history

import (
	"math"
	"time"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

// Stats are the derived figures recomputed over the whole series after
// every append. The series stays small (one entry per scrape), so a full
// recompute is cheaper to reason about than incremental maintenance.
type Stats struct {
	Lowest  float64
	Highest float64
	Average float64
}

// Append returns a new history with one entry added and the stats over the
// updated series. The input slice is never mutated.
func Append(entries []models.PriceHistoryEntry, price float64, at time.Time) ([]models.PriceHistoryEntry, Stats) {
	updated := make([]models.PriceHistoryEntry, 0, len(entries)+1)
	updated = append(updated, entries...)
	updated = append(updated, models.PriceHistoryEntry{Price: price, At: at})
	return updated, Compute(updated)
}

// Compute derives lowest, highest and the unweighted mean (rounded to two
// decimals) over a price series.
func Compute(entries []models.PriceHistoryEntry) Stats {
	if len(entries) == 0 {
		return Stats{}
	}
	s := Stats{
		Lowest:  entries[0].Price,
		Highest: entries[0].Price,
	}
	sum := 0.0
	for _, e := range entries {
		if e.Price < s.Lowest {
			s.Lowest = e.Price
		}
		if e.Price > s.Highest {
			s.Highest = e.Price
		}
		sum += e.Price
	}
	s.Average = math.Round(sum/float64(len(entries))*100) / 100
	return s
}
