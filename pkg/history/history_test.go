package history

import (
	"testing"
	"time"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

func TestAppendKeepsStatsConsistent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var entries []models.PriceHistoryEntry
	prices := []float64{120, 110, 100, 115, 95}

	for i, price := range prices {
		var stats Stats
		entries, stats = Append(entries, price, now.Add(time.Duration(i)*time.Hour))

		lowest, highest, sum := entries[0].Price, entries[0].Price, 0.0
		for _, e := range entries {
			if e.Price < lowest {
				lowest = e.Price
			}
			if e.Price > highest {
				highest = e.Price
			}
			sum += e.Price
		}

		if stats.Lowest != lowest {
			t.Errorf("after %d appends: Lowest = %v, want %v", i+1, stats.Lowest, lowest)
		}
		if stats.Highest != highest {
			t.Errorf("after %d appends: Highest = %v, want %v", i+1, stats.Highest, highest)
		}
		wantAvg := float64(int(sum/float64(len(entries))*100+0.5)) / 100
		if diff := stats.Average - wantAvg; diff > 0.005 || diff < -0.005 {
			t.Errorf("after %d appends: Average = %v, want ~%v", i+1, stats.Average, wantAvg)
		}
	}

	if len(entries) != len(prices) {
		t.Fatalf("history length = %d, want %d", len(entries), len(prices))
	}
	// Insertion order is chronological order.
	for i := 1; i < len(entries); i++ {
		if entries[i].At.Before(entries[i-1].At) {
			t.Errorf("entries out of order at %d", i)
		}
	}
}

func TestAppendDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	original := []models.PriceHistoryEntry{
		{Price: 120, At: now},
		{Price: 110, At: now.Add(time.Hour)},
	}
	snapshot := make([]models.PriceHistoryEntry, len(original))
	copy(snapshot, original)

	updated, _ := Append(original, 100, now.Add(2*time.Hour))

	if len(original) != 2 {
		t.Fatalf("input length changed to %d", len(original))
	}
	for i := range original {
		if original[i] != snapshot[i] {
			t.Errorf("input entry %d mutated", i)
		}
	}
	if len(updated) != 3 || updated[2].Price != 100 {
		t.Errorf("updated = %v, want original plus new entry", updated)
	}
}

func TestAverageRounding(t *testing.T) {
	now := time.Now()
	entries, stats := Append(nil, 10, now)
	entries, stats = Append(entries, 10, now)
	_, stats = Append(entries, 11, now)

	// mean(10, 10, 11) = 10.333... -> 10.33
	if stats.Average != 10.33 {
		t.Errorf("Average = %v, want 10.33", stats.Average)
	}
}

func TestLowestPriceScenario(t *testing.T) {
	now := time.Now()
	var entries []models.PriceHistoryEntry
	var stats Stats
	for _, p := range []float64{120, 110, 100} {
		entries, stats = Append(entries, p, now)
	}
	if stats.Lowest != 100 {
		t.Fatalf("Lowest = %v, want 100", stats.Lowest)
	}

	_, stats = Append(entries, 95, now)
	if stats.Lowest != 95 {
		t.Errorf("Lowest after drop = %v, want 95", stats.Lowest)
	}
	if stats.Highest != 120 {
		t.Errorf("Highest = %v, want 120", stats.Highest)
	}
}

func TestComputeEmpty(t *testing.T) {
	if s := Compute(nil); s != (Stats{}) {
		t.Errorf("Compute(nil) = %+v, want zero stats", s)
	}
}
