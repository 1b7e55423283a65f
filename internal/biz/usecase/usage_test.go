package usecase

import (
	"testing"
	"time"
)

func TestUsageCounterRollsOverLazily(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}

	current := time.Date(2026, 8, 23, 23, 30, 0, 0, loc)
	counter := NewUsageCounterWithClock(loc, func() time.Time { return current })

	counter.Increment()
	counter.Increment()
	if got := counter.Today(); got != 2 {
		t.Fatalf("Expected 2 calls today, got %d", got)
	}

	// Cross midnight in the counter's timezone.
	current = current.Add(time.Hour)
	if got := counter.Today(); got != 0 {
		t.Errorf("Expected reset after midnight, got %d", got)
	}

	counter.Increment()
	if got := counter.Today(); got != 1 {
		t.Errorf("Expected 1 call on the new day, got %d", got)
	}
}

func TestUsageCounterRolloverUsesConfiguredZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}

	// 14:55 UTC on the 23rd is 23:55 JST; an hour later it is still the
	// 23rd in UTC but the 24th in JST.
	current := time.Date(2026, 8, 23, 14, 55, 0, 0, time.UTC)
	counter := NewUsageCounterWithClock(loc, func() time.Time { return current })

	counter.Increment()
	current = current.Add(time.Hour)
	if got := counter.Today(); got != 0 {
		t.Errorf("Rollover must follow the configured zone, got %d", got)
	}
}
