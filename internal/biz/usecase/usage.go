package usecase

import (
	"sync"
	"time"
)

// UsageCounter tracks summarization calls per calendar day. The reset is
// lazy: every access checks whether the date (in the configured timezone)
// has advanced and zeroes the count if so. No timer involved.
type UsageCounter struct {
	mu    sync.Mutex
	loc   *time.Location
	now   func() time.Time
	count int
	date  string // YYYY-MM-DD of the counted day
}

// NewUsageCounter creates a counter that rolls over at midnight in loc.
func NewUsageCounter(loc *time.Location) *UsageCounter {
	return &UsageCounter{loc: loc, now: time.Now}
}

// NewUsageCounterWithClock creates a counter with a custom clock.
func NewUsageCounterWithClock(loc *time.Location, now func() time.Time) *UsageCounter {
	return &UsageCounter{loc: loc, now: now}
}

// Increment records one successful summarization call.
func (c *UsageCounter) Increment() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	c.count++
}

// Today returns the number of calls made on the current calendar day.
func (c *UsageCounter) Today() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollover()
	return c.count
}

func (c *UsageCounter) rollover() {
	today := c.now().In(c.loc).Format("2006-01-02")
	if today != c.date {
		c.date = today
		c.count = 0
	}
}
