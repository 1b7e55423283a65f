package domain

import (
	"fmt"
	"time"
)

// RetentionHours is how long messages stay in the buffer. Nothing older
// than this survives a pruning pass, and no query may look further back.
const RetentionHours = 168

// ScheduleEntry describes one recurring digest trigger. Times are
// interpreted in the configured schedule timezone; the entry fires when
// the wall clock equals (Hour, Minute) exactly, at minute granularity.
type ScheduleEntry struct {
	Hour          int
	Minute        int
	LookbackHours int
	Weekly        bool         // matched against Weekday, long-horizon prompt
	Weekday       time.Weekday // only meaningful when Weekly
	Label         string
	Color         string // card header template color
}

// Lookback returns the entry's window as a duration.
func (e ScheduleEntry) Lookback() time.Duration {
	return time.Duration(e.LookbackHours) * time.Hour
}

// Matches reports whether the entry fires at the given local wall-clock
// instant. Minute-granularity equality, never >=, so a tick that lands
// inside the matching minute fires exactly once.
func (e ScheduleEntry) Matches(now time.Time) bool {
	if now.Hour() != e.Hour || now.Minute() != e.Minute {
		return false
	}
	if e.Weekly && now.Weekday() != e.Weekday {
		return false
	}
	return true
}

// DailySchedule is the fixed daily digest table. The 06:00 run covers the
// 12 hours since the previous evening run; the midday and evening runs
// cover the 6 hours since the run before them.
var DailySchedule = []ScheduleEntry{
	{Hour: 6, Minute: 0, LookbackHours: 12, Label: "Overnight digest", Color: "purple"},
	{Hour: 12, Minute: 0, LookbackHours: 6, Label: "Morning digest", Color: "blue"},
	{Hour: 18, Minute: 0, LookbackHours: 6, Label: "Afternoon digest", Color: "orange"},
}

// WeeklySchedule covers the full retention window every Monday morning.
// Its run is followed by a full buffer pruning pass.
var WeeklySchedule = ScheduleEntry{
	Hour: 6, Minute: 0, LookbackHours: RetentionHours,
	Weekly: true, Weekday: time.Monday,
	Label: "Weekly digest", Color: "green",
}

// ValidateSchedule checks a schedule table at startup. The tables above are
// constants, but validation keeps a bad edit from silently never firing.
func ValidateSchedule(entries []ScheduleEntry) error {
	for i, e := range entries {
		if e.Hour < 0 || e.Hour > 23 {
			return fmt.Errorf("schedule entry %d (%s): hour %d out of range", i, e.Label, e.Hour)
		}
		if e.Minute < 0 || e.Minute > 59 {
			return fmt.Errorf("schedule entry %d (%s): minute %d out of range", i, e.Label, e.Minute)
		}
		if e.LookbackHours < 1 || e.LookbackHours > RetentionHours {
			return fmt.Errorf("schedule entry %d (%s): lookback %dh outside [1,%d]", i, e.Label, e.LookbackHours, RetentionHours)
		}
	}
	return nil
}

// NextRun returns the next instant at or after now (in now's location) at
// which the entry will fire. Used for operator status reporting only.
func (e ScheduleEntry) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), e.Hour, e.Minute, 0, 0, now.Location())
	if e.Weekly {
		days := (int(e.Weekday) - int(now.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, days)
		if next.Before(now) {
			next = next.AddDate(0, 0, 7)
		}
		return next
	}
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
