// Package timeutil provides calendar-day helpers in a configured timezone.
// Routine completions are tracked per local day, so "today" must be computed
// in the users' timezone rather than UTC.
package timeutil

import (
	"time"
)

// AlmatyTZ is the default timezone (UTC+5, no DST).
var AlmatyTZ = time.FixedZone("Asia/Almaty", 5*60*60)

// DateLayout is the layout of day keys.
const DateLayout = "2006-01-02"

// Clock returns the current time in a fixed location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock creates a clock for loc. A nil loc means AlmatyTZ.
func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = AlmatyTZ
	}
	return &Clock{loc: loc, now: time.Now}
}

// FixedClock returns a clock frozen at t, for tests.
func FixedClock(t time.Time, loc *time.Location) *Clock {
	c := NewClock(loc)
	c.now = func() time.Time { return t }
	return c
}

// Location returns the clock's timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the clock's timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the key of the current local day.
func (c *Clock) Today() string {
	return DayKey(c.Now(), c.loc)
}

// UntilEndOfDay returns the time left in the current local day.
func (c *Clock) UntilEndOfDay() time.Duration {
	now := c.Now()
	return StartOfDay(now, c.loc).AddDate(0, 0, 1).Sub(now)
}

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999999999 of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, loc)
}

// DayKey formats t's local day as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// IsSameDay checks if two times fall on the same local day.
func IsSameDay(t1, t2 time.Time, loc *time.Location) bool {
	return DayKey(t1, loc) == DayKey(t2, loc)
}

// IsConsecutiveDay checks if t2 falls on the local day after t1.
func IsConsecutiveDay(t1, t2 time.Time, loc *time.Location) bool {
	return IsSameDay(StartOfDay(t1, loc).AddDate(0, 0, 1), t2, loc)
}

// DaysBetween returns the absolute number of local days between two times.
func DaysBetween(t1, t2 time.Time, loc *time.Location) int {
	a := StartOfDay(t1, loc)
	b := StartOfDay(t2, loc)
	days := int(b.Sub(a).Round(time.Hour).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}
