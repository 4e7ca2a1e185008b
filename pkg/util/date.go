package util

import "time"

const dayLayout = "2006-01-02"

// DayKey returns the calendar-day bucket for t. Cached market data is
// stamped with this key and treated as stale once the day rolls over.
func DayKey(t time.Time) string {
	return t.Format(dayLayout)
}

// UntilNextDay returns the time left until the next local midnight.
func UntilNextDay(t time.Time) time.Duration {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, t.Location()).Add(24 * time.Hour)
	return midnight.Sub(t)
}

// WithinHours reports whether at is less than hours old relative to
// now. A non-positive limit never matches.
func WithinHours(now, at time.Time, hours int) bool {
	return hours > 0 && now.Sub(at) < time.Duration(hours)*time.Hour
}
