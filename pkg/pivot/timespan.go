package pivot

import "time"

// Timespan is the start/end pair used as default query time bounds.
type Timespan struct {
	Start time.Time
	End   time.Time
}

// TimespanFunc returns the current analysis time range. It is invoked
// at query call time, never at bind time, so bound queries always pick
// up the caller's current range.
type TimespanFunc func() Timespan

// LastNDays returns a TimespanFunc covering the n days up to now,
// re-evaluated on every call.
func LastNDays(n int) TimespanFunc {
	return func() Timespan {
		now := time.Now().UTC()
		return Timespan{Start: now.AddDate(0, 0, -n), End: now}
	}
}
