package engine

import "time"

// Clock abstracts time.Now() to allow deterministic testing.
// It decides "today" for projections, sweeps and rate-limit windows.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// today returns the civil date of c in loc, or RealClock when c is nil.
func today(c Clock, loc *time.Location) time.Time {
	if c == nil {
		c = RealClock{}
	}
	return CivilDate(c.Now(), loc)
}
