// Package timeslot provides half-hour bucket arithmetic. The upstream
// forecast API samples at 30-minute intervals, and both the scheduler's wake
// cycle and the mirror's freshness check operate on the same grain.
package timeslot

import "time"

// Interval is the forecast sampling grain.
const Interval = 30 * time.Minute

// Floor rounds t down to the enclosing half-hour boundary.
func Floor(t time.Time) time.Time {
	return t.Add(-(time.Duration(t.Minute()%30)*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())))
}

// Ceil returns the next half-hour boundary strictly after t. A t already on
// a boundary still advances, so the result is usable as a wake time.
func Ceil(t time.Time) time.Time {
	return Floor(t).Add(Interval)
}

// SameBucket reports whether a and b fall in the same half-hour bucket.
func SameBucket(a, b time.Time) bool {
	return Floor(a).Equal(Floor(b))
}
