// Package clock abstracts wall-clock reads so TTL stores and cooldown
// trackers can be driven deterministically in tests.
package clock

import "time"

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock. time.Now carries a monotonic reading, so
// Sub/Since comparisons between two Real readings are immune to wall-clock
// jumps.
type Real struct{}

// Now implements Clock.
func (Real) Now() time.Time { return time.Now() }

// Or returns c, or Real when c is nil.
func Or(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
