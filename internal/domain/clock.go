package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze the forecast
// reference date via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// ReferenceDate returns the current instant in UTC, used as the "today" the
// forecast is taken from.
func ReferenceDate() time.Time {
	return clock.Now().UTC()
}
