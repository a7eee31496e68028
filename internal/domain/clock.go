package domain

import "time"

// Clock supplies the current time. Expiry and quota decisions never read the
// global clock directly so tests can simulate day rollovers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }
