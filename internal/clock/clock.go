package clock

import "time"

// Clock allows deterministic timestamps in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant. Advance moves it forward.
type Fixed struct {
	At time.Time
}

func (f *Fixed) Now() time.Time {
	return f.At
}

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.At = f.At.Add(d)
}
