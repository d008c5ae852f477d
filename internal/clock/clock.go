package clock

import "time"

// Clock allows injecting time into the wallet core and the reminder scheduler.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Fixed is a settable clock for tests.
type Fixed struct {
	now time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (f *Fixed) Now() time.Time {
	return f.now
}

func (f *Fixed) Set(t time.Time) {
	f.now = t
}

func (f *Fixed) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}
