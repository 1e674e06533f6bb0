package realtime

import "time"

// Clock abstracts time so refresh and reconnect timers can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

// SystemClock returns a Clock backed by the time package.
//
//nolint:ireturn // Clock is the injection point
func SystemClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

//nolint:ireturn // *time.Timer satisfies Timer
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
