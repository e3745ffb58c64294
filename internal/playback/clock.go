package playback

import "time"

type Timer interface {
	Stop() bool
}

// Clock schedules the reveal and countdown callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
