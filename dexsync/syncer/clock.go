// Package syncer contains the delivery side of the engine: the session
// oracle that gates network activity, the HTTP channel that ships outbox
// batches to the receiver, and the scheduler that decides when to flush.
package syncer

import "time"

// Clock abstracts time for the scheduler so tests can drive ticks
// deterministically.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewClock returns the wall clock.
func NewClock() Clock {
	return realClock{}
}
