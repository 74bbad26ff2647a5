package engine

import "sync/atomic"

// Clock is a monotonic counter. A Database owns two: one issuing record
// ids and one issuing match ids. Both start at 0, so the first value
// handed out is 1 and 0 always means "unset".
//
// Clock is safe for concurrent use, although a Database only calls it
// from the goroutine running FireRules.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1. Used when a
// database has to continue numbering after facts loaded from storage.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next value and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last value handed out without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
