package vault

import "sync/atomic"

// ManualClock is a Clock moved by hand.
type ManualClock struct {
	now atomic.Int64
}

func NewManualClock(start int64) *ManualClock {
	c := &ManualClock{}
	c.now.Store(start)
	return c
}

func (c *ManualClock) Now() int64 {
	return c.now.Load()
}

// Set moves the clock to ts.
func (c *ManualClock) Set(ts int64) {
	c.now.Store(ts)
}

// Advance moves the clock forward by seconds.
func (c *ManualClock) Advance(seconds int64) {
	c.now.Add(seconds)
}
