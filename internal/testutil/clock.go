package testutil

import "sync"

// DefaultEpoch is the first timestamp a DeterministicClock hands out.
const DefaultEpoch int64 = 1_700_000_000

// DeterministicClock hands out unix timestamps one second apart, starting
// at its epoch. Payments built with it carry identical action timestamps
// on every run, so golden traces stay byte-stable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch int64
	ticks int64
}

// NewDeterministicClock creates a clock starting at epoch. A zero epoch
// means DefaultEpoch.
func NewDeterministicClock(epoch int64) *DeterministicClock {
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	return &DeterministicClock{epoch: epoch}
}

// Now returns the next timestamp. The first call returns the epoch.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.epoch + c.ticks
	c.ticks++
	return t
}

// Reset rewinds the clock to its epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}
