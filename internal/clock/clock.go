// Package clock provides the microsecond time source used to stamp marks,
// processing spans and counter snapshots.
package clock

import (
	"sync"
	"time"
)

// Clock returns a monotonic timestamp in microseconds. Only ordering and rate
// are meaningful; the epoch is arbitrary.
type Clock interface {
	NowMicros() uint64
}

// Monotonic measures elapsed time since it was started.
type Monotonic struct {
	start time.Time
}

// New returns a started Monotonic clock.
func New() *Monotonic {
	c := &Monotonic{}
	c.Start()
	return c
}

// Start resets the epoch to now.
func (c *Monotonic) Start() {
	c.start = time.Now()
}

// Elapsed reports the time since Start.
// time.Since uses the monotonic reading, so wall-clock jumps do not affect it.
func (c *Monotonic) Elapsed() time.Duration {
	return time.Since(c.start)
}

func (c *Monotonic) NowMicros() uint64 {
	return uint64(c.Elapsed() / time.Microsecond)
}

// Manual is a clock that only moves when told to. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now uint64
}

// NewManual returns a Manual clock reading start microseconds.
func NewManual(start uint64) *Manual {
	return &Manual{now: start}
}

func (m *Manual) NowMicros() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += uint64(d / time.Microsecond)
	m.mu.Unlock()
}

// Set jumps the clock to us. Moving backwards is allowed so tests can model
// misbehaving sources.
func (m *Manual) Set(us uint64) {
	m.mu.Lock()
	m.now = us
	m.mu.Unlock()
}
