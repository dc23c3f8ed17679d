// Package tick provides the monotonic cycle counter that every timeout in the
// keyboard pipeline is measured against.
//
// A Source is advanced by exactly one driver (the Go stand-in for a hardware
// timer interrupt) and read by the scan/report pipeline. Reads and writes are
// atomic, so a reader never observes a torn value.
package tick

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// Tick is a point on the cycle counter. The counter wraps; compare ticks with
// Reached and Since, never with < or >.
type Tick uint32

// Add returns the tick n cycles after t.
func (t Tick) Add(n uint32) Tick {
	return t + Tick(n)
}

// Reached reports whether now is at or past deadline.
func Reached(now, deadline Tick) bool {
	return int32(now-deadline) >= 0
}

// Since returns the number of ticks elapsed from then to now.
func Since(now, then Tick) uint32 {
	return uint32(now - then)
}

// Clock is the read side of a tick source.
type Clock interface {
	Now() Tick
}

// Source is the owned tick counter.
type Source struct {
	count atomic.Uint32
}

// NewSource creates a Source starting at zero.
func NewSource() *Source {
	return &Source{}
}

// Now returns the current tick.
func (s *Source) Now() Tick {
	return Tick(s.count.Load())
}

// Advance moves the counter forward by one tick. It is the only mutator and
// must be called from a single driver.
func (s *Source) Advance() Tick {
	return Tick(s.count.Add(1))
}

// Set forces the counter to t. Intended for tests and simulators.
func (s *Source) Set(t Tick) {
	s.count.Store(uint32(t))
}

// DefaultRate is the nominal tick rate: an 8-bit timer overflowing at
// 16 MHz / 1024 / 256, about 61 Hz.
const DefaultRate = 61

// ErrDriverRunning is returned when Run is called on a driver that is already running.
var ErrDriverRunning = errors.New("tick driver already running")

// Driver advances a Source at a fixed rate.
type Driver struct {
	src     *Source
	period  time.Duration
	running atomic.Bool
}

// NewDriver creates a Driver that advances src hz times per second.
func NewDriver(src *Source, hz int) *Driver {
	if hz <= 0 {
		hz = DefaultRate
	}
	return &Driver{
		src:    src,
		period: time.Second / time.Duration(hz),
	}
}

// Period returns the interval between ticks.
func (d *Driver) Period() time.Duration {
	return d.period
}

// Run advances the source every period until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrDriverRunning
	}
	defer d.running.Store(false)

	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.src.Advance()
		}
	}
}

// Ticks converts a duration to a whole number of ticks at rate hz, rounding up.
func Ticks(d time.Duration, hz int) uint32 {
	if hz <= 0 {
		hz = DefaultRate
	}
	period := time.Second / time.Duration(hz)
	return uint32((d + period - 1) / period)
}
