// Package timer simulates the machine timer: the mtime counter, the
// supervisor timer compare register, and a clock it runs against.
package timer

import (
	"sync"
	"time"
)

const (
	ClockFreq     uint64 = 12500000
	TicksPerSec   uint64 = 100
	MsecPerSec    uint64 = 1000
	CyclesPerTick        = ClockFreq / TicksPerSec
	cyclesPerMsec        = ClockFreq / MsecPerSec
)

// Clock is the time source behind mtime. WaitUntil blocks until the clock
// reads at least t.
type Clock interface {
	Now() time.Duration
	WaitUntil(t time.Duration)
}

type RealClock struct {
	start time.Time
}

func NewRealClock() *RealClock {
	return &RealClock{start: time.Now()}
}

func (c *RealClock) Now() time.Duration {
	return time.Since(c.start)
}

func (c *RealClock) WaitUntil(t time.Duration) {
	if d := t - c.Now(); d > 0 {
		time.Sleep(d)
	}
}

// FakeClock only moves when told to; WaitUntil jumps straight to the
// deadline. With a step set, every reading also advances it by step, so
// code that polls the clock sees time pass deterministically.
type FakeClock struct {
	mu   sync.Mutex
	now  time.Duration
	step time.Duration
}

func NewFakeClock() *FakeClock {
	return &FakeClock{}
}

func (c *FakeClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

func (c *FakeClock) SetStep(d time.Duration) {
	c.mu.Lock()
	c.step = d
	c.mu.Unlock()
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

func (c *FakeClock) WaitUntil(t time.Duration) {
	c.mu.Lock()
	if t > c.now {
		c.now = t
	}
	c.mu.Unlock()
}

type Timer struct {
	clock Clock
	cmp   uint64
	armed bool
}

func NewTimer(c Clock) *Timer {
	return &Timer{clock: c}
}

func (t *Timer) Clock() Clock {
	return t.clock
}

// Time reads mtime in cycles.
func (t *Timer) Time() uint64 {
	return uint64(t.clock.Now()) * ClockFreq / uint64(time.Second)
}

func (t *Timer) TimeMS() uint64 {
	return t.Time() / cyclesPerMsec
}

// SetTimer programs the compare register.
func (t *Timer) SetTimer(cycles uint64) {
	t.cmp = cycles
	t.armed = true
}

// SetTrigger arms the timer one tick from now.
func (t *Timer) SetTrigger() {
	t.SetTimer(t.Time() + CyclesPerTick)
}

func (t *Timer) Pending() bool {
	return t.armed && t.Time() >= t.cmp
}

// Deadline returns the clock reading at which the armed timer fires.
func (t *Timer) Deadline() (time.Duration, bool) {
	if !t.armed {
		return 0, false
	}
	return time.Duration(ceilDiv(t.cmp*uint64(time.Second), ClockFreq)), true
}

func MsToDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}
