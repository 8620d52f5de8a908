// Package timeutil lets the scanner's timing be driven by tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the scanner depends on.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTimer(d time.Duration) Timer
	NewTicker(d time.Duration) Ticker
}

// Timer is a one-shot event.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Ticker delivers ticks at a fixed interval.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

func (RealClock) NewTimer(d time.Duration) Timer {
	return realTimer{time.NewTimer(d)}
}

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when Set or Advance is called. Timers and tickers
// created from it fire during Advance.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*mockEvent
}

// NewMockClock returns a MockClock reading t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Set jumps to t without firing anything.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and fires every event whose deadline
// has been reached.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	events := append([]*mockEvent(nil), c.pending...)
	c.mu.Unlock()

	for _, e := range events {
		e.fire(now)
	}
}

// Pending reports how many timers and tickers are still armed.
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.pending {
		if e.armed() {
			n++
		}
	}
	return n
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	return c.add(d, false)
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	return mockTicker{c.add(d, true)}
}

func (c *MockClock) add(d time.Duration, repeat bool) *mockEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &mockEvent{
		ch:       make(chan time.Time, 1),
		deadline: c.now.Add(d),
		interval: d,
		repeat:   repeat,
	}
	c.pending = append(c.pending, e)
	return e
}

type mockEvent struct {
	mu       sync.Mutex
	ch       chan time.Time
	deadline time.Time
	interval time.Duration
	repeat   bool
	done     bool
}

func (e *mockEvent) C() <-chan time.Time { return e.ch }

func (e *mockEvent) Stop() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasArmed := !e.done
	e.done = true
	return wasArmed
}

func (e *mockEvent) armed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.done
}

func (e *mockEvent) fire(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done || now.Before(e.deadline) {
		return
	}
	select {
	case e.ch <- now:
	default:
	}
	if e.repeat {
		e.deadline = now.Add(e.interval)
	} else {
		e.done = true
	}
}

type mockTicker struct{ e *mockEvent }

func (m mockTicker) C() <-chan time.Time { return m.e.C() }
func (m mockTicker) Stop()               { m.e.Stop() }
