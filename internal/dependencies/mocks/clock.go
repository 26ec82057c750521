package mocks

import (
	"sync"
	"time"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
)

// MockClock is a mock implementation of Clock for testing.
// Tickers created from it only fire when the clock is advanced.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	tickers     []*MockTicker
}

// Ensure MockClock implements Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a MockClock set to the given time
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{currentTime: t}
}

// Now returns the mocked current time
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

// NewTicker creates a MockTicker driven by Advance
func (c *MockClock) NewTicker(d time.Duration) clock.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &MockTicker{
		clock:  c,
		ch:     make(chan time.Time, 1),
		period: d,
		next:   c.currentTime.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

// Advance moves the clock forward by the given duration, firing any
// running ticker whose next deadline has been reached
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.currentTime = c.currentTime.Add(d)
	now := c.currentTime
	tickers := append([]*MockTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fireIfDue(now)
	}
}

// Set sets the clock to the given time
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

// Tickers returns every ticker created so far
func (c *MockClock) Tickers() []*MockTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*MockTicker(nil), c.tickers...)
}

// MockTicker is a manually driven Ticker.
// Ticks are dropped rather than queued if the receiver falls behind.
type MockTicker struct {
	clock   *MockClock
	mu      sync.Mutex
	ch      chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

// C returns the tick channel
func (t *MockTicker) C() <-chan time.Time {
	return t.ch
}

// Stop prevents further ticks until Reset
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Reset restarts the ticker with the next tick due d after the clock's
// current time
func (t *MockTicker) Reset(d time.Duration) {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = false
	t.period = d
	t.next = now.Add(d)
}

// Stopped reports whether the ticker is currently stopped
func (t *MockTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Tick fires the ticker immediately unless it is stopped
func (t *MockTicker) Tick(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.next = now.Add(t.period)
	select {
	case t.ch <- now:
	default:
	}
	return true
}

func (t *MockTicker) fireIfDue(now time.Time) {
	t.mu.Lock()
	due := !t.stopped && !now.Before(t.next)
	t.mu.Unlock()
	if due {
		t.Tick(now)
	}
}
