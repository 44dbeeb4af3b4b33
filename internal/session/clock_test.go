package session

import (
	"sync"
	"testing"
	"time"
)

// manualClock is a Clock whose time only moves when the test says so.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *manualClock) NewTicker(time.Duration) Ticker {
	t := &manualTicker{c: make(chan time.Time)}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

func (c *manualClock) activeTickers() []*manualTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTicker
	for _, t := range c.tickers {
		if !t.isStopped() {
			out = append(out, t)
		}
	}
	return out
}

// Tick delivers two ticks to the active ticker. The second send only
// completes once the monitor has finished handling the first.
func (c *manualClock) Tick(t *testing.T) {
	t.Helper()
	active := c.activeTickers()
	if len(active) != 1 {
		t.Fatalf("active tickers = %d, want 1", len(active))
	}
	for range 2 {
		select {
		case active[0].c <- c.Now():
		case <-time.After(2 * time.Second):
			t.Fatal("idle monitor did not receive tick")
		}
	}
}

type manualTicker struct {
	c       chan time.Time
	mu      sync.Mutex
	stopped bool
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTicker) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
