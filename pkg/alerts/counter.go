package alerts

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	start time.Time
	last  time.Time
}

// Counter is an in-process fixed-window counter. It resets on restart.
type Counter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewCounter() *Counter {
	return NewCounterWithClock(time.Now)
}

// NewCounterWithClock reads window times from now.
func NewCounterWithClock(now func() time.Time) *Counter {
	return &Counter{windows: make(map[string]*window), now: now}
}

// Increment bumps key and returns the count inside the current window.
func (c *Counter) Increment(key string, span time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || now.Sub(w.start) > span {
		c.windows[key] = &window{count: 1, start: now, last: now}
		return 1
	}
	w.count++
	w.last = now
	return w.count
}

func (c *Counter) Get(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.windows[key]; ok {
		return w.count
	}
	return 0
}

func (c *Counter) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
}

// Cleanup removes counters not touched for longer than idle.
func (c *Counter) Cleanup(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, w := range c.windows {
		if now.Sub(w.last) > idle {
			delete(c.windows, key)
			removed++
		}
	}
	return removed
}

func (c *Counter) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup(idle)
		}
	}
}
