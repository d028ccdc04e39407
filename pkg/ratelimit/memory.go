package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/healo-ai/concierge/pkg/common/logger"
)

type entry struct {
	count int64
	first time.Time
	last  time.Time
}

// MemoryStore keeps per-process windows. Entries idle longer than the TTL
// are removed by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]*entry), now: now}
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || now.Sub(e.first) > window {
		s.entries[key] = &entry{count: 1, first: now, last: now}
		return 1, now.Add(window), nil
	}
	e.count++
	e.last = now
	return e.count, e.first.Add(window), nil
}

// Sweep drops entries with no activity for longer than idle.
func (s *MemoryStore) Sweep(idle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.last) > idle {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run sweeps every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(idle); n > 0 {
				logger.Log.WithField("removed", n).Debug("rate limit entries swept")
			}
		}
	}
}
