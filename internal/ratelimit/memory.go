package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry tracks request counts across two adjacent windows.
type entry struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// Memory is a process-local sliding window limiter. The previous window's
// count is weighted by how much of it still overlaps the sliding window.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

var _ Limiter = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string, limit int) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		e = &entry{currStart: now.Truncate(Window)}
		m.entries[key] = e
	}

	if elapsed := now.Sub(e.currStart); elapsed >= Window {
		if elapsed >= 2*Window {
			e.prevCount = 0
		} else {
			e.prevCount = e.currCount
		}
		e.currCount = 0
		e.currStart = now.Truncate(Window)
	}

	overlap := 1.0 - now.Sub(e.currStart).Seconds()/Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	effective := e.prevCount*overlap + e.currCount

	d := Decision{Limit: limit, ResetAt: e.currStart.Add(Window)}
	if effective >= float64(limit) {
		return d, nil
	}

	e.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(limit)-effective-1), 0)
	return d, nil
}

func (m *Memory) cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, e := range m.entries {
		if now.Sub(e.currStart) >= 2*Window {
			delete(m.entries, key)
		}
	}
}

// Run evicts idle keys every two windows until ctx is cancelled.
func (m *Memory) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.cleanup(now)
		}
	}
}
