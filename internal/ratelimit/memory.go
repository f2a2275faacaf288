package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Memory is a process-local fixed-window limiter. Expired windows are replaced
// on the next hit for their key and dropped wholesale by Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	limit   int
	window  time.Duration
	clock   clockwork.Clock
}

func NewMemory(limit int, window time.Duration, clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Memory{
		entries: make(map[string]*entry),
		limit:   limit,
		window:  window,
		clock:   clock,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &entry{resetAt: now.Add(m.window)}
		m.entries[key] = e
	}
	e.count++

	return Result{
		Allowed:   e.count <= m.limit,
		Limit:     m.limit,
		Remaining: remaining(m.limit, e.count),
		ResetAt:   e.resetAt,
	}, nil
}

// Sweep removes expired windows and returns how many were dropped.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	dropped := 0
	for key, e := range m.entries {
		if !now.Before(e.resetAt) {
			delete(m.entries, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
