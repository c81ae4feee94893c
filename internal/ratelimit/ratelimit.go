package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits at most limit events per key in any trailing window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Memory is a sliding-log limiter for a single process.
type Memory struct {
	mu   sync.Mutex
	logs map[string][]time.Time
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{logs: make(map[string][]time.Time), now: time.Now}
}

// NewMemoryWithClock is for tests that need to move time.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{logs: make(map[string][]time.Time), now: now}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := m.now()
	cutoff := now.Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logs[key]
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	log = log[i:]

	res := Result{Limit: limit}
	if len(log) < limit {
		log = append(log, now)
		res.Allowed = true
		res.Remaining = limit - len(log)
		res.ResetAt = log[0].Add(window)
	} else {
		res.ResetAt = log[0].Add(window)
		res.RetryAfter = res.ResetAt.Sub(now)
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Millisecond
		}
	}
	if len(log) == 0 {
		delete(m.logs, key)
	} else {
		m.logs[key] = log
	}
	return res, nil
}
