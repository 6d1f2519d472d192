package lockout

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	failures    int
	expiresAt   time.Time
	lockedUntil *time.Time
}

// MemoryStore is the single-process store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

func (m *MemoryStore) RecordFailure(_ context.Context, key string, window time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	if e.failures == 0 || !now.Before(e.expiresAt) {
		e.failures = 0
		e.expiresAt = now.Add(window)
	}
	e.failures++
	return e.failures, nil
}

func (m *MemoryStore) Lock(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &memoryEntry{}
		m.entries[key] = e
	}
	e.lockedUntil = &until
	e.failures = 0
	return nil
}

func (m *MemoryStore) LockedUntil(_ context.Context, key string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.lockedUntil == nil {
		return nil, nil
	}
	if !m.now().Before(*e.lockedUntil) {
		e.lockedUntil = nil
		return nil, nil
	}
	until := *e.lockedUntil
	return &until, nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
