package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryList is the single-process list used when Redis is not configured.
type MemoryList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemory() *MemoryList {
	return &MemoryList{entries: make(map[string]time.Time), now: time.Now}
}

func (l *MemoryList) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	l.entries[jti] = l.now().Add(ttl)
	return nil
}

func (l *MemoryList) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	expires, ok := l.entries[jti]
	if !ok {
		return false, nil
	}
	if !l.now().Before(expires) {
		delete(l.entries, jti)
		return false, nil
	}
	return true, nil
}

// sweep drops expired entries. Callers hold mu.
func (l *MemoryList) sweep() {
	now := l.now()
	for jti, expires := range l.entries {
		if !now.Before(expires) {
			delete(l.entries, jti)
		}
	}
}
