package repository

import (
	"context"
	"sync"
	"time"
)

// pendingValue marks a claimed key whose owner has not completed it yet.
const pendingValue = "pending"

type memoryEntry struct {
	value     string
	count     int
	expiresAt time.Time
}

// MemoryStore is the in-process KeyValueStore used when Redis is absent or down.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry), now: time.Now}
}

// live returns the unexpired entry for key. Callers hold mu.
func (r *MemoryStore) live(key string) (*memoryEntry, bool) {
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !r.now().Before(e.expiresAt) {
		delete(r.entries, key)
		return nil, false
	}
	return e, true
}

func (r *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.live(key); ok {
		return false, e.value, nil
	}
	r.entries[key] = &memoryEntry{value: pendingValue, expiresAt: r.expiry(ttl)}
	return true, "", nil
}

func (r *MemoryStore) Complete(_ context.Context, key, value string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = &memoryEntry{value: value, expiresAt: r.expiry(ttl)}
	return nil
}

func (r *MemoryStore) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
	return nil
}

func (r *MemoryStore) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.live(key)
	if !ok {
		e = &memoryEntry{expiresAt: r.expiry(window)}
		r.entries[key] = e
	}
	e.count++
	return e.count <= limit, nil
}
