package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore keeps entries in process. Expired entries are treated as
// absent on read and removed lazily.
type MemoryStore struct {
	entries sync.Map // string -> memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return nil, ErrMiss
	}
	entry := v.(memoryEntry)
	if entry.expired(m.now()) {
		m.entries.CompareAndDelete(key, v)
		return nil, ErrMiss
	}
	return entry.value, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries.Store(key, entry)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.entries.Delete(key)
	}
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	now := m.now()
	var keys []string
	m.entries.Range(func(k, v any) bool {
		key := k.(string)
		if v.(memoryEntry).expired(now) {
			m.entries.CompareAndDelete(k, v)
			return true
		}
		if matchPattern(pattern, key) {
			keys = append(keys, key)
		}
		return true
	})
	return keys, nil
}

// TTL mirrors Redis semantics: -2s for a missing key, -1s for no expiry.
func (m *MemoryStore) TTL(_ context.Context, key string) (time.Duration, error) {
	v, ok := m.entries.Load(key)
	if !ok {
		return -2 * time.Second, nil
	}
	entry := v.(memoryEntry)
	if entry.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	remaining := entry.expiresAt.Sub(m.now())
	if remaining <= 0 {
		return -2 * time.Second, nil
	}
	return remaining, nil
}

func (m *MemoryStore) Flush(_ context.Context) error {
	m.entries.Range(func(k, _ any) bool {
		m.entries.Delete(k)
		return true
	})
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Stats(ctx context.Context) map[string]interface{} {
	keys, _ := m.Keys(ctx, "*")
	return map[string]interface{}{
		"status":  "connected",
		"backend": "memory",
		"keys":    len(keys),
	}
}

func (m *MemoryStore) Close() error { return nil }
