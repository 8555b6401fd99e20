package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is the in-process Store. A single coarse mutex guards the map;
// contention is dominated by body copies, not the critical section.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	defaultTTL time.Duration

	now func() time.Time // test hook
}

// NewMemory creates a memory store. A non-positive defaultTTL falls back
// to DefaultTTL.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Memory{
		entries:    make(map[string]*Entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get implements Store. Expired entries are removed as a side effect of
// the lookup.
func (m *Memory) Get(_ context.Context, key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.Expired(m.now()) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

// Set implements Store, unconditionally replacing any existing entry.
func (m *Memory) Set(_ context.Context, key string, body []byte, ttl time.Duration, contentType string) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	now := m.now()
	e := &Entry{
		Body:         stored,
		ETag:         ContentETag(stored),
		LastModified: now,
		TTL:          ttl,
		ExpiresAt:    now.Add(ttl),
		ContentType:  contentType,
	}

	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
}

// Invalidate implements Store.
func (m *Memory) Invalidate(_ context.Context, key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// InvalidatePrefix implements Store.
func (m *Memory) InvalidatePrefix(_ context.Context, prefix string) {
	m.mu.Lock()
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}

// Cleanup implements Store.
func (m *Memory) Cleanup(_ context.Context) {
	now := m.now()
	m.mu.Lock()
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
}

// Len reports the number of physically present entries, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Contains reports physical presence without triggering lazy eviction.
func (m *Memory) Contains(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}
