// README: Size- and time-bounded in-memory TTL cache.
package cache

import (
	"sync"
	"time"
)

// TTLMap is a bounded in-memory cache with per-entry expiry. It backs the
// geocode cache and pending-checkout storage when Redis is not available.
// Expired entries are dropped lazily on access and swept when the map is
// full.
type TTLMap struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

func NewTTLMap(ttl time.Duration, maxSize int) *TTLMap {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &TTLMap{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (m *TTLMap) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *TTLMap) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.maxSize {
		m.sweepLocked()
	}
	// Still full after sweeping live entries: refuse growth, overwrite only.
	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.maxSize {
		return
	}
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(m.ttl)}
}

// Take returns and removes the entry, for one-shot handoff keys.
func (m *TTLMap) Take(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	delete(m.entries, key)
	if m.now().After(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

func (m *TTLMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *TTLMap) sweepLocked() {
	now := m.now()
	for k, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}
