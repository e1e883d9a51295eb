package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count  int64
	expiry time.Time
}

// memoryCounter is the process-local fallback. Each process enforces the
// quota on its own, so during a store outage the effective limit scales
// with the number of running instances.
type memoryCounter struct {
	mu      sync.Mutex
	entries map[string]window
	now     func() time.Time
}

func newMemoryCounter(now func() time.Time) *memoryCounter {
	return &memoryCounter{
		entries: make(map[string]window),
		now:     now,
	}
}

func (m *memoryCounter) increment(key string, length time.Duration) attempt {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || now.After(entry.expiry) {
		m.sweepLocked(now)
		m.entries[key] = window{count: 1, expiry: now.Add(length)}
		return attempt{count: 1, source: sourceFallback}
	}

	entry.count++
	m.entries[key] = entry
	return attempt{count: entry.count, source: sourceFallback}
}

// sweepLocked drops every expired window. Runs on each fresh-window write so
// the map stays bounded by the number of live keys.
func (m *memoryCounter) sweepLocked(now time.Time) {
	for key, entry := range m.entries {
		if now.After(entry.expiry) {
			delete(m.entries, key)
		}
	}
}

func (m *memoryCounter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
