package cache

import (
	"sync"
	"time"
)

// memoryTier is the in-process cache tier: a TTL map with capacity-based
// eviction and a periodic cleanup goroutine.
type memoryTier struct {
	mu       sync.RWMutex
	items    map[string]Entry
	maxItems int
	stop     chan struct{}
}

func newMemoryTier(maxItems int) *memoryTier {
	if maxItems <= 0 {
		maxItems = 2000
	}
	m := &memoryTier{
		items:    make(map[string]Entry),
		maxItems: maxItems,
		stop:     make(chan struct{}),
	}
	go m.cleanup()
	return m
}

func (m *memoryTier) get(key string, now time.Time) (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.items[key]
	if !ok || !entry.Fresh(now) {
		return Entry{}, false
	}
	return entry, true
}

func (m *memoryTier) set(entry Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) >= m.maxItems {
		m.evict()
	}
	m.items[entry.Key] = entry
}

func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *memoryTier) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *memoryTier) close() {
	close(m.stop)
}

// evict removes expired entries first, then the soonest-expiring 10% if the
// tier is still at capacity (must be called with lock held).
func (m *memoryTier) evict() {
	now := time.Now()
	for key, entry := range m.items {
		if !entry.Fresh(now) {
			delete(m.items, key)
		}
	}

	if len(m.items) < m.maxItems {
		return
	}

	toRemove := m.maxItems / 10
	if toRemove < 1 {
		toRemove = 1
	}

	var oldest []string
	var oldestTimes []time.Time

	for key, entry := range m.items {
		if len(oldest) < toRemove {
			oldest = append(oldest, key)
			oldestTimes = append(oldestTimes, entry.MemoryExpiresAt)
			continue
		}
		for i, t := range oldestTimes {
			if entry.MemoryExpiresAt.Before(t) {
				oldest[i] = key
				oldestTimes[i] = entry.MemoryExpiresAt
				break
			}
		}
	}

	for _, key := range oldest {
		delete(m.items, key)
	}
}

// cleanup periodically removes expired entries.
func (m *memoryTier) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for key, entry := range m.items {
				if !entry.Fresh(now) {
					delete(m.items, key)
				}
			}
			m.mu.Unlock()
		}
	}
}
