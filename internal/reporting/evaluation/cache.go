package evaluation

import "sync"

// Cache stores evaluated id-to-value lookups by cache key.
type Cache interface {
	Get(key string) (map[int]interface{}, bool)
	Put(key string, data map[int]interface{})
}

// MemoryCache is a Cache scoped to one report run.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]map[int]interface{}
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]map[int]interface{})}
}

func (m *MemoryCache) Get(key string) (map[int]interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.entries[key]
	return data, ok
}

func (m *MemoryCache) Put(key string, data map[int]interface{}) {
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
}

// Len returns the number of cached entries.
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
