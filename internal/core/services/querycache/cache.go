// Package querycache memoizes correlation results per platform identifier.
// Entries are scoped to a store generation: an entry computed against an older
// generation is never served and is evicted on the next lookup.
package querycache

import (
	"container/list"
	"sync"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

// Cache is a generation-scoped LRU of correlation results.
// A capacity of 0 means unbounded.
type Cache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	platformID string
	result     domain.CorrelationResult
}

// New creates a cache holding at most capacity platform identifiers.
func New(capacity int) *Cache {
	if capacity < 0 {
		capacity = 0
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached result for platformID if it was computed against generation.
func (c *Cache) Get(platformID string, generation uint64) (domain.CorrelationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[platformID]
	if !ok {
		telemetry.CacheLookups.WithLabelValues("miss").Inc()
		return domain.CorrelationResult{}, false
	}

	entry := elem.Value.(*cacheEntry)
	if entry.result.Generation != generation {
		// stale: computed before the last refresh
		c.lru.Remove(elem)
		delete(c.entries, platformID)
		telemetry.CacheLookups.WithLabelValues("stale").Inc()
		return domain.CorrelationResult{}, false
	}

	c.lru.MoveToFront(elem)
	telemetry.CacheLookups.WithLabelValues("hit").Inc()
	return entry.result, true
}

// Set stores result under its platform identifier and generation.
// Concurrent writers for the same key are last-write-wins.
func (c *Cache) Set(result domain.CorrelationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[result.PlatformID]; ok {
		c.lru.MoveToFront(elem)
		existing := elem.Value.(*cacheEntry)
		// never replace a newer generation with an older one
		if result.Generation >= existing.result.Generation {
			existing.result = result
		}
		return
	}

	elem := c.lru.PushFront(&cacheEntry{platformID: result.PlatformID, result: result})
	c.entries[result.PlatformID] = elem

	if c.capacity > 0 && c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).platformID)
		}
	}
}

// InvalidateAll drops every entry. Called once per completed refresh.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru = list.New()
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
