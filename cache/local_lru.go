package cache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCacheFactory creates LRU cache instances.
type LRUCacheFactory struct {
	maxSize int
}

// NewLRUCacheFactory creates a new LRU cache factory.
func NewLRUCacheFactory(maxSize int) LocalCacheFactory {
	return &LRUCacheFactory{maxSize: maxSize}
}

// Create creates a new LRU cache instance.
func (lcf *LRUCacheFactory) Create(onEvict EvictFunc) (LocalCache, error) {
	return NewLRUCache(lcf.maxSize, onEvict)
}

// LRUCache is a local LRU cache implementation using golang-lru.
// golang-lru reports explicit removals through the same hook as capacity
// evictions, so onEvict sees both; only the latter are counted.
type LRUCache struct {
	cache     *lru.Cache[string, any]
	hits      int64
	misses    int64
	evictions int64
}

// NewLRUCache creates a new LRU-based local cache.
func NewLRUCache(maxSize int, onEvict EvictFunc) (*LRUCache, error) {
	var cache *lru.Cache[string, any]
	var err error
	if onEvict != nil {
		cache, err = lru.NewWithEvict[string, any](maxSize, func(id string, _ any) {
			onEvict(id)
		})
	} else {
		cache, err = lru.New[string, any](maxSize)
	}
	if err != nil {
		return nil, err
	}

	return &LRUCache{cache: cache}, nil
}

// Get retrieves a value from the local cache.
func (lc *LRUCache) Get(id string) (any, bool) {
	value, found := lc.cache.Get(id)
	if found {
		atomic.AddInt64(&lc.hits, 1)
	} else {
		atomic.AddInt64(&lc.misses, 1)
	}
	return value, found
}

// Set stores a value in the local cache.
func (lc *LRUCache) Set(id string, value any, cost int64) bool {
	if evicted := lc.cache.Add(id, value); evicted {
		atomic.AddInt64(&lc.evictions, 1)
	}
	return true
}

// Delete removes a value from the local cache.
func (lc *LRUCache) Delete(id string) {
	lc.cache.Remove(id)
}

// Clear removes all values from the local cache.
func (lc *LRUCache) Clear() {
	lc.cache.Purge()
}

// Close closes the local cache.
func (lc *LRUCache) Close() {
	lc.cache.Purge()
}

// Metrics returns cache metrics.
func (lc *LRUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&lc.hits),
		Misses:    atomic.LoadInt64(&lc.misses),
		Evictions: atomic.LoadInt64(&lc.evictions),
		Size:      int64(lc.cache.Len()),
	}
}
