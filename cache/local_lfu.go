package cache

import (
	"sync/atomic"

	lfu "github.com/dgraph-io/ristretto"
)

// LFUCacheFactory creates Ristretto cache instances.
type LFUCacheFactory struct {
	config LocalCacheConfig
}

// NewLFUCacheFactory creates a new Ristretto cache factory.
func NewLFUCacheFactory(config LocalCacheConfig) LocalCacheFactory {
	return &LFUCacheFactory{config: config}
}

// Create creates a new Ristretto cache instance.
func (rcf *LFUCacheFactory) Create(onEvict EvictFunc) (LocalCache, error) {
	return NewLFUCache(rcf.config, onEvict)
}

// lfuItem keeps the string id next to the value: ristretto only hands
// key hashes to its eviction hook.
type lfuItem struct {
	id    string
	value any
}

// LFUCache is a local LFU cache implementation using ristretto.
type LFUCache struct {
	cache     *lfu.Cache
	hits      int64
	misses    int64
	evictions int64
}

// NewLFUCache creates a new Ristretto-based local cache.
func NewLFUCache(config LocalCacheConfig, onEvict EvictFunc) (*LFUCache, error) {
	rc := &LFUCache{}
	cache, err := lfu.NewCache(&lfu.Config{
		NumCounters:        config.NumCounters,
		MaxCost:            config.MaxCost,
		BufferItems:        config.BufferItems,
		IgnoreInternalCost: config.IgnoreInternalCost,
		OnEvict: func(item *lfu.Item) {
			atomic.AddInt64(&rc.evictions, 1)
			if it, ok := item.Value.(lfuItem); ok && onEvict != nil {
				onEvict(it.id)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	rc.cache = cache
	return rc, nil
}

// Get retrieves a value from the local cache.
func (rc *LFUCache) Get(id string) (any, bool) {
	value, found := rc.cache.Get(id)
	if !found {
		atomic.AddInt64(&rc.misses, 1)
		return nil, false
	}
	atomic.AddInt64(&rc.hits, 1)
	return value.(lfuItem).value, true
}

// Set stores a value and waits until it is visible to Get.
func (rc *LFUCache) Set(id string, value any, cost int64) bool {
	ok := rc.cache.Set(id, lfuItem{id: id, value: value}, cost)
	rc.cache.Wait()
	return ok
}

// Delete removes a value from the local cache.
func (rc *LFUCache) Delete(id string) {
	rc.cache.Del(id)
}

// Clear removes all values from the local cache.
func (rc *LFUCache) Clear() {
	rc.cache.Clear()
}

// Close closes the local cache.
func (rc *LFUCache) Close() {
	rc.cache.Close()
}

// Metrics returns cache metrics.
func (rc *LFUCache) Metrics() LocalCacheMetrics {
	return LocalCacheMetrics{
		Hits:      atomic.LoadInt64(&rc.hits),
		Misses:    atomic.LoadInt64(&rc.misses),
		Evictions: atomic.LoadInt64(&rc.evictions),
		Size:      rc.cache.MaxCost(),
	}
}
