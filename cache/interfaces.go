package cache

import (
	"context"

	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/types"
)

// Logger is an alias for logging.Logger.
type Logger = logging.Logger

// Key is an alias for types.Key.
type Key = types.Key

// Fetcher reads the current server state for key. It is the opaque REST call
// behind a query.
type Fetcher func(ctx context.Context, key Key) (any, error)

// EvictFunc is called by a LocalCache when it drops a value on its own.
type EvictFunc func(id string)

// LocalCache defines the interface for the in-process store holding query
// results, keyed by Key.ID().
type LocalCache interface {
	// Get retrieves a value from the local cache.
	Get(id string) (any, bool)

	// Set stores a value in the local cache.
	Set(id string, value any, cost int64) bool

	// Delete removes a value from the local cache.
	Delete(id string)

	// Clear removes all values from the local cache.
	Clear()

	// Close closes the local cache.
	Close()

	// Metrics returns cache metrics.
	Metrics() LocalCacheMetrics
}

// LocalCacheMetrics represents local cache metrics.
type LocalCacheMetrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// LocalCacheFactory defines the interface for creating local cache implementations.
type LocalCacheFactory interface {
	// Create creates a new local cache instance. onEvict may be nil.
	Create(onEvict EvictFunc) (LocalCache, error)
}

// Invalidator marks cached queries stale by key prefix.
type Invalidator interface {
	// Invalidate marks every entry matching any of prefixes as stale and
	// schedules a refetch for the observed ones. It returns the number of
	// entries marked.
	Invalidate(prefixes ...Key) int
}

// Stats represents query cache statistics.
type Stats struct {
	Hits          int64
	Misses        int64
	Fetches       int64
	FetchErrors   int64
	Invalidations int64
	Evictions     int64
	Entries       int64
}
