package cache

import (
	"errors"
	"time"
)

// Local cache eviction policies.
const (
	PolicyLFU = "lfu"
	PolicyLRU = "lru"
)

// LocalCacheConfig configures the local cache.
type LocalCacheConfig struct {
	// NumCounters is the number of counters for the cache (Ristretto only).
	// Recommended: 10 * MaxItems
	NumCounters int64

	// MaxCost is the maximum cost of items in the cache (Ristretto only).
	MaxCost int64

	// BufferItems is the number of items to buffer before eviction (Ristretto only).
	// Recommended: 64
	BufferItems int64

	// IgnoreInternalCost ignores the internal cost of items (Ristretto only).
	IgnoreInternalCost bool

	// MaxSize is the maximum number of items in the cache (LRU only).
	MaxSize int
}

// Options configures a QueryCache instance.
type Options struct {
	// LocalCacheConfig configures the local store.
	LocalCacheConfig LocalCacheConfig

	// LocalCachePolicy selects the built-in store ("lfu" or "lru") when
	// LocalCacheFactory is nil.
	LocalCachePolicy string

	// LocalCacheFactory overrides the built-in local store.
	LocalCacheFactory LocalCacheFactory

	// Logger is the logger for debug logging.
	// If nil, defaults to no-op logger.
	Logger Logger

	// DebugMode enables debug logging.
	DebugMode bool

	// ContextTimeout bounds each background refetch.
	ContextTimeout time.Duration

	// OnError is called when a background refetch fails.
	OnError func(key Key, err error)
}

// DefaultOptions returns default cache options.
func DefaultOptions() Options {
	return Options{
		LocalCacheConfig: DefaultLocalCacheConfig(),
		LocalCachePolicy: PolicyLFU,
		ContextTimeout:   10 * time.Second,
	}
}

// DefaultLocalCacheConfig returns default local cache configuration.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return LocalCacheConfig{
		NumCounters:        1e5,
		MaxCost:            1e4,
		BufferItems:        64,
		IgnoreInternalCost: true,
		MaxSize:            10000,
	}
}

// Validate validates the options.
func (o *Options) Validate() error {
	if o.ContextTimeout <= 0 {
		return ErrInvalidConfig
	}
	if o.LocalCacheFactory != nil {
		return nil
	}
	switch o.LocalCachePolicy {
	case PolicyLFU:
		if o.LocalCacheConfig.NumCounters <= 0 || o.LocalCacheConfig.MaxCost <= 0 {
			return ErrInvalidConfig
		}
	case PolicyLRU:
		if o.LocalCacheConfig.MaxSize <= 0 {
			return ErrInvalidConfig
		}
	default:
		return ErrInvalidConfig
	}
	return nil
}

// ErrInvalidConfig is returned when options are invalid.
var ErrInvalidConfig = errors.New("invalid cache configuration")

// ErrCacheClosed is returned when operations are performed on a closed cache.
var ErrCacheClosed = errors.New("cache is closed")
