package livesync

import (
	"github.com/huykn/live-sync/cache"
	"github.com/huykn/live-sync/connection"
	"github.com/huykn/live-sync/counters"
	"github.com/huykn/live-sync/credential"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/rules"
	"github.com/huykn/live-sync/types"
)

// Logger is an alias for logging.Logger.
type Logger = logging.Logger

// Key is an alias for types.Key.
type Key = types.Key

// State is an alias for types.State.
type State = types.State

// Fetcher is an alias for cache.Fetcher.
type Fetcher = cache.Fetcher

// Stats is an alias for cache.Stats.
type Stats = cache.Stats

// LocalCache is an alias for cache.LocalCache.
type LocalCache = cache.LocalCache

// LocalCacheMetrics is an alias for cache.LocalCacheMetrics.
type LocalCacheMetrics = cache.LocalCacheMetrics

// LocalCacheFactory is an alias for cache.LocalCacheFactory.
type LocalCacheFactory = cache.LocalCacheFactory

// LocalCacheConfig is an alias for cache.LocalCacheConfig.
type LocalCacheConfig = cache.LocalCacheConfig

// Badges is an alias for counters.Badges.
type Badges = counters.Badges

// CredentialStore is an alias for credential.Store.
type CredentialStore = credential.Store

// Transport is an alias for connection.Transport.
type Transport = connection.Transport

// Socket is an alias for connection.Socket.
type Socket = connection.Socket

// RuleTable is an alias for rules.Table.
type RuleTable = rules.Table

// DefaultLocalCacheConfig returns default local cache configuration.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return cache.DefaultLocalCacheConfig()
}
