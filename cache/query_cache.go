package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/huykn/live-sync/logging"
)

// entry is the bookkeeping for one cached query. The data itself lives in
// the local cache under key.ID().
type entry struct {
	key       Key
	stale     bool
	version   uint64 // bumped by every invalidation
	observers int
	fetcher   Fetcher
	updatedAt time.Time
	err       error
}

// QueryCache is a keyed cache of server reads. Entries are invalidated by key
// prefix; observed entries are refetched in the background, with concurrent
// refetches of one key coalesced into a single call.
type QueryCache struct {
	local   LocalCache
	logger  Logger
	options Options
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	gen     uint64

	listenersMu sync.RWMutex
	listeners   map[int]func(Key)
	nextID      int

	closed int32
	stats  Stats
	wg     sync.WaitGroup
}

// New creates a new QueryCache instance.
func New(opts Options) (*QueryCache, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Set defaults for optional fields
	if opts.LocalCacheFactory == nil {
		factory, err := FactoryFor(opts.LocalCachePolicy, opts.LocalCacheConfig)
		if err != nil {
			return nil, err
		}
		opts.LocalCacheFactory = factory
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	qc := &QueryCache{
		logger:    opts.Logger,
		options:   opts,
		entries:   make(map[string]*entry),
		listeners: make(map[int]func(Key)),
	}

	local, err := opts.LocalCacheFactory.Create(qc.handleEvict)
	if err != nil {
		return nil, err
	}
	qc.local = local

	return qc, nil
}

// Get returns the cached data for key, stale or not.
func (qc *QueryCache) Get(key Key) (any, bool) {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return nil, false
	}
	value, found := qc.local.Get(key.ID())
	if found {
		atomic.AddInt64(&qc.stats.Hits, 1)
	} else {
		atomic.AddInt64(&qc.stats.Misses, 1)
	}
	return value, found
}

// Fetch returns fresh data for key, calling fetcher when the entry is
// missing or stale.
func (qc *QueryCache) Fetch(ctx context.Context, key Key, fetcher Fetcher) (any, error) {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return nil, ErrCacheClosed
	}

	qc.mu.Lock()
	e := qc.entryLocked(key)
	if e.fetcher == nil {
		e.fetcher = fetcher
	}
	stale, gen := e.stale, qc.gen
	qc.mu.Unlock()

	if !stale {
		if value, found := qc.Get(key); found {
			return value, nil
		}
	}

	return qc.load(ctx, key, fetcher, gen)
}

// Observer is a mounted consumer of one query. While at least one observer
// is open, invalidating the query refetches it.
type Observer struct {
	qc   *QueryCache
	key  Key
	once sync.Once
}

// Observe registers a consumer of key. The query is fetched in the
// background when it has no data yet or is stale.
func (qc *QueryCache) Observe(key Key, fetcher Fetcher) *Observer {
	o := &Observer{qc: qc, key: key.Clone()}
	if atomic.LoadInt32(&qc.closed) != 0 {
		return o
	}

	qc.mu.Lock()
	e := qc.entryLocked(key)
	e.observers++
	e.fetcher = fetcher
	needsFetch := e.stale
	qc.mu.Unlock()

	if _, found := qc.local.Get(key.ID()); !found {
		needsFetch = true
	}
	if needsFetch {
		qc.refetch(key)
	}
	return o
}

// Key returns the observed key.
func (o *Observer) Key() Key {
	return o.key
}

// Close unregisters the observer. It is safe to call more than once.
func (o *Observer) Close() {
	o.once.Do(func() {
		o.qc.mu.Lock()
		defer o.qc.mu.Unlock()
		if e, ok := o.qc.entries[o.key.ID()]; ok && e.observers > 0 {
			e.observers--
		}
	})
}

// Set stores value for key as fresh data and notifies subscribers.
func (qc *QueryCache) Set(key Key, value any) {
	if atomic.LoadInt32(&qc.closed) != 0 {
		return
	}

	qc.mu.Lock()
	e := qc.entryLocked(key)
	e.stale = false
	e.err = nil
	e.updatedAt = time.Now()
	qc.local.Set(key.ID(), value, 1)
	qc.mu.Unlock()

	qc.notify(key)
}

// Invalidate marks every entry whose key starts with one of prefixes as
// stale. All prefixes are applied under one lock, so a reader never sees a
// partially applied event. Observed entries are refetched in the background.
// Invalidating an entry whose refetch is in flight joins that refetch, which
// then leaves the entry stale and runs once more.
func (qc *QueryCache) Invalidate(prefixes ...Key) int {
	if atomic.LoadInt32(&qc.closed) != 0 || len(prefixes) == 0 {
		return 0
	}

	var refetch []Key
	marked := 0

	qc.mu.Lock()
	for _, e := range qc.entries {
		if !matchesAny(e.key, prefixes) {
			continue
		}
		e.stale = true
		e.version++
		marked++
		if e.observers > 0 && e.fetcher != nil {
			refetch = append(refetch, e.key)
		}
	}
	qc.mu.Unlock()

	atomic.AddInt64(&qc.stats.Invalidations, int64(marked))
	if qc.options.DebugMode {
		qc.logger.Debug("Invalidate: marked entries stale", "prefixes", prefixes, "marked", marked, "refetching", len(refetch))
	}

	for _, key := range refetch {
		qc.refetch(key)
	}
	return marked
}

// IsStale reports whether key has been invalidated since its last fetch.
// Unknown keys are stale.
func (qc *QueryCache) IsStale(key Key) bool {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e, ok := qc.entries[key.ID()]
	return !ok || e.stale
}

// Err returns the error of the last failed fetch of key, if any.
func (qc *QueryCache) Err(key Key) error {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if e, ok := qc.entries[key.ID()]; ok {
		return e.err
	}
	return nil
}

// Keys returns the keys of all entries matching prefix.
func (qc *QueryCache) Keys(prefix Key) []Key {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	var keys []Key
	for _, e := range qc.entries {
		if e.key.HasPrefix(prefix) {
			keys = append(keys, e.key.Clone())
		}
	}
	return keys
}

// Remove drops every entry matching prefix, data included. Subscribers are
// notified of each removed key.
func (qc *QueryCache) Remove(prefix Key) int {
	var removed []Key
	qc.mu.Lock()
	for id, e := range qc.entries {
		if e.key.HasPrefix(prefix) {
			delete(qc.entries, id)
			qc.local.Delete(id)
			removed = append(removed, e.key)
		}
	}
	qc.mu.Unlock()

	for _, key := range removed {
		qc.notify(key)
	}
	return len(removed)
}

// Clear drops all entries and notifies subscribers of each dropped key.
// Refetches started before Clear complete without writing into the cache.
func (qc *QueryCache) Clear() {
	qc.mu.Lock()
	qc.gen++
	dropped := make([]Key, 0, len(qc.entries))
	for _, e := range qc.entries {
		dropped = append(dropped, e.key)
	}
	qc.entries = make(map[string]*entry)
	qc.local.Clear()
	qc.mu.Unlock()

	if qc.options.DebugMode {
		qc.logger.Debug("Clear: dropped all entries", "entries", len(dropped))
	}
	for _, key := range dropped {
		qc.notify(key)
	}
}

// Subscribe registers fn to be called with the key of every entry whose data
// changed. The returned function unregisters it.
func (qc *QueryCache) Subscribe(fn func(Key)) func() {
	qc.listenersMu.Lock()
	id := qc.nextID
	qc.nextID++
	qc.listeners[id] = fn
	qc.listenersMu.Unlock()

	return func() {
		qc.listenersMu.Lock()
		delete(qc.listeners, id)
		qc.listenersMu.Unlock()
	}
}

// Stats returns cache statistics.
func (qc *QueryCache) Stats() Stats {
	qc.mu.Lock()
	entries := int64(len(qc.entries))
	qc.mu.Unlock()

	return Stats{
		Hits:          atomic.LoadInt64(&qc.stats.Hits),
		Misses:        atomic.LoadInt64(&qc.stats.Misses),
		Fetches:       atomic.LoadInt64(&qc.stats.Fetches),
		FetchErrors:   atomic.LoadInt64(&qc.stats.FetchErrors),
		Invalidations: atomic.LoadInt64(&qc.stats.Invalidations),
		Evictions:     qc.local.Metrics().Evictions,
		Entries:       entries,
	}
}

// Close waits for in-flight refetches and releases the local cache.
func (qc *QueryCache) Close() error {
	if !atomic.CompareAndSwapInt32(&qc.closed, 0, 1) {
		return nil
	}
	qc.wg.Wait()
	qc.local.Close()
	return nil
}

// Wait blocks until all background refetches started so far have finished.
func (qc *QueryCache) Wait() {
	qc.wg.Wait()
}

func (qc *QueryCache) entryLocked(key Key) *entry {
	id := key.ID()
	e, ok := qc.entries[id]
	if !ok {
		e = &entry{key: key.Clone(), stale: true}
		qc.entries[id] = e
	}
	return e
}

// refetch loads key in the background with the entry's current fetcher.
func (qc *QueryCache) refetch(key Key) {
	qc.mu.Lock()
	e, ok := qc.entries[key.ID()]
	var fetcher Fetcher
	if ok {
		fetcher = e.fetcher
	}
	gen := qc.gen
	qc.mu.Unlock()
	if fetcher == nil {
		return
	}

	qc.wg.Add(1)
	go func() {
		defer qc.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), qc.options.ContextTimeout)
		defer cancel()

		if _, err := qc.load(ctx, key, fetcher, gen); err != nil {
			if qc.options.OnError != nil {
				qc.options.OnError(key, err)
			}
			qc.logger.Warn("Refetch failed", "key", key.String(), "error", err)
		}
	}()
}

// load runs fetcher through the singleflight group and stores the result,
// unless the cache was cleared after gen was read. A result is only marked
// fresh when no invalidation reached the entry while fetcher ran; otherwise
// an observed entry is loaded again once the flight has ended.
func (qc *QueryCache) load(ctx context.Context, key Key, fetcher Fetcher, gen uint64) (any, error) {
	id := key.ID()
	flight := strconv.FormatUint(gen, 10) + "/" + id
	again := false

	value, err, shared := qc.group.Do(flight, func() (any, error) {
		atomic.AddInt64(&qc.stats.Fetches, 1)
		if qc.options.DebugMode {
			qc.logger.Debug("Fetch: loading", "key", key.String())
		}

		var version uint64
		qc.mu.Lock()
		if e, ok := qc.entries[id]; ok {
			version = e.version
		}
		qc.mu.Unlock()

		data, err := fetcher(ctx, key)

		qc.mu.Lock()
		if qc.gen != gen {
			qc.mu.Unlock()
			return data, err
		}
		e := qc.entryLocked(key)
		if err != nil {
			e.err = err
			qc.mu.Unlock()
			atomic.AddInt64(&qc.stats.FetchErrors, 1)
			return nil, err
		}
		if e.version == version {
			e.stale = false
		} else {
			again = e.observers > 0 && e.fetcher != nil
		}
		e.err = nil
		e.updatedAt = time.Now()
		qc.local.Set(id, data, 1)
		qc.mu.Unlock()

		qc.notify(key)
		return data, nil
	})

	if shared && qc.options.DebugMode {
		qc.logger.Debug("Fetch: joined in-flight load", "key", key.String())
	}
	// The flight is forgotten once Do returns, so this starts a new one.
	if again && atomic.LoadInt32(&qc.closed) == 0 {
		if qc.options.DebugMode {
			qc.logger.Debug("Fetch: invalidated while loading, refetching", "key", key.String())
		}
		qc.refetch(key)
	}
	return value, err
}

func (qc *QueryCache) notify(key Key) {
	qc.listenersMu.RLock()
	fns := make([]func(Key), 0, len(qc.listeners))
	for _, fn := range qc.listeners {
		fns = append(fns, fn)
	}
	qc.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
}

// handleEvict runs on the local cache's goroutine, possibly while mu is held
// by the caller that triggered the eviction, so the cleanup is deferred.
func (qc *QueryCache) handleEvict(id string) {
	go qc.forget(id)
}

// forget drops the metadata of an unobserved entry whose data is gone.
func (qc *QueryCache) forget(id string) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e, ok := qc.entries[id]
	if !ok || e.observers > 0 {
		return
	}
	if _, found := qc.local.Get(id); found {
		return
	}
	delete(qc.entries, id)
}

func matchesAny(key Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if key.HasPrefix(p) {
			return true
		}
	}
	return false
}
