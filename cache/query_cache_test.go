package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/huykn/live-sync/types"
)

func newTestCache(t *testing.T) *QueryCache {
	t.Helper()
	opts := DefaultOptions()
	opts.LocalCachePolicy = PolicyLRU
	opts.ContextTimeout = time.Second

	qc, err := New(opts)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(func() { qc.Close() })
	return qc
}

// countingFetcher returns a fetcher that counts calls and answers with the
// call number.
func countingFetcher(calls *int64) Fetcher {
	return func(ctx context.Context, key Key) (any, error) {
		return atomic.AddInt64(calls, 1), nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("Timeout waiting for condition")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewWithInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.ContextTimeout = 0
	if _, err := New(opts); err != ErrInvalidConfig {
		t.Fatalf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestFetchCachesUntilInvalidated(t *testing.T) {
	qc := newTestCache(t)
	ctx := context.Background()
	key := types.K("chats", "list")

	var calls int64
	fetcher := countingFetcher(&calls)

	for i := 0; i < 3; i++ {
		value, err := qc.Fetch(ctx, key, fetcher)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if value != int64(1) {
			t.Fatalf("Expected cached value 1, got %v", value)
		}
	}

	qc.Invalidate(types.K("chats"))
	if !qc.IsStale(key) {
		t.Fatal("Entry should be stale after invalidation")
	}

	// Stale data stays readable until the next fetch.
	if value, found := qc.Get(key); !found || value != int64(1) {
		t.Fatalf("Expected stale value 1, got %v", value)
	}

	value, err := qc.Fetch(ctx, key, fetcher)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if value != int64(2) {
		t.Fatalf("Expected refetched value 2, got %v", value)
	}
	if qc.IsStale(key) {
		t.Fatal("Entry should be fresh after fetch")
	}
}

func TestInvalidateMatchesByPrefix(t *testing.T) {
	qc := newTestCache(t)

	qc.Set(types.K("chats", "detail", "c1"), "c1")
	qc.Set(types.K("chats", "detail", "c2"), "c2")
	qc.Set(types.K("chats", "list"), "list")
	qc.Set(types.K("users", "detail", "me"), "me")

	marked := qc.Invalidate(types.K("chats", "detail"))
	if marked != 2 {
		t.Fatalf("Expected 2 entries marked, got %d", marked)
	}

	if !qc.IsStale(types.K("chats", "detail", "c1")) || !qc.IsStale(types.K("chats", "detail", "c2")) {
		t.Fatal("Chat details should be stale")
	}
	if qc.IsStale(types.K("chats", "list")) || qc.IsStale(types.K("users", "detail", "me")) {
		t.Fatal("Unrelated entries should stay fresh")
	}
}

func TestInvalidateSeveralPrefixesAtOnce(t *testing.T) {
	qc := newTestCache(t)

	qc.Set(types.K("notifications", "list"), 1)
	qc.Set(types.K("notifications", "count"), 1)
	qc.Set(types.K("chats", "list"), 1)

	marked := qc.Invalidate(types.K("notifications", "list"), types.K("notifications", "count"))
	if marked != 2 {
		t.Fatalf("Expected 2 entries marked, got %d", marked)
	}
	if got := qc.Stats().Invalidations; got != 2 {
		t.Fatalf("Expected 2 invalidations, got %d", got)
	}
}

func TestInvalidateRefetchesObservedEntriesOnly(t *testing.T) {
	qc := newTestCache(t)

	var observedCalls, idleCalls int64
	observer := qc.Observe(types.K("chats", "list"), countingFetcher(&observedCalls))
	defer observer.Close()

	if _, err := qc.Fetch(context.Background(), types.K("chats", "detail", "c1"), countingFetcher(&idleCalls)); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	qc.Wait()

	qc.Invalidate(types.K("chats"))
	qc.Wait()

	if got := atomic.LoadInt64(&observedCalls); got != 2 {
		t.Fatalf("Expected observed query fetched twice, got %d", got)
	}
	if got := atomic.LoadInt64(&idleCalls); got != 1 {
		t.Fatalf("Expected unobserved query not refetched, got %d calls", got)
	}
	if qc.IsStale(types.K("chats", "list")) {
		t.Fatal("Observed entry should be fresh after refetch")
	}
	if !qc.IsStale(types.K("chats", "detail", "c1")) {
		t.Fatal("Unobserved entry should stay stale")
	}
}

func TestObserverCloseStopsRefetch(t *testing.T) {
	qc := newTestCache(t)

	var calls int64
	observer := qc.Observe(types.K("friends", "list"), countingFetcher(&calls))
	qc.Wait()
	observer.Close()
	observer.Close()

	qc.Invalidate(types.K("friends"))
	qc.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("Expected 1 fetch, got %d", got)
	}
}

func TestRepeatedInvalidationCoalescesRefetch(t *testing.T) {
	qc := newTestCache(t)
	key := types.K("chats", "unreadCount")

	var calls int64
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var blockNext atomic.Bool

	observer := qc.Observe(key, func(ctx context.Context, key Key) (any, error) {
		n := atomic.AddInt64(&calls, 1)
		if blockNext.Load() {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		}
		return n, nil
	})
	defer observer.Close()
	qc.Wait()

	blockNext.Store(true)
	qc.Invalidate(key)
	<-started
	for i := 0; i < 4; i++ {
		qc.Invalidate(key)
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	qc.Wait()

	// The in-flight refetch absorbs the later invalidations and is followed
	// by exactly one more load.
	if got := atomic.LoadInt64(&calls); got != 3 {
		t.Fatalf("Expected 3 calls (initial, in-flight, one follow-up), got %d", got)
	}
	if value, _ := qc.Get(key); value != int64(3) {
		t.Fatalf("Expected value 3, got %v", value)
	}
	if qc.IsStale(key) {
		t.Fatal("Entry should be fresh after the follow-up refetch")
	}
}

func TestInvalidationDuringRefetchIsNotLost(t *testing.T) {
	qc := newTestCache(t)
	key := types.K("notifications", "count")

	var server, calls int64
	atomic.StoreInt64(&server, 1)
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var blockNext atomic.Bool

	observer := qc.Observe(key, func(ctx context.Context, key Key) (any, error) {
		atomic.AddInt64(&calls, 1)
		value := atomic.LoadInt64(&server)
		if blockNext.Load() {
			blockNext.Store(false)
			started <- struct{}{}
			<-release
		}
		return value, nil
	})
	defer observer.Close()
	qc.Wait()

	// The refetch reads the server before it changes and then stalls.
	blockNext.Store(true)
	qc.Invalidate(key)
	<-started

	atomic.StoreInt64(&server, 2)
	qc.Invalidate(key)
	time.Sleep(50 * time.Millisecond)
	close(release)
	qc.Wait()

	if value, _ := qc.Get(key); value != int64(2) {
		t.Fatalf("Expected value 2 after the server changed, got %v", value)
	}
	if qc.IsStale(key) {
		t.Fatal("Entry should be fresh once the latest data is loaded")
	}
	if got := atomic.LoadInt64(&calls); got < 3 {
		t.Fatalf("Expected at least 3 fetches, got %d", got)
	}
}

func TestInvalidationDuringFetchKeepsUnobservedEntryStale(t *testing.T) {
	qc := newTestCache(t)
	key := types.K("chats", "list")

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	qc.Set(key, "old")
	qc.Invalidate(key)
	go func() {
		defer close(done)
		_, _ = qc.Fetch(context.Background(), key, func(ctx context.Context, key Key) (any, error) {
			close(started)
			<-release
			return "stale-read", nil
		})
	}()

	<-started
	qc.Invalidate(key)
	close(release)
	<-done

	if value, _ := qc.Get(key); value != "stale-read" {
		t.Fatalf("Expected fetched value to be stored, got %v", value)
	}
	if !qc.IsStale(key) {
		t.Fatal("Entry invalidated during its fetch should stay stale")
	}
}

func TestRefetchFailureIsRecorded(t *testing.T) {
	var mu sync.Mutex
	var reported []error

	opts := DefaultOptions()
	opts.LocalCachePolicy = PolicyLRU
	opts.OnError = func(key Key, err error) {
		mu.Lock()
		reported = append(reported, err)
		mu.Unlock()
	}
	qc, err := New(opts)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer qc.Close()

	key := types.K("followers", "list")
	boom := errors.New("backend unavailable")
	fail := false
	observer := qc.Observe(key, func(ctx context.Context, key Key) (any, error) {
		if fail {
			return nil, boom
		}
		return []string{"u1"}, nil
	})
	defer observer.Close()
	qc.Wait()

	fail = true
	qc.Invalidate(key)
	qc.Wait()

	if !errors.Is(qc.Err(key), boom) {
		t.Fatalf("Expected recorded error, got %v", qc.Err(key))
	}
	if !qc.IsStale(key) {
		t.Fatal("Entry should stay stale after a failed refetch")
	}
	if value, found := qc.Get(key); !found || len(value.([]string)) != 1 {
		t.Fatalf("Previous data should survive a failed refetch, got %v", value)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 1 {
		t.Fatalf("Expected 1 reported error, got %d", len(reported))
	}
	if qc.Stats().FetchErrors != 1 {
		t.Fatalf("Expected 1 fetch error, got %d", qc.Stats().FetchErrors)
	}
}

func TestClearDropsInFlightResults(t *testing.T) {
	qc := newTestCache(t)
	key := types.K("users", "detail", "me")

	release := make(chan struct{})
	observer := qc.Observe(key, func(ctx context.Context, key Key) (any, error) {
		<-release
		return "old-session", nil
	})
	defer observer.Close()

	qc.Clear()
	close(release)
	qc.Wait()

	if _, found := qc.Get(key); found {
		t.Fatal("Result of a refetch started before Clear should be dropped")
	}
	if len(qc.Keys(types.Key{})) != 0 {
		t.Fatal("Cache should have no entries after Clear")
	}
}

func TestSubscribeNotifiesOnDataChange(t *testing.T) {
	qc := newTestCache(t)

	var mu sync.Mutex
	var changed []string
	cancel := qc.Subscribe(func(key Key) {
		mu.Lock()
		changed = append(changed, key.String())
		mu.Unlock()
	})

	qc.Set(types.K("chats", "unreadCount"), 3)

	var calls int64
	observer := qc.Observe(types.K("notifications", "count"), countingFetcher(&calls))
	defer observer.Close()
	qc.Wait()

	cancel()
	qc.Set(types.K("chats", "list"), nil)

	mu.Lock()
	defer mu.Unlock()
	if len(changed) != 2 || changed[0] != "chats:unreadCount" || changed[1] != "notifications:count" {
		t.Fatalf("Unexpected notifications: %v", changed)
	}
}

func TestRemoveAndKeys(t *testing.T) {
	qc := newTestCache(t)

	qc.Set(types.K("messages", "list", "c1"), 1)
	qc.Set(types.K("messages", "list", "c2"), 2)
	qc.Set(types.K("chats", "list"), 3)

	if got := len(qc.Keys(types.K("messages"))); got != 2 {
		t.Fatalf("Expected 2 message keys, got %d", got)
	}

	if removed := qc.Remove(types.K("messages", "list", "c1")); removed != 1 {
		t.Fatalf("Expected 1 removed, got %d", removed)
	}
	if _, found := qc.Get(types.K("messages", "list", "c1")); found {
		t.Fatal("Removed entry should have no data")
	}
	if _, found := qc.Get(types.K("messages", "list", "c2")); !found {
		t.Fatal("Sibling entry should survive")
	}
}

func TestClearAndRemoveNotifySubscribers(t *testing.T) {
	qc := newTestCache(t)

	qc.Set(types.K("chats", "unreadCount"), 3)
	qc.Set(types.K("messages", "list", "c1"), 1)
	qc.Set(types.K("notifications", "count"), 2)

	var mu sync.Mutex
	var changed []string
	cancel := qc.Subscribe(func(key Key) {
		mu.Lock()
		changed = append(changed, key.String())
		mu.Unlock()
	})
	defer cancel()

	qc.Remove(types.K("messages"))
	mu.Lock()
	if len(changed) != 1 || changed[0] != "messages:list:c1" {
		t.Fatalf("Expected removal notification, got %v", changed)
	}
	changed = nil
	mu.Unlock()

	qc.Clear()
	mu.Lock()
	defer mu.Unlock()
	sort.Strings(changed)
	if len(changed) != 2 || changed[0] != "chats:unreadCount" || changed[1] != "notifications:count" {
		t.Fatalf("Expected notifications for every cleared key, got %v", changed)
	}
}

func TestClosedCache(t *testing.T) {
	qc := newTestCache(t)
	qc.Close()

	if _, err := qc.Fetch(context.Background(), types.K("x"), countingFetcher(new(int64))); err != ErrCacheClosed {
		t.Fatalf("Expected ErrCacheClosed, got %v", err)
	}
	if marked := qc.Invalidate(types.K("x")); marked != 0 {
		t.Fatalf("Expected no invalidation on closed cache, got %d", marked)
	}
	if err := qc.Close(); err != nil {
		t.Fatalf("Second Close should be a no-op, got %v", err)
	}
}

func TestLFUBackedCache(t *testing.T) {
	qc, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	defer qc.Close()

	qc.Set(types.K("chats", "list"), []int{1, 2})
	value, found := qc.Get(types.K("chats", "list"))
	if !found || len(value.([]int)) != 2 {
		t.Fatalf("Expected stored list, got %v", value)
	}
}
