package counters

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/huykn/live-sync/cache"
	"github.com/huykn/live-sync/rules"
	"github.com/huykn/live-sync/types"
)

func TestCount(t *testing.T) {
	type summary struct{ Count int }

	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"nil", nil, 0},
		{"int", 3, 3},
		{"int64", int64(4), 4},
		{"float", float64(5), 5},
		{"number", json.Number("6"), 6},
		{"object", map[string]any{"count": float64(7)}, 7},
		{"object without count", map[string]any{"total": 1}, 0},
		{"list", []string{"a", "b"}, 2},
		{"any list", []any{1, 2, 3}, 3},
		{"struct", summary{Count: 8}, 8},
		{"pointer", &summary{Count: 9}, 9},
		{"raw number", json.RawMessage(`10`), 10},
		{"raw object", json.RawMessage(`{"count":11}`), 11},
		{"raw list", json.RawMessage(`[{},{}]`), 2},
		{"raw garbage", json.RawMessage(`{`), 0},
		{"uint", uint(12), 12},
		{"string", "13", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Count(tt.value); got != tt.want {
				t.Fatalf("Count(%v) = %d, want %d", tt.value, got, tt.want)
			}
		})
	}
}

func newCache(t *testing.T) *cache.QueryCache {
	t.Helper()
	opts := cache.DefaultOptions()
	opts.LocalCachePolicy = cache.PolicyLRU
	qc, err := cache.New(opts)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(func() { qc.Close() })
	return qc
}

func TestBadgesFromCache(t *testing.T) {
	qc := newCache(t)
	c := New(qc, nil)
	defer c.Close()

	if b := c.Badges(); b != (Badges{}) {
		t.Fatalf("Expected zero badges, got %+v", b)
	}

	qc.Set(rules.ChatUnreadCount(), 2)
	qc.Set(rules.NotificationCount(), map[string]any{"count": float64(5)})

	if b := c.Badges(); b.UnreadChats != 2 || b.UnreadNotifications != 5 {
		t.Fatalf("Unexpected badges: %+v", b)
	}
}

func TestOnChangeFiresOnlyWhenBadgesDiffer(t *testing.T) {
	qc := newCache(t)
	c := New(qc, nil)
	defer c.Close()

	var mu sync.Mutex
	var seen []Badges
	cancel := c.OnChange(func(b Badges) {
		mu.Lock()
		seen = append(seen, b)
		mu.Unlock()
	})
	defer cancel()

	qc.Set(rules.ChatUnreadCount(), 1)
	qc.Set(rules.ChatUnreadCount(), 1)
	qc.Set(rules.ChatList(), []string{"c1"})
	qc.Set(rules.NotificationCount(), 3)

	mu.Lock()
	defer mu.Unlock()
	want := []Badges{{UnreadChats: 1}, {UnreadChats: 1, UnreadNotifications: 3}}
	if len(seen) != len(want) {
		t.Fatalf("Expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, seen)
		}
	}
}

func TestBadgesFollowInvalidationRefetch(t *testing.T) {
	qc := newCache(t)
	c := New(qc, nil)
	defer c.Close()

	var mu sync.Mutex
	unread := 1
	observer := qc.Observe(rules.ChatUnreadCount(), func(ctx context.Context, key types.Key) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		return unread, nil
	})
	defer observer.Close()
	qc.Wait()

	changed := make(chan Badges, 4)
	cancel := c.OnChange(func(b Badges) { changed <- b })
	defer cancel()

	mu.Lock()
	unread = 4
	mu.Unlock()
	qc.Invalidate(rules.ChatUnreadCount())

	select {
	case b := <-changed:
		if b.UnreadChats != 4 {
			t.Fatalf("Expected 4 unread chats, got %d", b.UnreadChats)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Badges did not change after refetch")
	}
}

func TestCloseStopsFollowing(t *testing.T) {
	qc := newCache(t)
	c := New(qc, nil)

	calls := 0
	c.OnChange(func(Badges) { calls++ })
	c.Close()

	qc.Set(rules.ChatUnreadCount(), 9)
	if calls != 0 {
		t.Fatalf("Expected no callbacks after Close, got %d", calls)
	}
}
