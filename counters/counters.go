// Package counters derives the unread badges shown in the UI from cached
// query results. Nothing here talks to the server: badges are recomputed
// from the cache whenever their source entries change.
package counters

import (
	"encoding/json"
	"reflect"
	"sync"

	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/rules"
	"github.com/huykn/live-sync/types"
)

// Source is a cache that can be read and watched for changes.
type Source interface {
	Get(key types.Key) (any, bool)
	Subscribe(fn func(types.Key)) (cancel func())
}

// Badges are the unread counters.
type Badges struct {
	UnreadChats         int `json:"unreadChats"`
	UnreadNotifications int `json:"unreadNotifications"`
}

// Counters keeps Badges in step with the cache.
type Counters struct {
	src    Source
	logger logging.Logger
	cancel func()

	mu        sync.Mutex
	last      Badges
	listeners map[int]func(Badges)
	nextID    int
}

// New creates Counters reading from src.
func New(src Source, logger logging.Logger) *Counters {
	c := &Counters{
		src:       src,
		logger:    logging.OrNoOp(logger),
		listeners: make(map[int]func(Badges)),
	}
	c.last = c.compute()
	c.cancel = src.Subscribe(c.handleChange)
	return c
}

// Badges returns the badges computed from the latest cached data.
func (c *Counters) Badges() Badges {
	return c.compute()
}

// OnChange registers fn, called with the new badges whenever they change.
func (c *Counters) OnChange(fn func(Badges)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops following the cache.
func (c *Counters) Close() {
	c.cancel()
}

func (c *Counters) handleChange(key types.Key) {
	if !key.Equal(rules.ChatUnreadCount()) && !key.Equal(rules.NotificationCount()) {
		return
	}

	next := c.compute()

	c.mu.Lock()
	if next == c.last {
		c.mu.Unlock()
		return
	}
	c.last = next
	fns := make([]func(Badges), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	c.logger.Debug("Badges changed", "unreadChats", next.UnreadChats, "unreadNotifications", next.UnreadNotifications)
	for _, fn := range fns {
		fn(next)
	}
}

func (c *Counters) compute() Badges {
	var b Badges
	if v, ok := c.src.Get(rules.ChatUnreadCount()); ok {
		b.UnreadChats = Count(v)
	}
	if v, ok := c.src.Get(rules.NotificationCount()); ok {
		b.UnreadNotifications = Count(v)
	}
	return b
}

// Count interprets a cached counter value. It accepts numbers, objects with
// a "count" field, lists (their length) and raw JSON of any of those.
// Anything else counts as zero.
func Count(v any) int {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return n
	case int64:
		return int(n)
	case int32:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case json.RawMessage:
		return countJSON(n)
	case []byte:
		return countJSON(n)
	case map[string]any:
		return Count(n["count"])
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len()
	case reflect.Pointer:
		if rv.IsNil() {
			return 0
		}
		return Count(rv.Elem().Interface())
	case reflect.Struct:
		if f := rv.FieldByName("Count"); f.IsValid() && f.CanInt() {
			return int(f.Int())
		}
	case reflect.Int8, reflect.Int16, reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Convert(reflect.TypeOf(int64(0))).Int())
	}
	return 0
}

func countJSON(data []byte) int {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return 0
	}
	return Count(v)
}
