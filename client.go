package livesync

import (
	"context"
	"sync"

	"github.com/huykn/live-sync/cache"
	"github.com/huykn/live-sync/connection"
	"github.com/huykn/live-sync/counters"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/router"
	"github.com/huykn/live-sync/types"
)

// Client keeps the query cache in sync with server-pushed events for the
// signed-in user.
type Client struct {
	logger   logging.Logger
	cache    *cache.QueryCache
	router   *router.Router
	manager  *connection.Manager
	counters *counters.Counters

	cancelState func()
	closeOnce   sync.Once
}

// Run follows store: it connects while a credential is present, reconnects
// on rotation and disconnects on logout, until ctx is done.
func (c *Client) Run(ctx context.Context, store CredentialStore) error {
	return c.manager.Run(ctx, store)
}

// SetCredential applies token directly ("" = signed out). Do not mix with
// Run.
func (c *Client) SetCredential(token string) {
	c.manager.SetCredential(token)
}

// Logout disconnects and drops every cached query.
func (c *Client) Logout() {
	c.manager.SetCredential("")
	c.cache.Clear()
}

// Cache returns the query cache.
func (c *Client) Cache() *cache.QueryCache {
	return c.cache
}

// Counters returns the unread badge projections.
func (c *Client) Counters() *counters.Counters {
	return c.counters
}

// State returns the connection state.
func (c *Client) State() State {
	return c.manager.State()
}

// OnStateChange registers fn for connection state transitions.
func (c *Client) OnStateChange(fn func(State)) func() {
	return c.manager.OnStateChange(fn)
}

// Stats returns query cache statistics.
func (c *Client) Stats() Stats {
	return c.cache.Stats()
}

// Close disconnects and releases the cache.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancelState()
		_ = c.manager.Close()
		c.counters.Close()
		err = c.cache.Close()
	})
	return err
}

// handleState clears the cache whenever the credential goes away, so a
// later session never reads the previous user's data.
func (c *Client) handleState(s types.State) {
	if s == types.StateNoCredential {
		c.cache.Clear()
		c.logger.Info("Signed out, query cache cleared")
	}
}
