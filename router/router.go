// Package router turns server-pushed events into cache invalidations.
package router

import (
	"encoding/json"
	"sync"

	"github.com/huykn/live-sync/connection"
	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/metrics"
	"github.com/huykn/live-sync/rules"
	"github.com/huykn/live-sync/types"
)

// Invalidator marks cached queries stale by key prefix. All prefixes of one
// call are applied together.
type Invalidator interface {
	Invalidate(prefixes ...types.Key) int
}

// Options configures a Router.
type Options struct {
	Logger    logging.Logger
	DebugMode bool
	Metrics   metrics.ClientMetrics
}

// Router binds a rule table to the current socket. Only events of the socket
// bound last reach the invalidator; handlers left on older sockets drop
// whatever they still receive.
type Router struct {
	table   rules.Table
	target  Invalidator
	logger  logging.Logger
	debug   bool
	metrics metrics.ClientMetrics

	mu      sync.RWMutex
	current string
}

// New creates a Router over table that invalidates target.
func New(table rules.Table, target Invalidator, opts Options) *Router {
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpClientMetrics{}
	}
	return &Router{
		table:   table,
		target:  target,
		logger:  logging.OrNoOp(opts.Logger),
		debug:   opts.DebugMode,
		metrics: opts.Metrics,
	}
}

// Bind registers one handler per event name on s and makes s current.
func (r *Router) Bind(s connection.Socket) {
	id := s.ID()
	for _, name := range r.table.Names() {
		name := name
		s.On(name, func(data json.RawMessage) {
			r.handle(id, name, data)
		})
	}

	r.mu.Lock()
	r.current = id
	r.mu.Unlock()

	if r.debug {
		r.logger.Debug("Router bound", "socket", id, "events", r.table.Names())
	}
}

// Unbind detaches the current socket. It waits for a dispatch in progress
// by taking the lock each handler holds while it runs, so no invalidation
// happens after it returns until the next Bind. It must not be called from
// an event handler, directly or through Manager.SetCredential.
func (r *Router) Unbind() {
	r.mu.Lock()
	id := r.current
	r.current = ""
	r.mu.Unlock()

	if r.debug && id != "" {
		r.logger.Debug("Router unbound", "socket", id)
	}
}

// Current returns the ID of the bound socket, or "".
func (r *Router) Current() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Dispatch applies the rule for name and returns the number of entries
// marked stale. Names without a rule are ignored.
func (r *Router) Dispatch(name string, data json.RawMessage) int {
	keys, ok := r.table.Evaluate(name, data)
	if !ok {
		r.metrics.EventIgnored(name)
		if r.debug {
			r.logger.Debug("Ignoring unknown event", "event", name)
		}
		return 0
	}

	r.metrics.EventReceived(name)
	marked := r.target.Invalidate(keys...)
	r.metrics.PrefixesInvalidated(name, len(keys))

	if r.debug {
		r.logger.Debug("Event routed", "event", name, "prefixes", keys, "marked", marked)
	}
	return marked
}

func (r *Router) handle(socketID, name string, data json.RawMessage) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if socketID != r.current {
		if r.debug {
			r.logger.Debug("Dropping event from detached socket", "socket", socketID, "event", name)
		}
		return
	}
	r.Dispatch(name, data)
}
