// Package credential holds the current auth token and notifies watchers when
// it changes. The connection manager follows a Store to decide when to open,
// replace and close the realtime connection.
package credential

import (
	"sync"
)

// Store exposes the current credential. An empty token is never present.
type Store interface {
	// Token returns the current token and whether one is present.
	Token() (string, bool)
	// Watch calls fn with every change of the credential until cancel is
	// called. Calls are serialized and made in change order.
	Watch(fn func(token string, present bool)) (cancel func())
}

// MemoryStore is an in-process Store. Watchers are only notified when the
// token actually changes.
type MemoryStore struct {
	notifyMu sync.Mutex
	mu       sync.Mutex
	token    string
	watchers map[int]func(string, bool)
	nextID   int
}

// NewMemoryStore creates a store holding token ("" = absent).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{
		token:    token,
		watchers: make(map[int]func(string, bool)),
	}
}

func (s *MemoryStore) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// Set stores token. Setting "" is the same as Clear.
func (s *MemoryStore) Set(token string) {
	// notifyMu keeps concurrent Sets reaching watchers in the order they were
	// applied; mu is released so watchers may read the store.
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if token == s.token {
		s.mu.Unlock()
		return
	}
	s.token = token
	fns := s.sortedWatchers()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(token, token != "")
	}
}

// Clear removes the credential.
func (s *MemoryStore) Clear() {
	s.Set("")
}

func (s *MemoryStore) Watch(fn func(string, bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

func (s *MemoryStore) sortedWatchers() []func(string, bool) {
	fns := make([]func(string, bool), 0, len(s.watchers))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.watchers[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
