package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/huykn/live-sync/logging"
	"github.com/huykn/live-sync/storage"
)

// DefaultKey is the storage key the credential is persisted under.
const DefaultKey = "credential"

// PersistentStore is a MemoryStore whose token survives restarts by writing
// through to a storage.Store.
type PersistentStore struct {
	*MemoryStore
	backend storage.Store
	key     string
	logger  logging.Logger
}

// NewPersistentStore loads the stored token, if any, from backend.
func NewPersistentStore(ctx context.Context, backend storage.Store, key string, logger logging.Logger) (*PersistentStore, error) {
	if key == "" {
		key = DefaultKey
	}
	token := ""
	data, err := backend.Get(ctx, key)
	switch {
	case err == nil:
		token = string(data)
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("load credential: %w", err)
	}

	return &PersistentStore{
		MemoryStore: NewMemoryStore(token),
		backend:     backend,
		key:         key,
		logger:      logging.OrNoOp(logger),
	}, nil
}

// Set persists token and then publishes it to watchers.
func (s *PersistentStore) Set(ctx context.Context, token string) error {
	var err error
	if token == "" {
		err = s.backend.Delete(ctx, s.key)
	} else {
		err = s.backend.Set(ctx, s.key, []byte(token))
	}
	if err != nil {
		s.logger.Error("Failed to persist credential", "error", err)
		return fmt.Errorf("persist credential: %w", err)
	}
	s.MemoryStore.Set(token)
	return nil
}

// Clear removes the persisted credential.
func (s *PersistentStore) Clear(ctx context.Context) error {
	return s.Set(ctx, "")
}
