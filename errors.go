package livesync

import (
	"github.com/huykn/live-sync/cache"
	"github.com/huykn/live-sync/connection"
	"github.com/huykn/live-sync/fanout"
	"github.com/huykn/live-sync/storage"
)

// ErrInvalidConfig is returned when the client configuration is invalid.
var ErrInvalidConfig = cache.ErrInvalidConfig

// ErrCacheClosed is returned when operations are performed on a closed cache.
var ErrCacheClosed = cache.ErrCacheClosed

// ErrNotFound is returned when a key is not found in storage.
var ErrNotFound = storage.ErrNotFound

// ErrHandshakeRejected is reported when the server refuses the credential.
var ErrHandshakeRejected = connection.ErrHandshakeRejected

// ErrUnauthorized is returned by the fanout authenticator.
var ErrUnauthorized = fanout.ErrUnauthorized
