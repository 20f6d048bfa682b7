package types

import (
	"encoding/json"
	"strings"
)

// Event names pushed by the server. Routing is by exact name match.
const (
	EventMessage         = "message"
	EventNotification    = "notification"
	EventAddFriend       = "addFriend"
	EventCancelFriend    = "cancelFriend"
	EventUpdateFollowing = "updateFollowing"
	EventUserStatus      = "userStatus"
)

// Transport-reserved frame names used during the connection handshake.
const (
	EventAuth          = "auth"
	EventAuthenticated = "authenticated"
	EventConnectError  = "connect_error"
)

// Key is an ordered tuple identifying a cached query result, e.g.
// ["chats", "detail", "c1"]. A Key used as a pattern matches every key it
// is a prefix of.
type Key []string

// K builds a Key from its parts.
func K(parts ...string) Key {
	return Key(parts)
}

// HasPrefix reports whether prefix matches k element by element.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, p := range prefix {
		if k[i] != p {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same elements.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// ID returns an unambiguous string form suitable as a map key.
func (k Key) ID() string {
	return strings.Join(k, "\x1f")
}

// String returns the colon-joined form used in logs.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Clone returns a copy that does not share the backing array.
func (k Key) Clone() Key {
	out := make(Key, len(k))
	copy(out, k)
	return out
}

// KeyFromID reverses Key.ID.
func KeyFromID(id string) Key {
	if id == "" {
		return Key{}
	}
	return Key(strings.Split(id, "\x1f"))
}

// Frame is the wire envelope of a named event: {"event": name, "data": payload}.
type Frame struct {
	Event string          `json:"event" msgpack:"event"`
	Data  json.RawMessage `json:"data,omitempty" msgpack:"data,omitempty"`
}

// NewFrame marshals payload as the data of a frame named event.
func NewFrame(event string, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: event, Data: data}, nil
}

// Delivery is a frame addressed to every live connection of one user.
type Delivery struct {
	UserID string `json:"userId" msgpack:"userId"`
	Sender string `json:"sender" msgpack:"sender"`
	Frame  Frame  `json:"frame" msgpack:"frame"`
}
