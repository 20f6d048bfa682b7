package types

// DocumentRef references a CMS document by its document id.
type DocumentRef struct {
	DocumentID string `json:"documentId"`
}

// MessagePayload is the data of a "message" event.
type MessagePayload struct {
	Chat DocumentRef `json:"chat"`
}

// FriendPayload is the data of "addFriend" and "cancelFriend" events.
type FriendPayload struct {
	Friend DocumentRef `json:"friend"`
}

// FollowingPayload is the data of an "updateFollowing" event.
type FollowingPayload struct {
	Follower DocumentRef `json:"follower"`
}

// AuthPayload carries the credential in the handshake frame.
type AuthPayload struct {
	Token string `json:"token"`
}

// AuthenticatedPayload acknowledges a handshake.
type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload describes a rejected handshake.
type ErrorPayload struct {
	Message string `json:"message"`
}
