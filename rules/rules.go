// Package rules maps server-pushed events to the cache regions they make
// stale. Evaluation is pure: no I/O, no state, same output for the same input.
package rules

import (
	"encoding/json"
	"sort"

	"github.com/huykn/live-sync/types"
)

// Rule computes the cache-key prefixes to invalidate for one event payload.
type Rule func(data json.RawMessage) []types.Key

// Table maps exact event names to their rule.
type Table map[string]Rule

// Evaluate returns the prefixes for event name. ok is false when the table
// has no rule for name.
func (t Table) Evaluate(name string, data json.RawMessage) (keys []types.Key, ok bool) {
	rule, ok := t[name]
	if !ok {
		return nil, false
	}
	return rule(data), true
}

// Names returns the event names of the table in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns the catalog of events the backend pushes.
func Default() Table {
	return Table{
		types.EventMessage:         messageRule,
		types.EventNotification:    notificationRule,
		types.EventAddFriend:       friendRule,
		types.EventCancelFriend:    friendRule,
		types.EventUpdateFollowing: followingRule,
		types.EventUserStatus:      userStatusRule,
	}
}

func messageRule(data json.RawMessage) []types.Key {
	var p types.MessagePayload
	decode(data, &p)

	chatDetail, messages := ChatDetails(), MessageLists()
	if id := p.Chat.DocumentID; id != "" {
		chatDetail, messages = ChatDetail(id), MessageList(id)
	}
	return []types.Key{chatDetail, ChatList(), ChatUnreadCount(), messages}
}

// The payload is never inspected: the list and count are refetched wholesale.
func notificationRule(json.RawMessage) []types.Key {
	return []types.Key{NotificationList(), NotificationCount()}
}

func friendRule(data json.RawMessage) []types.Key {
	var p types.FriendPayload
	decode(data, &p)

	return []types.Key{UserDetailMe(), userDetail(p.Friend.DocumentID), FriendList(), FollowingList(), FollowerList()}
}

func followingRule(data json.RawMessage) []types.Key {
	var p types.FollowingPayload
	decode(data, &p)

	return []types.Key{UserDetailMe(), userDetail(p.Follower.DocumentID), FollowingList(), FollowerList()}
}

func userStatusRule(json.RawMessage) []types.Key {
	return []types.Key{UserDetailMe(), ChatList(), ChatDetails(), FollowingList(), FollowerList()}
}

// userDetail widens to every user detail when the id is unknown.
func userDetail(documentID string) types.Key {
	if documentID == "" {
		return UserDetails()
	}
	return UserDetail(documentID)
}

// decode leaves v zero-valued on empty or malformed input.
func decode(data json.RawMessage, v any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, v)
}
