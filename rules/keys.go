package rules

import "github.com/huykn/live-sync/types"

// Query-key constructors. Screens build their cache keys with these so the
// rule table and the readers agree on the tuple layout.

func ChatDetails() types.Key { return types.K("chats", "detail") }
func ChatDetail(documentID string) types.Key { return types.K("chats", "detail", documentID) }
func ChatList() types.Key { return types.K("chats", "list") }
func ChatUnreadCount() types.Key { return types.K("chats", "unreadCount") }

func MessageLists() types.Key { return types.K("messages", "list") }
func MessageList(chatDocumentID string) types.Key { return types.K("messages", "list", chatDocumentID) }

func NotificationList() types.Key { return types.K("notifications", "list") }
func NotificationCount() types.Key { return types.K("notifications", "count") }

func UserDetails() types.Key { return types.K("users", "detail") }
func UserDetailMe() types.Key { return types.K("users", "detail", "me") }
func UserDetail(documentID string) types.Key { return types.K("users", "detail", documentID) }

func FriendList() types.Key { return types.K("friends", "list") }
func FollowingList() types.Key { return types.K("followings", "list") }
func FollowerList() types.Key { return types.K("followers", "list") }
