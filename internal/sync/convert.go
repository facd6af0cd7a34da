package sync

import (
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/store"
)

// chatFromRemote maps a wire chat onto the mirror schema. The wire carries
// no archived flag; membership in the archives scope is what marks a chat
// archived. Broadcast chats get their composite identity here.
func chatFromRemote(rc remote.Chat, scope remote.Scope) *store.Chat {
	groupID := rc.GroupID
	chatType := rc.Type
	if chatType == "" {
		chatType = store.ChatTypeDirect
	}
	if chatType == store.ChatTypeBroadcast {
		groupID = store.BroadcastGroupID(rc.DBID, rc.BroadcastID)
	}
	return &store.Chat{
		GroupID:       groupID,
		DBID:          rc.DBID,
		BroadcastID:   rc.BroadcastID,
		Type:          chatType,
		Title:         rc.Title,
		FolderID:      rc.FolderID,
		Pinned:        rc.Pinned,
		UnreadCount:   rc.UnreadCounter,
		LastMessage:   rc.LastMessage,
		LastMessageAt: rc.LastMessageAt,
		Archived:      scope.Kind == remote.ScopeArchives,
	}
}
