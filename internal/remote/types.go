package remote

import "strconv"

// ScopeKind selects which chat list a sync targets.
type ScopeKind string

const (
	ScopeInbox    ScopeKind = "inbox"
	ScopeFolder   ScopeKind = "folder"
	ScopeArchives ScopeKind = "archives"
)

// Scope identifies one remote chat list (inbox, a folder, or archives).
type Scope struct {
	Kind     ScopeKind
	FolderID int64
}

func Inbox() Scope           { return Scope{Kind: ScopeInbox} }
func Folder(id int64) Scope  { return Scope{Kind: ScopeFolder, FolderID: id} }
func Archives() Scope        { return Scope{Kind: ScopeArchives} }

// String returns a stable key for the scope, used for sync guards.
func (s Scope) String() string {
	if s.Kind == ScopeFolder {
		return "folder:" + strconv.FormatInt(s.FolderID, 10)
	}
	return string(s.Kind)
}

// ChatRef addresses one chat on the remote service. Regular chats are
// addressed by group id; broadcast chats by db id + broadcast id.
type ChatRef struct {
	GroupID     string
	DBID        int64
	BroadcastID int64
	Broadcast   bool
}

// Chat is the wire shape of one chat-list entry.
type Chat struct {
	GroupID       string `json:"groupId"`
	DBID          int64  `json:"dbId"`
	BroadcastID   int64  `json:"broadcastId"`
	Type          string `json:"type"`
	Title         string `json:"title"`
	FolderID      int64  `json:"folderId"`
	Pinned        bool   `json:"pinned"`
	UnreadCounter int    `json:"unreadCounter"`
	LastMessage   string `json:"lastMessage"`
	LastMessageAt int64  `json:"lastMessageTime"`
}

// ChatPage is one page of the chat list.
type ChatPage struct {
	Code       int    `json:"code"`
	Chats      []Chat `json:"chats"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// FolderInfo is the wire shape of one folder.
type FolderInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FolderList is the non-paginated folder listing.
type FolderList struct {
	Code    int          `json:"code"`
	Folders []FolderInfo `json:"folders"`
}

// Quote is a back-reference to a quoted message, matched by content and
// sender since the protocol has no stable reply identifier.
type Quote struct {
	Text     string `json:"text"`
	FromSelf bool   `json:"fromSelf"`
}

// Message is the wire shape of one chat message. Date2 is epoch seconds
// and is the canonical ordering key. Token is echoed back only for sends
// issued with a correlation token.
type Message struct {
	MessageID int64  `json:"messageId"`
	Text      string `json:"text"`
	Sender    string `json:"sender"` // "self" | "other"
	Seen      bool   `json:"seen"`
	Date2     int64  `json:"date2"`
	Token     string `json:"token,omitempty"`
	Quote     *Quote `json:"quote,omitempty"`
}

// FromSelf reports whether the message was sent by the local user.
func (m *Message) FromSelf() bool { return m.Sender == "self" }

// MessagePage is one page of a chat's message history.
type MessagePage struct {
	Code       int       `json:"code"`
	Messages   []Message `json:"messages"`
	HasMore    bool      `json:"hasMore"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// Counters is the remote-reported unread counter snapshot.
type Counters struct {
	Code      int `json:"code"`
	Messenger int `json:"messenger"`
	Email     int `json:"email"`
}

type uploadResponse struct {
	Code    int    `json:"code"`
	MediaID string `json:"id"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error,omitempty"`
}

// RefFor builds the ChatRef for a mirrored chat identity. Broadcast chats
// are addressed by db id + broadcast id, everything else by group id.
func RefFor(chatType, groupID string, dbID, broadcastID int64) ChatRef {
	if chatType == "broadcast" {
		return ChatRef{DBID: dbID, BroadcastID: broadcastID, Broadcast: true}
	}
	return ChatRef{GroupID: groupID}
}
