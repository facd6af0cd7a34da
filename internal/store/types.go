package store

import "fmt"

// Chat types.
const (
	ChatTypeDirect    = "chat"
	ChatTypeBroadcast = "broadcast"
)

// Chat represents a mirrored conversation. GroupID is the identity; for
// broadcast chats it is the composite of the remote db id and broadcast id.
type Chat struct {
	GroupID       string
	DBID          int64
	BroadcastID   int64
	Type          string
	Title         string
	FolderID      int64
	Pinned        bool
	UnreadCount   int
	LastMessage   string
	LastMessageAt int64
	Archived      bool
}

// BroadcastGroupID builds the composite identity of a broadcast chat.
func BroadcastGroupID(dbID, broadcastID int64) string {
	return fmt.Sprintf("%d:%d", dbID, broadcastID)
}

// Folder is a user-defined chat grouping. Folder id 0 means inbox and is
// never stored as a folder row.
type Folder struct {
	ID   int64
	Name string
}

// Message represents one mirrored chat message, real or provisional.
// A provisional message has MessageID == 0 and a nonempty Token; a real
// message has a nonzero MessageID and no token. SentAt (epoch seconds) is
// the canonical ordering key.
type Message struct {
	ID             int64
	GroupID        string
	MessageID      int64
	Token          string
	Body           string
	FromSelf       bool
	Seen           bool
	SentAt         int64
	QuotedBody     string
	QuotedFromSelf bool
}

// Provisional reports whether the message is a not-yet-confirmed local send.
func (m *Message) Provisional() bool {
	return m.MessageID == 0 && m.Token != ""
}

// ChatMeta holds local-only flags that have no remote counterpart.
// HistorySyncedAt is the backfill watermark: nonzero once the chat's full
// history has been fetched at least once.
type ChatMeta struct {
	GroupID         string
	Blocked         bool
	HistorySyncedAt int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
