package store

import "github.com/dmelari/chatmirror/internal/bus"

// GetChatMeta returns the local-only flags for a chat. A chat with no
// metadata row yields the zero value.
func (db *DB) GetChatMeta(groupID string) (*ChatMeta, error) {
	meta := &ChatMeta{GroupID: groupID}
	rows, err := db.Query(`SELECT is_blocked, history_synced_at FROM chat_metadata
		WHERE group_id = ?`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if rows.Next() {
		if err := rows.Scan(&meta.Blocked, &meta.HistorySyncedAt); err != nil {
			return nil, err
		}
	}
	return meta, rows.Err()
}

// SetBlocked persists the blocked flag reported by the remote service.
// Blocked is chat state, not an error: the loader calls this instead of
// failing when the messages endpoint reports the chat blocked.
func (db *DB) SetBlocked(groupID string, blocked bool) error {
	_, err := db.Exec(`
		INSERT INTO chat_metadata (group_id, is_blocked) VALUES (?, ?)
		ON CONFLICT(group_id) DO UPDATE SET is_blocked = excluded.is_blocked`,
		groupID, blocked)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// SetHistorySynced records the backfill watermark for a chat.
func (db *DB) SetHistorySynced(groupID string, at int64) error {
	_, err := db.Exec(`
		INSERT INTO chat_metadata (group_id, history_synced_at) VALUES (?, ?)
		ON CONFLICT(group_id) DO UPDATE SET history_synced_at = excluded.history_synced_at`,
		groupID, at)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// ListUnsyncedChats returns non-archived chats whose history has never been
// fully fetched, for the batch backfill operation.
func (db *DB) ListUnsyncedChats() ([]Chat, error) {
	rows, err := db.Query(`SELECT ` + chatColumns + ` FROM chats c
		WHERE c.is_archived = 0 AND NOT EXISTS (
			SELECT 1 FROM chat_metadata m
			WHERE m.group_id = c.group_id AND m.history_synced_at > 0)
		ORDER BY c.last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.GroupID, &c.DBID, &c.BroadcastID, &c.Type, &c.Title, &c.FolderID,
			&c.Pinned, &c.UnreadCount, &c.LastMessage, &c.LastMessageAt, &c.Archived); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
