package store

import (
	"database/sql"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
)

const chatColumns = `group_id, db_id, broadcast_id, chat_type, title, folder_id,
	pinned, unread_count, last_message, last_message_at, is_archived`

// upsertChatSQL takes the remote values wholesale except unread_count:
// a remote zero never clears a nonzero local counter, because only an
// explicit mark-read resets it.
const upsertChatSQL = `
	INSERT INTO chats (group_id, db_id, broadcast_id, chat_type, title, folder_id,
		pinned, unread_count, last_message, last_message_at, is_archived, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(group_id) DO UPDATE SET
		db_id = excluded.db_id,
		broadcast_id = excluded.broadcast_id,
		chat_type = excluded.chat_type,
		title = excluded.title,
		folder_id = excluded.folder_id,
		pinned = excluded.pinned,
		unread_count = CASE
			WHEN excluded.unread_count = 0 AND chats.unread_count > 0 THEN chats.unread_count
			ELSE excluded.unread_count
		END,
		last_message = excluded.last_message,
		last_message_at = excluded.last_message_at,
		is_archived = excluded.is_archived,
		updated_at = excluded.updated_at`

// UpsertChat inserts or updates a single chat record.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(upsertChatSQL,
		c.GroupID, c.DBID, c.BroadcastID, c.Type, c.Title, c.FolderID,
		c.Pinned, c.UnreadCount, c.LastMessage, c.LastMessageAt, c.Archived, now)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, c.GroupID)
	return nil
}

// UpsertChatPage applies one fetched chat-list page in a transaction.
// Re-applying the same page is a no-op (idempotent upsert by group_id).
func (db *DB) UpsertChatPage(chats []*Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range chats {
		if _, err := tx.Exec(upsertChatSQL,
			c.GroupID, c.DBID, c.BroadcastID, c.Type, c.Title, c.FolderID,
			c.Pinned, c.UnreadCount, c.LastMessage, c.LastMessageAt, c.Archived, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, "")
	return nil
}

// GetChat returns a single chat by group id, or nil if absent.
func (db *DB) GetChat(groupID string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE group_id = ?`, groupID).
		Scan(&c.GroupID, &c.DBID, &c.BroadcastID, &c.Type, &c.Title, &c.FolderID,
			&c.Pinned, &c.UnreadCount, &c.LastMessage, &c.LastMessageAt, &c.Archived)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) listChats(where string, args ...any) ([]Chat, error) {
	rows, err := db.Query(`SELECT `+chatColumns+` FROM chats WHERE `+where+`
		ORDER BY pinned DESC, last_message_at DESC`, args...)
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

// ListInboxChats returns non-archived chats outside any folder, pinned first.
func (db *DB) ListInboxChats() ([]Chat, error) {
	return db.listChats(`folder_id = 0 AND is_archived = 0`)
}

// ListFolderChats returns non-archived chats in the given folder.
func (db *DB) ListFolderChats(folderID int64) ([]Chat, error) {
	return db.listChats(`folder_id = ? AND is_archived = 0`, folderID)
}

// ListArchivedChats returns archived chats.
func (db *DB) ListArchivedChats() ([]Chat, error) {
	return db.listChats(`is_archived = 1`)
}

// SearchChats filters non-archived chats by title or last message text.
func (db *DB) SearchChats(query string) ([]Chat, error) {
	like := "%" + query + "%"
	return db.listChats(`is_archived = 0 AND (title LIKE ? OR last_message LIKE ?)`, like, like)
}

// MarkChatRead resets the unread counter to zero. This is the only path
// that clears it; sync upserts never do.
func (db *DB) MarkChatRead(groupID string) error {
	_, err := db.Exec(`UPDATE chats SET unread_count = 0, updated_at = ? WHERE group_id = ?`,
		time.Now().UnixMilli(), groupID)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// MarkChatUnread flags the chat unread without knowing the true count.
func (db *DB) MarkChatUnread(groupID string) error {
	_, err := db.Exec(`UPDATE chats SET unread_count = MAX(unread_count, 1), updated_at = ?
		WHERE group_id = ?`, time.Now().UnixMilli(), groupID)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// SetChatPinned toggles the pinned flag.
func (db *DB) SetChatPinned(groupID string, pinned bool) error {
	_, err := db.Exec(`UPDATE chats SET pinned = ?, updated_at = ? WHERE group_id = ?`,
		pinned, time.Now().UnixMilli(), groupID)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// SetChatArchived toggles the archived flag. Archiving is an attribute
// change, never a row deletion.
func (db *DB) SetChatArchived(groupID string, archived bool) error {
	_, err := db.Exec(`UPDATE chats SET is_archived = ?, updated_at = ? WHERE group_id = ?`,
		archived, time.Now().UnixMilli(), groupID)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// BumpChat moves a chat to the top of its list with a new last message,
// creating the row if the chat was never synced. incrementUnread adds one
// to the unread counter (live message for an unfocused chat).
func (db *DB) BumpChat(groupID, preview string, at int64, incrementUnread bool) error {
	inc := 0
	if incrementUnread {
		inc = 1
	}
	_, err := db.Exec(`
		INSERT INTO chats (group_id, last_message, last_message_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			last_message = excluded.last_message,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			unread_count = chats.unread_count + ?,
			updated_at = excluded.updated_at`,
		groupID, preview, at, inc, time.Now().UnixMilli(), inc)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// RestoreChatOrdering puts back a chat's pre-bump last message fields after
// a failed optimistic send.
func (db *DB) RestoreChatOrdering(groupID, preview string, at int64) error {
	_, err := db.Exec(`UPDATE chats SET last_message = ?, last_message_at = ?, updated_at = ?
		WHERE group_id = ?`, preview, at, time.Now().UnixMilli(), groupID)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreChats, groupID)
	return nil
}

// FolderUnread sums unread counters over the folder's non-archived chats.
func (db *DB) FolderUnread(folderID int64) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM chats
		WHERE folder_id = ? AND is_archived = 0`, folderID).Scan(&n)
	return n, err
}

// InboxUnread sums unread counters over non-archived chats outside folders.
func (db *DB) InboxUnread() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM chats
		WHERE folder_id = 0 AND is_archived = 0`).Scan(&n)
	return n, err
}

// TotalUnread sums unread counters over all non-archived chats.
func (db *DB) TotalUnread() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COALESCE(SUM(unread_count), 0) FROM chats
		WHERE is_archived = 0`).Scan(&n)
	return n, err
}
