package store

import (
	"database/sql"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
)

const messageColumns = `id, group_id, message_id, token, body, from_self, seen,
	sent_at, quoted_body, quoted_from_self`

const upsertMessageSQL = `
	INSERT INTO messages (group_id, message_id, body, from_self, seen, sent_at,
		quoted_body, quoted_from_self, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(group_id, message_id) WHERE message_id != 0 DO UPDATE SET
		body = excluded.body,
		seen = excluded.seen`

// UpsertMessage inserts or updates a server-confirmed message (idempotent
// on group_id + message_id). Provisional messages go through
// InsertProvisional instead.
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(upsertMessageSQL,
		m.GroupID, m.MessageID, m.Body, m.FromSelf, m.Seen, m.SentAt,
		m.QuotedBody, m.QuotedFromSelf, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreMessages, m.GroupID)
	return nil
}

// UpsertMessagePage applies one fetched message page in a transaction.
func (db *DB) UpsertMessagePage(groupID string, msgs []*Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(upsertMessageSQL,
			m.GroupID, m.MessageID, m.Body, m.FromSelf, m.Seen, m.SentAt,
			m.QuotedBody, m.QuotedFromSelf, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	db.notify(bus.KindStoreMessages, groupID)
	return nil
}

// InsertProvisional stores a local not-yet-confirmed send. The caller
// supplies a fresh correlation token; the unique token index rejects reuse.
func (db *DB) InsertProvisional(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (group_id, message_id, token, body, from_self, seen, sent_at,
			quoted_body, quoted_from_self, created_at)
		VALUES (?, 0, ?, ?, 1, 0, ?, ?, ?, ?)`,
		m.GroupID, m.Token, m.Body, m.SentAt, m.QuotedBody, m.QuotedFromSelf,
		time.Now().UnixMilli())
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreMessages, m.GroupID)
	return nil
}

// DeleteProvisional removes the provisional message carrying the token.
// Reconciliation paths race each other, so this is delete-if-exists:
// the first caller wins and later callers get found=false without error.
func (db *DB) DeleteProvisional(token string) (found bool, err error) {
	var groupID string
	err = db.QueryRow(`SELECT group_id FROM messages WHERE token = ? AND message_id = 0`, token).
		Scan(&groupID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res, err := db.Exec(`DELETE FROM messages WHERE token = ? AND message_id = 0`, token)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.notify(bus.KindStoreMessages, groupID)
	}
	return n > 0, nil
}

// ListMessages returns all messages of a chat ordered by sent_at ascending.
// Ordering is enforced here, not at insertion, so out-of-order arrival from
// concurrent backfill and live events is harmless.
func (db *DB) ListMessages(groupID string) ([]Message, error) {
	rows, err := db.Query(`SELECT `+messageColumns+` FROM messages
		WHERE group_id = ? ORDER BY sent_at ASC, id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.MessageID, &m.Token, &m.Body, &m.FromSelf,
			&m.Seen, &m.SentAt, &m.QuotedBody, &m.QuotedFromSelf); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of stored messages for a chat.
func (db *DB) CountMessages(groupID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE group_id = ?`, groupID).Scan(&n)
	return n, err
}

// FindEcho scans a chat for a server-confirmed self-sent message with the
// given body within the window (seconds) around sentAt. Used to match a
// provisional message when the server does not echo the token back. The
// closest match wins. Best-effort: identical texts sent close together can
// match the wrong row.
func (db *DB) FindEcho(groupID, body string, sentAt, window int64) (*Message, error) {
	var m Message
	err := db.QueryRow(`SELECT `+messageColumns+` FROM messages
		WHERE group_id = ? AND message_id != 0 AND from_self = 1 AND body = ?
			AND ABS(sent_at - ?) < ?
		ORDER BY ABS(sent_at - ?) ASC LIMIT 1`,
		groupID, body, sentAt, window, sentAt).
		Scan(&m.ID, &m.GroupID, &m.MessageID, &m.Token, &m.Body, &m.FromSelf,
			&m.Seen, &m.SentAt, &m.QuotedBody, &m.QuotedFromSelf)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkSeenBySelf flips seen on every self-sent unseen message of a chat,
// returning how many rows changed.
func (db *DB) MarkSeenBySelf(groupID string) (int64, error) {
	res, err := db.Exec(`UPDATE messages SET seen = 1
		WHERE group_id = ? AND from_self = 1 AND seen = 0`, groupID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		db.notify(bus.KindStoreMessages, groupID)
	}
	return n, nil
}

// DeleteMessage removes a server-confirmed message.
func (db *DB) DeleteMessage(groupID string, messageID int64) error {
	_, err := db.Exec(`DELETE FROM messages WHERE group_id = ? AND message_id = ? AND message_id != 0`,
		groupID, messageID)
	if err != nil {
		return err
	}
	db.notify(bus.KindStoreMessages, groupID)
	return nil
}
