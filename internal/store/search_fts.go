//go:build sqlite_fts5

package store

// ensureSearchIndex creates the FTS5 index over message bodies on first
// open. The index lives outside the migration chain so builds without the
// sqlite_fts5 tag share the same schema version.
func (db *DB) ensureSearchIndex() error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'messages_fts'`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	stmts := []string{
		`CREATE VIRTUAL TABLE messages_fts USING fts5(body, content='messages', content_rowid='id')`,
		`CREATE TRIGGER messages_fts_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(rowid, body) VALUES (new.id, new.body);
		END`,
		`CREATE TRIGGER messages_fts_ad AFTER DELETE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.id, old.body);
		END`,
		`CREATE TRIGGER messages_fts_au AFTER UPDATE ON messages BEGIN
			INSERT INTO messages_fts(messages_fts, rowid, body) VALUES ('delete', old.id, old.body);
			INSERT INTO messages_fts(rowid, body) VALUES (new.id, new.body);
		END`,
		`INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// SearchMessages performs a full-text search on message bodies.
func (db *DB) SearchMessages(query string, groupID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT m.id, m.group_id, m.message_id, m.token, m.body, m.from_self, m.seen,
		       m.sent_at, m.quoted_body, m.quoted_from_self,
		       snippet(messages_fts, 0, '<<', '>>', '...', 32)
		FROM messages_fts f
		JOIN messages m ON m.id = f.rowid
		WHERE messages_fts MATCH ?`

	args := []any{query}
	if groupID != "" {
		q += " AND m.group_id = ?"
		args = append(args, groupID)
	}
	q += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Message.ID, &r.Message.GroupID, &r.Message.MessageID, &r.Message.Token,
			&r.Message.Body, &r.Message.FromSelf, &r.Message.Seen, &r.Message.SentAt,
			&r.Message.QuotedBody, &r.Message.QuotedFromSelf, &r.Snippet,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
