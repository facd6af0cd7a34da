//go:build !sqlite_fts5

package store

// Without the sqlite_fts5 build tag message search falls back to a LIKE
// scan; the snippet is the full body.
func (db *DB) ensureSearchIndex() error { return nil }

// SearchMessages filters message bodies by substring match.
func (db *DB) SearchMessages(query string, groupID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, group_id, message_id, token, body, from_self, seen,
		       sent_at, quoted_body, quoted_from_self
		FROM messages
		WHERE body LIKE ?`

	args := []any{"%" + query + "%"}
	if groupID != "" {
		q += " AND group_id = ?"
		args = append(args, groupID)
	}
	q += " ORDER BY sent_at DESC LIMIT ?"
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
			&r.Message.QuotedBody, &r.Message.QuotedFromSelf,
		); err != nil {
			return nil, err
		}
		r.Snippet = r.Message.Body
		results = append(results, r)
	}
	return results, rows.Err()
}
