package store

import (
	"strings"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
)

// ReplaceFolders applies a freshly fetched folder list: every folder is
// upserted and folders absent from the fetch are deleted, so a folder
// removed remotely does not linger in the mirror.
func (db *DB) ReplaceFolders(folders []Folder) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	keep := make([]any, 0, len(folders))
	for _, f := range folders {
		if _, err := tx.Exec(`
			INSERT INTO folders (id, name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
			f.ID, f.Name, now); err != nil {
			return err
		}
		keep = append(keep, f.ID)
	}

	if len(keep) == 0 {
		if _, err := tx.Exec(`DELETE FROM folders`); err != nil {
			return err
		}
	} else {
		q := `DELETE FROM folders WHERE id NOT IN (?` + strings.Repeat(",?", len(keep)-1) + `)`
		if _, err := tx.Exec(q, keep...); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	db.notify(bus.KindStoreFolders, "")
	return nil
}

// ListFolders returns all known folders ordered by id.
func (db *DB) ListFolders() ([]Folder, error) {
	rows, err := db.Query(`SELECT id, name FROM folders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var folders []Folder
	for rows.Next() {
		var f Folder
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}
