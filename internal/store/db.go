package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dmelari/chatmirror/internal/bus"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection holding the local mirror. Every mutation
// publishes a change notification on the bus so live queries can re-run;
// pass a nil bus to disable notifications.
type DB struct {
	*sql.DB
	bus *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, b *bus.Bus) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, bus: b}, nil
}

// notify publishes a store-change event. Payload is the affected chat's
// group id, or "" for table-wide changes.
func (db *DB) notify(kind, groupID string) {
	if db.bus == nil {
		return
	}
	db.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   groupID,
	})
}
