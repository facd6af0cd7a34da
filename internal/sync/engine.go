// Package sync mirrors the remote chat and folder lists into the store,
// page by page. Each fetched page is committed before the next fetch so
// observers always see monotonically growing state.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/store"
)

// ErrSyncInProgress is returned when a sync for the same scope is already
// running.
var ErrSyncInProgress = errors.New("sync already in progress for scope")

// API is the slice of the remote client the engine needs.
type API interface {
	Chats(ctx context.Context, scope remote.Scope, cursor string) (*remote.ChatPage, error)
	Folders(ctx context.Context) (*remote.FolderList, error)
}

// Engine synchronizes chat lists and folders from the remote API into the
// store.
type Engine struct {
	db     *store.DB
	api    API
	bus    *bus.Bus
	logger *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool

	batchCancel atomic.Bool
}

// NewEngine creates a sync engine.
func NewEngine(db *store.DB, api API, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:       db,
		api:      api,
		bus:      b,
		logger:   logger,
		inFlight: make(map[string]bool),
	}
}

func (e *Engine) acquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[key] {
		return false
	}
	e.inFlight[key] = true
	return true
}

func (e *Engine) release(key string) {
	e.mu.Lock()
	delete(e.inFlight, key)
	e.mu.Unlock()
}

// SyncChats fetches the chat list for one scope page by page, committing
// each page before fetching the next. onPage (optional) receives the
// cumulative committed count after every page so callers can render
// partial results. A page failure aborts the scope but keeps committed
// pages; the caller reloads from the store either way.
func (e *Engine) SyncChats(ctx context.Context, scope remote.Scope, onPage func(total int)) error {
	key := scope.String()
	if !e.acquire(key) {
		return fmt.Errorf("%w: %s", ErrSyncInProgress, key)
	}
	defer e.release(key)

	cursor := ""
	total := 0
	for {
		page, err := e.api.Chats(ctx, scope, cursor)
		if err != nil {
			return fmt.Errorf("fetch chats %s: %w", key, err)
		}

		chats := make([]*store.Chat, 0, len(page.Chats))
		for _, rc := range page.Chats {
			chats = append(chats, chatFromRemote(rc, scope))
		}
		if err := e.db.UpsertChatPage(chats); err != nil {
			return fmt.Errorf("commit chats page: %w", err)
		}
		total += len(chats)

		if onPage != nil {
			onPage(total)
		}
		e.bus.Publish(bus.Event{
			Kind:      bus.KindSyncPage,
			Timestamp: time.Now(),
			Payload:   PageCommitted{Scope: key, Total: total},
		})

		if page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

// SyncFolders replaces the folder set from a single non-paginated fetch.
// Folders missing from the response are deleted locally.
func (e *Engine) SyncFolders(ctx context.Context) error {
	list, err := e.api.Folders(ctx)
	if err != nil {
		return fmt.Errorf("fetch folders: %w", err)
	}
	folders := make([]store.Folder, 0, len(list.Folders))
	for _, f := range list.Folders {
		folders = append(folders, store.Folder{ID: f.ID, Name: f.Name})
	}
	if err := e.db.ReplaceFolders(folders); err != nil {
		return fmt.Errorf("replace folders: %w", err)
	}
	e.bus.Publish(bus.Event{Kind: bus.KindSyncFolders, Payload: len(folders)})
	return nil
}

// SyncAll sequences inbox, folders, every known folder, and archives.
// A failing scope does not stop the remaining scopes; the first error is
// still reported.
func (e *Engine) SyncAll(ctx context.Context, onPage func(total int)) error {
	var errs []error

	if err := e.SyncChats(ctx, remote.Inbox(), onPage); err != nil {
		errs = append(errs, err)
	}
	if err := e.SyncFolders(ctx); err != nil {
		errs = append(errs, err)
	}
	folders, err := e.db.ListFolders()
	if err != nil {
		errs = append(errs, err)
	}
	for _, f := range folders {
		if err := e.SyncChats(ctx, remote.Folder(f.ID), onPage); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.SyncChats(ctx, remote.Archives(), onPage); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		e.logger.Warn("sync all finished with errors", zap.Int("failed_scopes", len(errs)))
	}
	return errors.Join(errs...)
}

// PageCommitted is the payload of sync.page events.
type PageCommitted struct {
	Scope string
	Total int
}
