// Package history backfills a single chat's message archive from the
// remote API and keeps it fresh after live events.
package history

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/store"
)

// API is the slice of the remote client the loader needs.
type API interface {
	Messages(ctx context.Context, ref remote.ChatRef, cursor string) (*remote.MessagePage, error)
}

// Loader fetches message pages and persists them. The watermark in
// chat_metadata decides between a one-time full backfill and a cheap
// latest-page refresh.
type Loader struct {
	db     *store.DB
	api    API
	bus    *bus.Bus
	logger *zap.Logger
}

// NewLoader creates a message history loader.
func NewLoader(db *store.DB, api API, b *bus.Bus, logger *zap.Logger) *Loader {
	return &Loader{db: db, api: api, bus: b, logger: logger}
}

// Load brings a chat's messages up to date. First open (no watermark, or
// an empty local history) walks every page, committing after each one and
// reporting progress so partial history renders immediately; the watermark
// is set only after the walk completes. Later opens refresh just the
// newest page.
//
// A blocked chat is not an error: the flag is persisted and the chat
// renders its blocked state.
func (l *Loader) Load(ctx context.Context, chat store.Chat, onProgress func(count int)) error {
	meta, err := l.db.GetChatMeta(chat.GroupID)
	if err != nil {
		return fmt.Errorf("read chat metadata: %w", err)
	}
	count, err := l.db.CountMessages(chat.GroupID)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}

	if meta.HistorySyncedAt != 0 && count > 0 {
		if err := l.RefreshLatest(ctx, chat); err != nil {
			return err
		}
		if onProgress != nil {
			onProgress(count)
		}
		return nil
	}

	ref := remote.RefFor(chat.Type, chat.GroupID, chat.DBID, chat.BroadcastID)
	cursor := ""
	total := 0
	for {
		page, err := l.api.Messages(ctx, ref, cursor)
		if err != nil {
			if remote.IsBlockedChat(err) {
				return l.markBlocked(chat.GroupID)
			}
			return fmt.Errorf("fetch messages: %w", err)
		}
		if err := l.commitPage(chat.GroupID, page.Messages); err != nil {
			return err
		}
		total += len(page.Messages)
		if onProgress != nil {
			onProgress(total)
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	if err := l.db.SetHistorySynced(chat.GroupID, time.Now().Unix()); err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	l.logger.Info("history backfilled",
		zap.String("group_id", chat.GroupID), zap.Int("messages", total))
	return nil
}

// RefreshLatest fetches and merges only the newest message page. Used
// after live events and by the optimistic-send echo matcher.
func (l *Loader) RefreshLatest(ctx context.Context, chat store.Chat) error {
	ref := remote.RefFor(chat.Type, chat.GroupID, chat.DBID, chat.BroadcastID)
	page, err := l.api.Messages(ctx, ref, "")
	if err != nil {
		if remote.IsBlockedChat(err) {
			return l.markBlocked(chat.GroupID)
		}
		return fmt.Errorf("refresh latest page: %w", err)
	}
	return l.commitPage(chat.GroupID, page.Messages)
}

func (l *Loader) commitPage(groupID string, msgs []remote.Message) error {
	stored := make([]*store.Message, 0, len(msgs))
	for _, rm := range msgs {
		stored = append(stored, messageFromRemote(groupID, rm))
	}
	if err := l.db.UpsertMessagePage(groupID, stored); err != nil {
		return fmt.Errorf("commit message page: %w", err)
	}
	return nil
}

func (l *Loader) markBlocked(groupID string) error {
	if err := l.db.SetBlocked(groupID, true); err != nil {
		return fmt.Errorf("persist blocked flag: %w", err)
	}
	l.logger.Info("chat reported blocked", zap.String("group_id", groupID))
	return nil
}

func messageFromRemote(groupID string, rm remote.Message) *store.Message {
	m := &store.Message{
		GroupID:   groupID,
		MessageID: rm.MessageID,
		Body:      rm.Text,
		FromSelf:  rm.FromSelf(),
		Seen:      rm.Seen,
		SentAt:    rm.Date2,
	}
	if rm.Quote != nil {
		m.QuotedBody = rm.Quote.Text
		m.QuotedFromSelf = rm.Quote.FromSelf
	}
	return m
}
