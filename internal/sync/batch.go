package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/store"
)

// ChatLoader backfills one chat's message history.
type ChatLoader interface {
	Load(ctx context.Context, chat store.Chat, onProgress func(count int)) error
}

// BackfillAll backfills history for every chat that has no watermark yet.
// The cancel flag is checked between chats, never mid-chat, so each chat
// either completes or is left for the next run. Returns how many chats
// completed; a per-chat failure is logged and skipped.
func (e *Engine) BackfillAll(ctx context.Context, loader ChatLoader, onChatDone func(groupID string)) (int, error) {
	e.batchCancel.Store(false)

	chats, err := e.db.ListUnsyncedChats()
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, chat := range chats {
		if e.batchCancel.Load() || ctx.Err() != nil {
			break
		}
		if err := loader.Load(ctx, chat, nil); err != nil {
			e.logger.Warn("backfill failed, skipping chat",
				zap.String("group_id", chat.GroupID), zap.Error(err))
			continue
		}
		completed++
		if onChatDone != nil {
			onChatDone(chat.GroupID)
		}
		e.bus.Publish(bus.Event{
			Kind:      bus.KindSyncBackfill,
			Timestamp: time.Now(),
			Payload:   BackfillProgress{GroupID: chat.GroupID, Completed: completed, Pending: len(chats)},
		})
	}
	return completed, ctx.Err()
}

// CancelBackfill requests a running BackfillAll to stop after the chat it
// is currently processing.
func (e *Engine) CancelBackfill() {
	e.batchCancel.Store(true)
}

// BackfillProgress is the payload of sync.backfill events.
type BackfillProgress struct {
	GroupID   string
	Completed int
	Pending   int
}
