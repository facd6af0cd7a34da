// Package router applies push events to the local mirror and feeds the
// optimistic-send reconciliation.
package router

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/push"
	"github.com/dmelari/chatmirror/internal/store"
)

// Resolver matches an echoed correlation token against a pending
// optimistic send.
type Resolver interface {
	Resolve(token string) bool
}

// Refresher re-fetches a chat's newest message page.
type Refresher interface {
	RefreshLatest(ctx context.Context, chat store.Chat) error
}

// Router consumes push events from the bus and mutates the store. It is
// the only writer for live events; the transport never touches storage.
type Router struct {
	db        *store.DB
	resolver  Resolver
	refresher Refresher
	bus       *bus.Bus
	logger    *zap.Logger
	typing    *TypingState
	cancel    context.CancelFunc

	activeMu sync.Mutex
	active   string
}

// New creates a router.
func New(db *store.DB, resolver Resolver, refresher Refresher,
	b *bus.Bus, logger *zap.Logger, typing *TypingState) *Router {
	return &Router{
		db:        db,
		resolver:  resolver,
		refresher: refresher,
		bus:       b,
		logger:    logger,
		typing:    typing,
	}
}

// SetActiveChat records which chat the UI has open. Live messages for the
// active chat trigger a background latest-page refresh and do not raise
// its unread counter.
func (r *Router) SetActiveChat(groupID string) {
	r.activeMu.Lock()
	r.active = groupID
	r.activeMu.Unlock()
}

// ActiveChat returns the currently open chat's group id, "" for none.
func (r *Router) ActiveChat() string {
	r.activeMu.Lock()
	defer r.activeMu.Unlock()
	return r.active
}

// Start subscribes to push events and processes them until Stop.
func (r *Router) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	ch, unsub := r.bus.Subscribe("push.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				r.handle(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts event processing.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Router) handle(ctx context.Context, evt bus.Event) {
	switch evt.Kind {
	case bus.KindPushMessage:
		if p, ok := evt.Payload.(push.MessageEvent); ok {
			r.handleMessage(ctx, p)
		}
	case bus.KindPushSeen:
		if p, ok := evt.Payload.(push.SeenEvent); ok {
			r.handleSeen(p)
		}
	case bus.KindPushTyping:
		if p, ok := evt.Payload.(push.TypingEvent); ok {
			r.typing.Touch(p.GroupID)
		}
	case bus.KindPushUnseen:
		if p, ok := evt.Payload.(push.UnseenEvent); ok {
			r.handleUnseen(p)
		}
	case bus.KindPushConnection:
		// Connection state only drives the UI indicator; the status
		// machine already published the transition.
	}
}

func (r *Router) handleMessage(ctx context.Context, p push.MessageEvent) {
	active := r.ActiveChat() == p.GroupID

	if p.Message.MessageID != 0 {
		msg := &store.Message{
			GroupID:   p.GroupID,
			MessageID: p.Message.MessageID,
			Body:      p.Message.Text,
			FromSelf:  p.Message.FromSelf(),
			Seen:      p.Message.Seen,
			SentAt:    p.Message.Date2,
		}
		if err := r.db.UpsertMessage(msg); err != nil {
			r.logger.Error("apply live message failed",
				zap.String("group_id", p.GroupID), zap.Error(err))
		}
	}

	incrementUnread := !p.Message.FromSelf() && !active
	if err := r.db.BumpChat(p.GroupID, truncate(p.Message.Text, 100), p.Message.Date2, incrementUnread); err != nil {
		r.logger.Error("bump chat failed", zap.String("group_id", p.GroupID), zap.Error(err))
	}

	if p.Message.Token != "" {
		r.resolver.Resolve(p.Message.Token)
	}

	if active && r.refresher != nil {
		chat, err := r.db.GetChat(p.GroupID)
		if err != nil || chat == nil {
			return
		}
		go func() {
			if err := r.refresher.RefreshLatest(ctx, *chat); err != nil {
				r.logger.Warn("active chat refresh failed",
					zap.String("group_id", p.GroupID), zap.Error(err))
			}
		}()
	}
}

func (r *Router) handleSeen(p push.SeenEvent) {
	n, err := r.db.MarkSeenBySelf(p.GroupID)
	if err != nil {
		r.logger.Error("mark seen failed", zap.String("group_id", p.GroupID), zap.Error(err))
		return
	}
	if n > 0 {
		r.logger.Debug("messages marked seen", zap.String("group_id", p.GroupID), zap.Int64("count", n))
	}
}

func (r *Router) handleUnseen(p push.UnseenEvent) {
	if p.GroupID == "" {
		return
	}
	if err := r.db.MarkChatUnread(p.GroupID); err != nil {
		r.logger.Error("mark unread failed", zap.String("group_id", p.GroupID), zap.Error(err))
	}
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen]
}
