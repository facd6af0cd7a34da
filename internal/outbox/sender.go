// Package outbox implements optimistic message sending: the message is
// written to the store immediately as a provisional row, then reconciled
// against server confirmation.
package outbox

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/store"
)

// Transport carries the outgoing send over the push connection. The token
// is echoed back by the server in its new-message event when supported.
type Transport interface {
	SendMessage(ctx context.Context, ref remote.ChatRef, text, token string, quote *remote.Quote) error
}

// Uploader pushes media files and returns their server-side ids.
type Uploader interface {
	Upload(ctx context.Context, filename string, data io.Reader) (string, error)
}

// Refresher re-fetches a chat's newest message page, used by the fallback
// echo matcher when the server does not echo tokens.
type Refresher interface {
	RefreshLatest(ctx context.Context, chat store.Chat) error
}

// Media is one attachment to upload before sending.
type Media struct {
	Name string
	Data io.Reader
}

// Options tune the reconciliation timers. The defaults match production
// behavior; tests shorten them.
type Options struct {
	// EchoDelay is how long to wait before re-fetching the latest page
	// and matching the provisional by content.
	EchoDelay time.Duration
	// MatchWindow bounds |confirmed.sent_at - provisional.sent_at| for a
	// content match.
	MatchWindow time.Duration
	// Expiry removes a provisional that was never confirmed.
	Expiry time.Duration
}

func (o *Options) defaults() {
	if o.EchoDelay == 0 {
		o.EchoDelay = 1500 * time.Millisecond
	}
	if o.MatchWindow == 0 {
		o.MatchWindow = 30 * time.Second
	}
	if o.Expiry == 0 {
		o.Expiry = 30 * time.Second
	}
}

// Outbox tracks in-flight optimistic sends by correlation token. The
// persisted store is the single source of truth for message state; the
// pending map only holds timers and rollback bookkeeping.
type Outbox struct {
	db        *store.DB
	transport Transport
	uploader  Uploader
	refresher Refresher
	bus       *bus.Bus
	logger    *zap.Logger
	opts      Options

	mu      sync.Mutex
	pending map[string]*pendingSend
}

type pendingSend struct {
	token  string
	chat   store.Chat
	body   string
	sentAt int64

	echoTimer   *time.Timer
	expiryTimer *time.Timer
}

// New creates an outbox.
func New(db *store.DB, transport Transport, uploader Uploader, refresher Refresher,
	b *bus.Bus, logger *zap.Logger, opts Options) *Outbox {
	opts.defaults()
	return &Outbox{
		db:        db,
		transport: transport,
		uploader:  uploader,
		refresher: refresher,
		bus:       b,
		logger:    logger,
		opts:      opts,
		pending:   make(map[string]*pendingSend),
	}
}

// SendText sends a text message optimistically. The provisional message
// and chat reorder are visible before the transport call; a transport
// failure rolls both back and returns the error for user display.
func (o *Outbox) SendText(ctx context.Context, chat store.Chat, text string, quote *remote.Quote) error {
	return o.send(ctx, chat, text, quote)
}

// SendMedia uploads every attachment first, then sends the assembled media
// message through the optimistic flow. An upload failure aborts before any
// provisional message exists; known server messages are translated for
// display.
func (o *Outbox) SendMedia(ctx context.Context, chat store.Chat, files []Media, caption string) error {
	ids := make([]string, 0, len(files))
	for _, f := range files {
		id, err := o.uploader.Upload(ctx, f.Name, f.Data)
		if err != nil {
			o.logger.Warn("media upload failed", zap.String("file", f.Name), zap.Error(err))
			return remote.TranslateUploadError(err)
		}
		ids = append(ids, id)
	}
	return o.send(ctx, chat, FormatMediaBody(ids, caption), nil)
}

func (o *Outbox) send(ctx context.Context, chat store.Chat, body string, quote *remote.Quote) error {
	token := uuid.NewString()
	now := time.Now().Unix()

	msg := &store.Message{
		GroupID: chat.GroupID,
		Token:   token,
		Body:    body,
		SentAt:  now,
	}
	if quote != nil {
		msg.QuotedBody = quote.Text
		msg.QuotedFromSelf = quote.FromSelf
	}
	if err := o.db.InsertProvisional(msg); err != nil {
		return fmt.Errorf("insert provisional: %w", err)
	}
	if err := o.db.BumpChat(chat.GroupID, body, now, false); err != nil {
		return fmt.Errorf("bump chat: %w", err)
	}

	o.track(chat, token, body, now)

	ref := remote.RefFor(chat.Type, chat.GroupID, chat.DBID, chat.BroadcastID)
	if err := o.transport.SendMessage(ctx, ref, body, token, quote); err != nil {
		// Roll back the optimistic state; the caller surfaces the error.
		o.untrack(token)
		if _, delErr := o.db.DeleteProvisional(token); delErr != nil {
			o.logger.Error("rollback provisional failed", zap.Error(delErr))
		}
		if restoreErr := o.db.RestoreChatOrdering(chat.GroupID, chat.LastMessage, chat.LastMessageAt); restoreErr != nil {
			o.logger.Error("rollback chat ordering failed", zap.Error(restoreErr))
		}
		o.bus.Publish(bus.Event{
			Kind:    bus.KindSendFailed,
			Payload: SendFailure{GroupID: chat.GroupID, Token: token, Err: err.Error()},
		})
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (o *Outbox) track(chat store.Chat, token, body string, sentAt int64) {
	p := &pendingSend{
		token:  token,
		chat:   chat,
		body:   body,
		sentAt: sentAt,
	}
	p.echoTimer = time.AfterFunc(o.opts.EchoDelay, func() { o.tryEchoMatch(p) })
	p.expiryTimer = time.AfterFunc(o.opts.Expiry, func() { o.expire(token) })

	o.mu.Lock()
	o.pending[token] = p
	o.mu.Unlock()
}

// untrack removes and returns the pending entry, stopping its timers.
// Returns nil if the token was already resolved.
func (o *Outbox) untrack(token string) *pendingSend {
	o.mu.Lock()
	p := o.pending[token]
	delete(o.pending, token)
	o.mu.Unlock()
	if p != nil {
		p.echoTimer.Stop()
		p.expiryTimer.Stop()
	}
	return p
}

// Resolve confirms a provisional message: the push event (or echo match)
// carrying its token arrived, so the provisional row is deleted and the
// server-confirmed message takes its place. Safe to call from racing
// triggers; only the first deletion reports found.
func (o *Outbox) Resolve(token string) bool {
	o.untrack(token)
	found, err := o.db.DeleteProvisional(token)
	if err != nil {
		o.logger.Error("delete provisional failed", zap.String("token", token), zap.Error(err))
		return false
	}
	if found {
		o.bus.Publish(bus.Event{Kind: bus.KindSendResolved, Payload: token})
	}
	return found
}

// tryEchoMatch is the fallback for servers that do not echo tokens: after
// EchoDelay it re-fetches the chat's newest page and looks for a confirmed
// self-sent message with identical text close in time to the provisional.
func (o *Outbox) tryEchoMatch(p *pendingSend) {
	o.mu.Lock()
	_, stillPending := o.pending[p.token]
	o.mu.Unlock()
	if !stillPending {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if o.refresher != nil {
		if err := o.refresher.RefreshLatest(ctx, p.chat); err != nil {
			o.logger.Warn("echo refresh failed", zap.String("group_id", p.chat.GroupID), zap.Error(err))
		}
	}

	window := int64(o.opts.MatchWindow / time.Second)
	match, err := o.db.FindEcho(p.chat.GroupID, p.body, p.sentAt, window)
	if err != nil {
		o.logger.Error("echo match query failed", zap.Error(err))
		return
	}
	if match != nil {
		o.Resolve(p.token)
	}
}

// expire abandons a provisional that was never confirmed. The transport
// already surfaced any explicit failure to the user; an expiry without one
// is presumed lost and cleaned up silently.
func (o *Outbox) expire(token string) {
	o.mu.Lock()
	_, stillPending := o.pending[token]
	delete(o.pending, token)
	o.mu.Unlock()
	if !stillPending {
		return
	}

	found, err := o.db.DeleteProvisional(token)
	if err != nil {
		o.logger.Error("expire provisional failed", zap.String("token", token), zap.Error(err))
		return
	}
	if found {
		o.logger.Warn("provisional message expired unconfirmed", zap.String("token", token))
		o.bus.Publish(bus.Event{Kind: bus.KindSendExpired, Payload: token})
	}
}

// PendingCount reports in-flight sends, for tests and diagnostics.
func (o *Outbox) PendingCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// SendFailure is the payload of send.failed events.
type SendFailure struct {
	GroupID string
	Token   string
	Err     string
}
