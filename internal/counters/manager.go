// Package counters derives unread counts from the mirror and reconciles
// them against the remote-reported counter.
package counters

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/store"
)

// API is the slice of the remote client the manager needs.
type API interface {
	Counters(ctx context.Context) (*remote.Counters, error)
}

// Manager tracks the raw remote counter alongside the locally summed
// unread counts. The remote counter has been observed to under-report, so
// the badge always takes the maximum of the two.
type Manager struct {
	db       *store.DB
	api      API
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration
	cancel   context.CancelFunc

	mu     sync.Mutex
	remote int
}

// NewManager creates a counters manager. interval <= 0 selects the 5
// minute production poll.
func NewManager(db *store.DB, api API, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Manager{
		db:       db,
		api:      api,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// FolderUnread sums unread counters over a folder's chats.
func (m *Manager) FolderUnread(folderID int64) (int, error) {
	return m.db.FolderUnread(folderID)
}

// InboxUnread sums unread counters over inbox chats.
func (m *Manager) InboxUnread() (int, error) {
	return m.db.InboxUnread()
}

// TotalUnread sums unread counters over all non-archived chats.
func (m *Manager) TotalUnread() (int, error) {
	return m.db.TotalUnread()
}

// Badge returns the messenger badge count: max(remote, local). The remote
// side sometimes lags behind the chats it has already delivered, and a
// badge that is too low reads as lost messages.
func (m *Manager) Badge() int {
	local, err := m.db.TotalUnread()
	if err != nil {
		m.logger.Error("badge local sum failed", zap.Error(err))
		local = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.remote > local {
		return m.remote
	}
	return local
}

// Start launches the poll loop and the push-driven adjustments: chat and
// message changes recompute the raw counter from local state, an unseen
// push event increments it directly. Message changes matter because a seen
// event only touches message rows, and a stale-high polled counter must
// unpin as soon as they land.
func (m *Manager) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	chats, unsubChats := m.bus.Subscribe(bus.KindStoreChats, 64)
	messages, unsubMessages := m.bus.Subscribe(bus.KindStoreMessages, 64)
	unseen, unsubUnseen := m.bus.Subscribe(bus.KindPushUnseen, 64)

	go func() {
		defer unsubChats()
		defer unsubMessages()
		defer unsubUnseen()

		m.refreshRemote(ctx)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.refreshRemote(ctx)
			case <-chats:
				m.recomputeFromStore()
			case <-messages:
				m.recomputeFromStore()
			case <-unseen:
				m.adjustRemote(1)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the poll loop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) refreshRemote(ctx context.Context) {
	c, err := m.api.Counters(ctx)
	if err != nil {
		m.logger.Warn("counter poll failed", zap.Error(err))
		return
	}
	m.setRemote(c.Messenger)
}

func (m *Manager) recomputeFromStore() {
	local, err := m.db.TotalUnread()
	if err != nil {
		m.logger.Error("recompute unread failed", zap.Error(err))
		return
	}
	m.setRemote(local)
}

func (m *Manager) adjustRemote(delta int) {
	m.mu.Lock()
	m.remote += delta
	m.mu.Unlock()
	m.publishBadge()
}

func (m *Manager) setRemote(v int) {
	m.mu.Lock()
	changed := m.remote != v
	m.remote = v
	m.mu.Unlock()
	if changed {
		m.publishBadge()
	}
}

func (m *Manager) publishBadge() {
	m.bus.Publish(bus.Event{Kind: bus.KindBadgeChanged, Payload: m.Badge()})
}
