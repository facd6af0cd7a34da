package counters

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/store"
)

func testStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakeCounters struct {
	mu    sync.Mutex
	value int
	calls int
}

func (f *fakeCounters) Counters(ctx context.Context) (*remote.Counters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &remote.Counters{Code: 1, Messenger: f.value}, nil
}

func seedUnread(t *testing.T, db *store.DB, counts map[string]int) {
	t.Helper()
	for g, n := range counts {
		if err := db.UpsertChat(&store.Chat{GroupID: g, Type: store.ChatTypeDirect, UnreadCount: n}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBadgeTakesLocalWhenHigher(t *testing.T) {
	db := testStore(t)
	seedUnread(t, db, map[string]int{"a": 2, "b": 4}) // local = 6
	m := NewManager(db, &fakeCounters{}, bus.New(), zap.NewNop(), time.Hour)
	m.remote = 4

	if got := m.Badge(); got != 6 {
		t.Errorf("badge = %d, want 6 (local wins)", got)
	}
}

func TestBadgeTakesRemoteWhenHigher(t *testing.T) {
	db := testStore(t)
	seedUnread(t, db, map[string]int{"a": 2, "b": 4}) // local = 6
	m := NewManager(db, &fakeCounters{}, bus.New(), zap.NewNop(), time.Hour)
	m.remote = 7

	if got := m.Badge(); got != 7 {
		t.Errorf("badge = %d, want 7 (remote wins)", got)
	}
}

func TestStartPollsAndPublishesBadge(t *testing.T) {
	db := testStore(t)
	api := &fakeCounters{value: 3}
	b := bus.New()
	badge, unsub := b.Subscribe(bus.KindBadgeChanged, 8)
	defer unsub()

	m := NewManager(db, api, b, zap.NewNop(), 20*time.Millisecond)
	m.Start(context.Background())
	defer m.Stop()

	select {
	case evt := <-badge:
		if n, ok := evt.Payload.(int); !ok || n != 3 {
			t.Errorf("badge payload = %v, want 3", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no badge event after poll")
	}
}

func TestUnseenEventBumpsBadge(t *testing.T) {
	db := testStore(t)
	api := &fakeCounters{value: 2}
	b := bus.New()
	badge, unsub := b.Subscribe(bus.KindBadgeChanged, 8)
	defer unsub()

	m := NewManager(db, api, b, zap.NewNop(), time.Hour)
	m.Start(context.Background())
	defer m.Stop()

	// Initial poll lands 2.
	waitBadge(t, badge, 2)

	b.Publish(bus.Event{Kind: bus.KindPushUnseen, Payload: nil})
	waitBadge(t, badge, 3)
}

func TestSeenEventUnpinsStaleRemoteCounter(t *testing.T) {
	db := testStore(t)
	seedUnread(t, db, map[string]int{"a": 2, "b": 4}) // local = 6
	api := &fakeCounters{value: 7}
	b := bus.New()
	badge, unsub := b.Subscribe(bus.KindBadgeChanged, 8)
	defer unsub()

	m := NewManager(db, api, b, zap.NewNop(), time.Hour)
	m.Start(context.Background())
	defer m.Stop()

	// Initial poll pins the badge at the stale-high remote value.
	waitBadge(t, badge, 7)

	// A seen event only touches message rows; the resulting change
	// notification must recompute the raw counter from local state.
	b.Publish(bus.Event{Kind: bus.KindStoreMessages, Payload: "a"})
	waitBadge(t, badge, 6)
}

func waitBadge(t *testing.T, ch <-chan bus.Event, want int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if n, ok := evt.Payload.(int); ok && n == want {
				return
			}
		case <-deadline:
			t.Fatalf("badge %d never published", want)
		}
	}
}
