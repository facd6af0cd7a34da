package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

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

type fakeMessages struct {
	pages []*remote.MessagePage
	calls int
	err   error
}

func (f *fakeMessages) Messages(ctx context.Context, ref remote.ChatRef, cursor string) (*remote.MessagePage, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls - 1
	if i >= len(f.pages) {
		return &remote.MessagePage{Code: 1}, nil
	}
	return f.pages[i], nil
}

func messagePage(n, offset int, hasMore bool) *remote.MessagePage {
	p := &remote.MessagePage{Code: 1, HasMore: hasMore}
	if hasMore {
		p.NextCursor = fmt.Sprintf("c%d", offset+n)
	}
	for i := 0; i < n; i++ {
		p.Messages = append(p.Messages, remote.Message{
			MessageID: int64(offset + i + 1),
			Text:      fmt.Sprintf("msg %d", offset+i),
			Sender:    "other",
			Date2:     int64(1000 + offset + i),
		})
	}
	return p
}

func TestLoadFullBackfillSetsWatermark(t *testing.T) {
	db := testStore(t)
	api := &fakeMessages{pages: []*remote.MessagePage{
		messagePage(10, 0, true),
		messagePage(10, 10, true),
		messagePage(3, 20, false),
	}}
	l := NewLoader(db, api, bus.New(), zap.NewNop())
	chat := store.Chat{GroupID: "g1", Type: store.ChatTypeDirect}

	var progress []int
	if err := l.Load(context.Background(), chat, func(n int) { progress = append(progress, n) }); err != nil {
		t.Fatal(err)
	}

	if api.calls != 3 {
		t.Errorf("api calls = %d, want 3", api.calls)
	}
	if len(progress) != 3 || progress[2] != 23 {
		t.Errorf("progress = %v, want cumulative ending at 23", progress)
	}
	n, _ := db.CountMessages("g1")
	if n != 23 {
		t.Errorf("stored = %d, want 23", n)
	}
	meta, _ := db.GetChatMeta("g1")
	if meta.HistorySyncedAt == 0 {
		t.Error("watermark not set after full backfill")
	}
}

func TestLoadRefreshesWhenWatermarked(t *testing.T) {
	db := testStore(t)
	chat := store.Chat{GroupID: "g1", Type: store.ChatTypeDirect}

	// Simulate a previous full backfill.
	if err := db.UpsertMessage(&store.Message{GroupID: "g1", MessageID: 1, Body: "old", SentAt: 900}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetHistorySynced("g1", 1000); err != nil {
		t.Fatal(err)
	}

	api := &fakeMessages{pages: []*remote.MessagePage{messagePage(2, 5, false)}}
	l := NewLoader(db, api, bus.New(), zap.NewNop())

	if err := l.Load(context.Background(), chat, nil); err != nil {
		t.Fatal(err)
	}
	if api.calls != 1 {
		t.Errorf("api calls = %d, want 1 (latest page only)", api.calls)
	}
	n, _ := db.CountMessages("g1")
	if n != 3 {
		t.Errorf("stored = %d, want 3 (old + merged page)", n)
	}
}

func TestLoadBackfillsWhenWatermarkedButEmpty(t *testing.T) {
	db := testStore(t)
	chat := store.Chat{GroupID: "g1", Type: store.ChatTypeDirect}

	// Watermark without local rows (wiped cache): full walk again.
	if err := db.SetHistorySynced("g1", 1000); err != nil {
		t.Fatal(err)
	}
	api := &fakeMessages{pages: []*remote.MessagePage{
		messagePage(2, 0, true),
		messagePage(1, 2, false),
	}}
	l := NewLoader(db, api, bus.New(), zap.NewNop())

	if err := l.Load(context.Background(), chat, nil); err != nil {
		t.Fatal(err)
	}
	if api.calls != 2 {
		t.Errorf("api calls = %d, want 2 (full walk)", api.calls)
	}
}

func TestLoadBlockedChatPersistsFlag(t *testing.T) {
	db := testStore(t)
	chat := store.Chat{GroupID: "g1", Type: store.ChatTypeDirect}
	api := &fakeMessages{err: &remote.APIError{Code: 20, Message: "blocked"}}
	l := NewLoader(db, api, bus.New(), zap.NewNop())

	// Blocked is not an error to the caller.
	if err := l.Load(context.Background(), chat, nil); err != nil {
		t.Fatalf("blocked chat should not error, got %v", err)
	}
	meta, _ := db.GetChatMeta("g1")
	if !meta.Blocked {
		t.Error("blocked flag not persisted")
	}
	// No watermark: a later unblock retries the full backfill.
	if meta.HistorySyncedAt != 0 {
		t.Error("watermark must not be set for a blocked chat")
	}
}

func TestLoadNetworkErrorPropagates(t *testing.T) {
	db := testStore(t)
	chat := store.Chat{GroupID: "g1", Type: store.ChatTypeDirect}
	netErr := errors.New("connection reset")
	api := &fakeMessages{err: netErr}
	l := NewLoader(db, api, bus.New(), zap.NewNop())

	err := l.Load(context.Background(), chat, nil)
	if !errors.Is(err, netErr) {
		t.Errorf("err = %v, want wrapped network error", err)
	}
}

func TestRefreshLatestMergesIdempotently(t *testing.T) {
	db := testStore(t)
	chat := store.Chat{GroupID: "g1", Type: store.ChatTypeDirect}
	api := &fakeMessages{pages: []*remote.MessagePage{
		messagePage(3, 0, false),
		messagePage(3, 0, false),
	}}
	l := NewLoader(db, api, bus.New(), zap.NewNop())

	if err := l.RefreshLatest(context.Background(), chat); err != nil {
		t.Fatal(err)
	}
	if err := l.RefreshLatest(context.Background(), chat); err != nil {
		t.Fatal(err)
	}
	n, _ := db.CountMessages("g1")
	if n != 3 {
		t.Errorf("stored = %d, want 3 (refresh is idempotent)", n)
	}
}
