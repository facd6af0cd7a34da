package search

import (
	"errors"
	"sync"
	"testing"

	"github.com/dmelari/chatmirror/internal/store"
)

// slowChats blocks the first SearchChats call until released, so a second
// query can overtake it.
type slowChats struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	entered chan struct{}
	err     error
}

func (s *slowChats) SearchChats(query string) ([]store.Chat, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first && s.entered != nil {
		close(s.entered)
	}
	if first && s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return []store.Chat{{GroupID: "g-" + query}}, nil
}

func TestSearchReturnsResults(t *testing.T) {
	s := New(&slowChats{})
	results, err := s.Search("alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].GroupID != "g-alice" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchSupersededByNewerQuery(t *testing.T) {
	chats := &slowChats{block: make(chan struct{}), entered: make(chan struct{})}
	s := New(chats)

	first := make(chan error, 1)
	go func() {
		_, err := s.Search("old")
		first <- err
	}()
	<-chats.entered

	// The newer query bumps the generation while the first is in flight.
	if _, err := s.Search("new"); err != nil {
		t.Fatalf("newest query failed: %v", err)
	}
	close(chats.block)
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first query err = %v, want ErrSuperseded", err)
	}
}

func TestSearchErrorPropagates(t *testing.T) {
	wantErr := errors.New("db closed")
	s := New(&slowChats{err: wantErr})
	_, err := s.Search("x")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}
