// Package search wraps chat search with supersede semantics: when queries
// overlap, only the most recently issued one may deliver results.
package search

import (
	"errors"
	"sync/atomic"

	"github.com/dmelari/chatmirror/internal/store"
)

// ErrSuperseded is returned when a newer query was issued while this one
// was running. Callers drop the result; the newer call owns the output.
var ErrSuperseded = errors.New("search superseded by newer query")

// Chats is the slice of the store the searcher needs.
type Chats interface {
	SearchChats(query string) ([]store.Chat, error)
}

// Searcher serializes the *output* of concurrent chat searches without
// serializing the searches themselves.
type Searcher struct {
	chats Chats
	gen   atomic.Uint64
}

// New creates a chat searcher.
func New(chats Chats) *Searcher {
	return &Searcher{chats: chats}
}

// Search runs the query. If another Search call starts before this one
// finishes, this one returns ErrSuperseded instead of stale results.
func (s *Searcher) Search(query string) ([]store.Chat, error) {
	gen := s.gen.Add(1)
	results, err := s.chats.SearchChats(query)
	if err != nil {
		return nil, err
	}
	if s.gen.Load() != gen {
		return nil, ErrSuperseded
	}
	return results, nil
}
