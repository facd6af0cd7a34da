package router

import (
	"sync"
	"time"
)

// TypingState is the ephemeral per-chat typing indicator. Entries decay
// after the TTL; nothing is persisted.
type TypingState struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]time.Time
}

// NewTypingState creates typing state with the given decay TTL.
func NewTypingState(ttl time.Duration) *TypingState {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &TypingState{ttl: ttl, m: make(map[string]time.Time)}
}

// Touch marks the chat's counterpart as typing now.
func (t *TypingState) Touch(groupID string) {
	t.mu.Lock()
	t.m[groupID] = time.Now()
	t.mu.Unlock()
}

// IsTyping reports whether the chat's counterpart typed within the TTL.
func (t *TypingState) IsTyping(groupID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.m[groupID]
	if !ok {
		return false
	}
	if time.Since(at) > t.ttl {
		delete(t.m, groupID)
		return false
	}
	return true
}
