package bus

import "time"

// Event is a domain event published on the bus. Kind uses dotted
// namespaces ("push.message", "store.chats", "sync.page") so subscribers
// can filter by prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the mirror core.
const (
	// Push transport events (one per remote event type).
	KindPushMessage    = "push.message"
	KindPushSeen       = "push.seen"
	KindPushTyping     = "push.typing"
	KindPushUnseen     = "push.unseen"
	KindPushConnection = "push.connection"

	// Store change notifications (live-query feed).
	KindStoreChats    = "store.chats"
	KindStoreFolders  = "store.folders"
	KindStoreMessages = "store.messages"

	// Sync progress.
	KindSyncPage     = "sync.page"
	KindSyncFolders  = "sync.folders"
	KindSyncBackfill = "sync.backfill"

	// Optimistic send lifecycle.
	KindSendResolved = "send.resolved"
	KindSendExpired  = "send.expired"
	KindSendFailed   = "send.failed"

	// Connection state machine.
	KindStatusChanged = "status.changed"

	// Badge counter updates.
	KindBadgeChanged = "counters.badge"
)
