package push

import (
	"encoding/json"

	"github.com/dmelari/chatmirror/internal/remote"
)

// Envelope is the wire format of every push event:
// {type, chatRef, payload}.
type Envelope struct {
	Type    string          `json:"type"`
	ChatRef ChatRefWire     `json:"chatRef"`
	Payload json.RawMessage `json:"payload"`
}

// ChatRefWire identifies the chat an event belongs to.
type ChatRefWire struct {
	GroupID string `json:"groupId"`
}

// Remote event types.
const (
	TypeNewMessage = "new-message"
	TypeSeen       = "seen"
	TypeTyping     = "typing"
	TypeUnseen     = "unseen"
	typeAck        = "ack"
)

// MessageEvent is the bus payload for an inbound new-message push event.
// Message.Token is set when the server echoes a correlation token.
type MessageEvent struct {
	GroupID string
	Message remote.Message
}

// SeenEvent signals the counterpart read the local user's messages.
type SeenEvent struct {
	GroupID string
}

// TypingEvent signals the counterpart is typing. Ephemeral, never persisted.
type TypingEvent struct {
	GroupID string
}

// UnseenEvent signals a chat somewhere became unread without a message body.
type UnseenEvent struct {
	GroupID string
}

// ConnectionEvent reports transport connectivity for the UI indicator.
type ConnectionEvent struct {
	Connected bool
}

// Command is a client-to-server request sent over the socket.
type Command struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Payload   any    `json:"payload"`
}

// SendPayload is the payload of a send-message command. Token travels to
// the server so its new-message echo can be correlated with the local
// provisional message.
type SendPayload struct {
	GroupID     string        `json:"groupId,omitempty"`
	DBID        int64         `json:"dbId,omitempty"`
	BroadcastID int64         `json:"broadcastId,omitempty"`
	Text        string        `json:"text"`
	Token       string        `json:"token,omitempty"`
	Quote       *remote.Quote `json:"quote,omitempty"`
}

type ackPayload struct {
	RequestID string `json:"requestId"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}
