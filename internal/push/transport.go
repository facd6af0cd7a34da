package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/dmelari/chatmirror/internal/bus"
	"github.com/dmelari/chatmirror/internal/remote"
	"github.com/dmelari/chatmirror/internal/status"
)

// ErrSendRejected is returned when the server nacks a send command.
var ErrSendRejected = errors.New("send rejected by server")

// Config holds transport connection settings.
type Config struct {
	URL                string
	Token              string
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
	AckTimeout         time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 10 * time.Second
	}
}

// Transport maintains the websocket connection to the push service. It
// decodes event envelopes onto the bus and carries outgoing send commands.
// It never touches the store: the router owns all persistence. A dropped
// connection only changes the state indicator; the engine re-syncs on
// reconnect at a higher layer.
type Transport struct {
	cfg     Config
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	cancel  context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
	acks map[string]chan ackPayload
}

// NewTransport creates a transport; call Start to connect.
func NewTransport(cfg Config, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *Transport {
	cfg.defaults()
	return &Transport{
		cfg:     cfg,
		bus:     b,
		machine: machine,
		logger:  logger,
		acks:    make(map[string]chan ackPayload),
	}
}

// Start runs the connect/read/reconnect loop in the background.
func (t *Transport) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.run(ctx)
}

// Stop tears down the connection and stops reconnecting.
func (t *Transport) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
}

func (t *Transport) run(ctx context.Context) {
	delay := t.cfg.ReconnectBaseDelay
	for {
		if ctx.Err() != nil {
			return
		}
		_ = t.machine.Transition(status.Connecting)

		conn, _, err := websocket.Dial(ctx, t.cfg.URL+"?token="+t.cfg.Token, nil)
		if err != nil {
			t.logger.Warn("push dial failed", zap.Error(err), zap.Duration("retry_in", delay))
			_ = t.machine.Transition(status.Reconnecting)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay = min(delay*2, t.cfg.ReconnectMaxDelay)
			continue
		}

		delay = t.cfg.ReconnectBaseDelay
		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()

		_ = t.machine.Transition(status.Ready)
		t.bus.Publish(bus.Event{Kind: bus.KindPushConnection, Payload: ConnectionEvent{Connected: true}})
		t.logger.Info("push connected")

		t.readLoop(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		_ = t.machine.Transition(status.Reconnecting)
		t.bus.Publish(bus.Event{Kind: bus.KindPushConnection, Payload: ConnectionEvent{Connected: false}})
		t.logger.Warn("push disconnected")
	}
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}
		t.dispatch(env)
	}
}

func (t *Transport) dispatch(env Envelope) {
	switch env.Type {
	case typeAck:
		var ack ackPayload
		if err := json.Unmarshal(env.Payload, &ack); err != nil {
			return
		}
		t.mu.Lock()
		ch := t.acks[ack.RequestID]
		delete(t.acks, ack.RequestID)
		t.mu.Unlock()
		if ch != nil {
			ch <- ack
		}
	case TypeNewMessage:
		var msg remote.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			t.logger.Warn("bad new-message payload", zap.Error(err))
			return
		}
		t.bus.Publish(bus.Event{
			Kind:    bus.KindPushMessage,
			Payload: MessageEvent{GroupID: env.ChatRef.GroupID, Message: msg},
		})
	case TypeSeen:
		t.bus.Publish(bus.Event{Kind: bus.KindPushSeen, Payload: SeenEvent{GroupID: env.ChatRef.GroupID}})
	case TypeTyping:
		t.bus.Publish(bus.Event{Kind: bus.KindPushTyping, Payload: TypingEvent{GroupID: env.ChatRef.GroupID}})
	case TypeUnseen:
		t.bus.Publish(bus.Event{Kind: bus.KindPushUnseen, Payload: UnseenEvent{GroupID: env.ChatRef.GroupID}})
	default:
		t.logger.Debug("unknown push event", zap.String("type", env.Type))
	}
}

// SendMessage issues a send-message command carrying the correlation token
// and waits for the server's ack. A nack or missing ack is an explicit
// send failure: the caller rolls back its optimistic state.
func (t *Transport) SendMessage(ctx context.Context, ref remote.ChatRef, text, token string, quote *remote.Quote) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("push transport not connected")
	}

	cmd := Command{
		Type:      "send-message",
		RequestID: uuid.NewString(),
		Payload: SendPayload{
			GroupID:     ref.GroupID,
			DBID:        ref.DBID,
			BroadcastID: ref.BroadcastID,
			Text:        text,
			Token:       token,
			Quote:       quote,
		},
	}

	ackCh := make(chan ackPayload, 1)
	t.mu.Lock()
	t.acks[cmd.RequestID] = ackCh
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.acks, cmd.RequestID)
		t.mu.Unlock()
	}()

	if err := wsjson.Write(ctx, conn, cmd); err != nil {
		return fmt.Errorf("write send command: %w", err)
	}

	select {
	case ack := <-ackCh:
		if !ack.OK {
			if ack.Error != "" {
				return fmt.Errorf("%w: %s", ErrSendRejected, ack.Error)
			}
			return ErrSendRejected
		}
		return nil
	case <-time.After(t.cfg.AckTimeout):
		return errors.New("send ack timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
