package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/agentfleet/watchtower/pkg/config"
)

// ConnectionManager owns the WebSocket side of the subscriber protocol:
// one read loop per connection, one writer goroutine draining the
// subscriber's queue, and a server-driven ping/pong liveness check.
type ConnectionManager struct {
	b   *Broadcaster
	cfg config.StreamConfig
}

// NewConnectionManager creates a connection manager over b.
func NewConnectionManager(b *Broadcaster, cfg config.StreamConfig) *ConnectionManager {
	return &ConnectionManager{b: b, cfg: cfg}
}

// HandleConnection manages one accepted WebSocket connection. Called by
// the HTTP handler after upgrade; blocks until the connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sub := m.b.Register()
	defer m.b.Remove(sub)

	m.enqueueJSON(sub, WelcomeFrame{
		Type:         TypeWelcome,
		SubscriberID: sub.ID,
		Timestamp:    NowRFC3339(),
	})

	pong := make(chan struct{}, 1)
	go m.writeLoop(ctx, cancel, conn, sub)
	go m.pingLoop(ctx, sub, pong)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Invalid WebSocket message",
				"subscriber_id", sub.ID, "error", err)
			continue
		}
		m.handleClientMessage(sub, &msg, pong)
	}
}

// handleClientMessage dispatches one client frame.
func (m *ConnectionManager) handleClientMessage(sub *Subscriber, msg *ClientMessage, pong chan struct{}) {
	switch msg.Action {
	case ActionSubscribe:
		if len(msg.Topics) == 0 {
			m.enqueueJSON(sub, ControlFrame{
				Type:    TypeSubscriptionError,
				Message: "topics are required for subscribe",
			})
			return
		}
		for _, topic := range msg.Topics {
			m.b.Subscribe(sub, topic)
		}
		m.enqueueJSON(sub, ControlFrame{
			Type:   TypeSubscriptionConfirmed,
			Topics: msg.Topics,
		})

	case ActionUnsubscribe:
		for _, topic := range msg.Topics {
			m.b.Unsubscribe(sub, topic)
		}

	case ActionPong:
		select {
		case pong <- struct{}{}:
		default:
		}

	case ActionPing:
		m.enqueueJSON(sub, ControlFrame{Type: TypePong})
	}
}

// writeLoop drains the subscriber queue onto the wire. When the
// subscriber is removed it flushes whatever is still queued (including
// a terminal overflow or close frame) and closes the connection.
func (m *ConnectionManager) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sub *Subscriber) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-sub.Receive():
			if err := m.write(ctx, conn, data); err != nil {
				return
			}
		case <-sub.Done():
			for {
				select {
				case data := <-sub.Receive():
					if err := m.write(ctx, conn, data); err != nil {
						return
					}
				default:
					_ = conn.Close(websocket.StatusTryAgainLater, "disconnected by server")
					return
				}
			}
		}
	}
}

// pingLoop sends a ping every PingInterval and disconnects the
// subscriber when no pong arrives within the deadline.
func (m *ConnectionManager) pingLoop(ctx context.Context, sub *Subscriber, pong chan struct{}) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case <-pong:
			lastPong = time.Now()
		case <-ticker.C:
			if time.Since(lastPong) > m.cfg.PingInterval+m.cfg.PongDeadline {
				slog.Info("Subscriber missed pong deadline", "subscriber_id", sub.ID)
				m.enqueueJSON(sub, ControlFrame{
					Type:    TypeClose,
					Message: "pong deadline exceeded",
				})
				m.b.Remove(sub)
				return
			}
			m.enqueueJSON(sub, ControlFrame{Type: TypePing})
		}
	}
}

// enqueueJSON marshals and enqueues a frame. A full queue is left to
// the broadcaster's slow-consumer policy on the next publish.
func (m *ConnectionManager) enqueueJSON(sub *Subscriber, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket frame",
			"subscriber_id", sub.ID, "error", err)
		return
	}
	sub.enqueue(data)
}

// write sends one frame with the configured write timeout.
func (m *ConnectionManager) write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
