package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// writeTimeout bounds how long a single frame write may block before the
// connection is considered dead.
const writeTimeout = 5 * time.Second

// ConnectionManager upgrades and drives WebSocket connections against the
// Bus. Each connection subscribes to exactly one chat (per §6, `/ws` takes a
// chatId) and its own goroutine drains that chat's Envelope channel in
// order, satisfying the §5 FIFO-per-subscriber ordering guarantee.
type ConnectionManager struct {
	bus *Bus
	log *slog.Logger
}

// NewConnectionManager constructs a manager bound to bus.
func NewConnectionManager(bus *Bus, log *slog.Logger) *ConnectionManager {
	if log == nil {
		log = slog.Default()
	}
	return &ConnectionManager{bus: bus, log: log}
}

// HandleConnection drives one WebSocket connection's lifetime: subscribes to
// chatID on the Bus, forwards every matching Envelope as a frame, and
// watches for the client closing the socket. Blocks until the connection
// ends.
func (m *ConnectionManager) HandleConnection(ctx context.Context, conn *websocket.Conn, chatID string) {
	connID := uuid.New().String()
	ch, unsubscribe := m.bus.Subscribe(connID, chatID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Reader goroutine: the client doesn't send meaningful frames on this
	// socket, but we must keep reading so a close frame or network error is
	// observed promptly and cancels delivery.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, env.Frame)
			writeCancel()
			if err != nil {
				m.log.Warn("events: write failed, closing connection", "chat_id", chatID, "error", err)
				return
			}
		}
	}
}
