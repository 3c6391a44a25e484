package api

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// handleWebSocket upgrades the connection and streams every event the bus
// publishes for the requested chat (§6). One goroutine per connection reads
// off its Subscribe channel and writes frames in order; a second drains
// client pings/close frames so a dead TCP connection is noticed promptly —
// mirrors the teacher's pkg/events.ConnectionManager split between fan-out
// and read-pump.
func (s *Server) handleWebSocket(c *gin.Context) {
	chatID := c.Query("chatId")
	if chatID == "" {
		badRequest(c, errMissingChatID)
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.CloseNow()

	subID := uuid.New().String()
	frames, unsubscribe := s.bus.Subscribe(subID, chatID)
	defer unsubscribe()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go s.pumpClientReads(ctx, cancel, conn)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-frames:
			if !ok {
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, env.Frame)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}

// pumpClientReads discards inbound client frames (this protocol is
// server-push only) but notices a close or read error and cancels ctx so
// the write loop above exits instead of blocking forever on a dead peer.
func (s *Server) pumpClientReads(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
