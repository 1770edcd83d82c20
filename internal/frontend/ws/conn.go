// Package ws is the WebSocket frontend: it upgrades HTTP requests,
// enforces the connect-first handshake, and pumps frames between the
// client and its gameplay session.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn wraps one WebSocket connection with a buffered outbound queue and
// a single writer goroutine. The websocket package allows one concurrent
// writer, so every outbound frame funnels through the queue.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	send         chan []byte
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(ws *websocket.Conn, bufferSize int, writeTimeout, pingPeriod time.Duration, logger *zap.Logger) *Conn {
	c := &Conn{
		ws:           ws,
		logger:       logger,
		send:         make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
	go c.writePump(pingPeriod)
	return c
}

// Enqueue queues one frame for delivery to the client, dropping it when
// the queue is full. Presence traffic tolerates loss; stalling the shared
// bus dispatcher on a slow client does not.
func (c *Conn) Enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Debug("dropping frame for slow client",
			zap.Int("queued", len(c.send)),
		)
	}
}

// writePump drains the outbound queue and keeps the connection alive with
// periodic pings until the connection closes.
func (c *Conn) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Close shuts the connection down. Safe to call more than once and from
// any goroutine; it unblocks both pumps.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}
