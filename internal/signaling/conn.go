package signaling

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roomloop/roomloop/internal/protocol"
)

// conn wraps one participant's WebSocket connection. All writes go through
// the send channel so a single goroutine owns the socket's write side.
type conn struct {
	ws   *websocket.Conn
	cfg  Config
	send chan *protocol.Message
	done chan struct{}
}

func newConn(ws *websocket.Conn, cfg Config) *conn {
	return &conn{
		ws:   ws,
		cfg:  cfg,
		send: make(chan *protocol.Message, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// TrySend implements room.Conn. It never blocks: when the buffer is full the
// message is dropped for this recipient only.
func (c *conn) TrySend(msg *protocol.Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// writePump owns the socket's write side: queued messages plus the ping
// ticker keeping the connection alive through proxies.
func (c *conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// closeWith sends a close frame from the read goroutine. writePump owns
// every other write on this socket, so the frame must go through
// WriteControl, the one write gorilla permits concurrently with the pump.
func (c *conn) closeWith(code int, reason string) {
	deadline := time.Now().Add(c.cfg.WriteWait)
	err := c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	if err != nil {
		slog.Debug("write close frame", "err", err)
	}
	c.ws.Close()
}
