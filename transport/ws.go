package transport

import (
	"log/slog"
	"sync"
	"time"

	"chat-hub/domain/event"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 6 * 1024 * 1024 // text plus a base64 image
	sendBuffer     = 256
)

// Frame is the envelope every pushed event travels in.
type Frame struct {
	Type    event.Kind        `json:"type"`
	Payload event.DomainEvent `json:"payload"`
}

// ClientFrame is what a connected client may send upstream.
type ClientFrame struct {
	Type       string `json:"type"` // "send", "mark_read" or "mark_seen"
	ReceiverID string `json:"receiver_id,omitempty"`
	ChatType   string `json:"chat_type,omitempty"`
	Text       string `json:"text,omitempty"`
	Image      []byte `json:"image,omitempty"`
	PeerID     string `json:"peer_id,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
}

// wsConn adapts one websocket to the registry's Conn contract. Events go
// through a buffered channel drained by a single writer goroutine, so a slow
// client can never block the dispatcher.
type wsConn struct {
	userID string
	ws     *websocket.Conn
	send   chan event.DomainEvent
	done   chan struct{}
	once   sync.Once
	log    *slog.Logger
}

func newWSConn(userID string, ws *websocket.Conn, log *slog.Logger) *wsConn {
	return &wsConn{
		userID: userID,
		ws:     ws,
		send:   make(chan event.DomainEvent, sendBuffer),
		done:   make(chan struct{}),
		log:    log,
	}
}

// Enqueue hands an event to the writer without ever blocking.
// A full buffer drops the event for this connection only.
func (c *wsConn) Enqueue(e event.DomainEvent) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- e:
		return true
	default:
		return false
	}
}

func (c *wsConn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// writePump drains the send buffer towards the wire and keeps the
// connection alive with pings. It owns all writes on the socket.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case e := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(Frame{Type: e.EventKind(), Payload: e}); err != nil {
				c.log.Debug("Write failed, closing connection", "user_id", c.userID, "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
