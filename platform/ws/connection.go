package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

// ErrConnectionClosed is returned by SendMessage after the connection is torn down.
var ErrConnectionClosed = errors.New("ws: connection closed")

// Connection is one upgraded websocket client. All writes go through the
// buffered send channel so the write pump is the only goroutine touching the
// underlying socket for writes.
type Connection struct {
	id     uuid.UUID
	hub    *Hub
	socket *websocket.Conn
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnection(hub *Hub, socket *websocket.Conn) *Connection {
	return &Connection{
		id:     uuid.New(),
		hub:    hub,
		socket: socket,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// ID returns the server-assigned connection identity. The ingest module keys
// per-session state on this value.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// SendMessage queues a text frame for delivery. It never blocks indefinitely:
// a client that stops draining its socket gets disconnected rather than
// stalling the producing goroutine.
func (c *Connection) SendMessage(message []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	case c.send <- message:
		return nil
	case <-time.After(writeWait):
		c.Close()
		return ErrConnectionClosed
	}
}

// Close tears the connection down. Safe to call multiple times.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.socket.Close()
		c.hub.remove(c)
	})
	return nil
}

func (c *Connection) readPump() {
	defer c.Close()

	c.socket.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				if c.hub.opts.Logger != nil {
					c.hub.opts.Logger.Debug("websocket read error", "error", err)
				}
			}
			return
		}
		if c.hub.opts.OnMessage != nil {
			c.hub.opts.OnMessage(c, data)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
