// Package ws provides websocket connection infrastructure: a hub that owns
// connection registration, named channel membership, and per-connection
// read/write pumps. This is part of the platform layer and contains no
// business logic; protocol semantics live with the subscribing module.
package ws

import (
	"net/http"
	"sync"

	"dealerhub_backend/platform/logger"

	"github.com/gorilla/websocket"
)

// HubOptions configures a Hub.
type HubOptions struct {
	Logger      *logger.Logger
	CheckOrigin func(r *http.Request) bool
	// OnConnect runs after a successful upgrade. Returning an error closes
	// the connection before it joins any channel.
	OnConnect func(r *http.Request, hub *Hub, conn *Connection) error
	// OnDisconnect runs exactly once when the connection is torn down.
	OnDisconnect func(conn *Connection)
	// OnMessage receives every inbound text/binary frame.
	OnMessage func(conn *Connection, data []byte)
	// MaxMessageSize caps inbound frame size in bytes (default 1 MiB).
	MaxMessageSize int64
}

// Hub tracks live connections and their channel membership.
type Hub struct {
	opts     HubOptions
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	conns    map[*Connection]struct{}
	channels map[string]map[*Connection]struct{}
}

// NewHub creates a hub with the given options.
func NewHub(opts *HubOptions) *Hub {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		opts: *opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		conns:    make(map[*Connection]struct{}),
		channels: make(map[string]map[*Connection]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.opts.Logger != nil {
			h.opts.Logger.Warn("websocket upgrade failed", "error", err)
		}
		return
	}

	conn := newConnection(h, socket)

	if h.opts.OnConnect != nil {
		if err := h.opts.OnConnect(r, h, conn); err != nil {
			if h.opts.Logger != nil {
				h.opts.Logger.Warn("websocket connect rejected", "error", err)
			}
			_ = socket.Close()
			return
		}
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go conn.writePump()
	conn.readPump()
}

// JoinChannel adds the connection to a named channel.
func (h *Hub) JoinChannel(channel string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Connection]struct{})
		h.channels[channel] = members
	}
	members[conn] = struct{}{}
}

// LeaveChannel removes the connection from a named channel.
func (h *Hub) LeaveChannel(channel string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.channels[channel]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

// ConnectionsInChannel returns a snapshot of the channel's members.
func (h *Hub) ConnectionsInChannel(channel string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	members := h.channels[channel]
	out := make([]*Connection, 0, len(members))
	for conn := range members {
		out = append(out, conn)
	}
	return out
}

// BroadcastToChannel sends the message to every member of the channel.
func (h *Hub) BroadcastToChannel(channel string, message []byte) {
	for _, conn := range h.ConnectionsInChannel(channel) {
		_ = conn.SendMessage(message)
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	delete(h.conns, conn)
	for channel, members := range h.channels {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	h.mu.Unlock()

	if h.opts.OnDisconnect != nil {
		h.opts.OnDisconnect(conn)
	}
}
