package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSEvent is the envelope for all server-to-client messages.
type WSEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// ClientEvent is the envelope for client-to-server messages.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WSConn wraps one WebSocket connection with its identity, room
// membership, and canvas-resync flags.
type WSConn struct {
	conn     *websocket.Conn
	userID   string // empty until the handshake authenticated
	socketID string
	send     chan []byte

	mu    sync.Mutex
	rooms map[string]int64 // joined room code -> room id

	// resyncing suppresses live drawing_data for a room until the client
	// sends resync_done; canvasRequested enforces one snapshot request per
	// resume so overlapping triggers cannot storm the drawer.
	resyncing       map[string]bool
	canvasRequested map[string]bool
}

func newSocketID() string {
	b := make([]byte, 12)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func (c *WSConn) joinedRooms() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.rooms))
	for code, id := range c.rooms {
		out[code] = id
	}
	return out
}

func (c *WSConn) trackRoom(code string, id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[code] = id
}

func (c *WSConn) untrackRoom(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, code)
	delete(c.resyncing, code)
	delete(c.canvasRequested, code)
}

func (c *WSConn) setResyncing(code string, v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v {
		c.resyncing[code] = true
	} else {
		delete(c.resyncing, code)
		delete(c.canvasRequested, code)
	}
}

func (c *WSConn) isResyncing(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resyncing[code]
}

// markCanvasRequested returns false if a snapshot request is already
// outstanding for this room on this socket.
func (c *WSConn) markCanvasRequested(code string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.canvasRequested[code] {
		return false
	}
	c.canvasRequested[code] = true
	return true
}

// Hub manages connections, the single-session user registry, and per-room
// broadcast groups. It implements service.Broadcaster.
type Hub struct {
	mu          sync.RWMutex
	connections map[*WSConn]bool
	users       map[string]*WSConn // single session per user
	sockets     map[string]*WSConn
	rooms       map[string]map[*WSConn]bool // room code -> members
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[*WSConn]bool),
		users:       make(map[string]*WSConn),
		sockets:     make(map[string]*WSConn),
		rooms:       make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection. An authenticated user's previous socket is
// force-disconnected before the new one becomes current, so at most one
// socket per user is ever registered.
func (h *Hub) Register(c *WSConn) {
	var evicted *WSConn
	h.mu.Lock()
	h.connections[c] = true
	h.sockets[c.socketID] = c
	if c.userID != "" {
		if prev, ok := h.users[c.userID]; ok && prev != c {
			evicted = prev
		}
		h.users[c.userID] = c
	}
	h.mu.Unlock()

	if evicted != nil {
		log.Info().Str("userId", c.userID).Msg("Evicting previous session")
		evicted.conn.Close()
	}
}

// Unregister removes a connection. The user registry entry is cleared only
// if it still points at this socket, so a late disconnect from an evicted
// session cannot knock out its replacement.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connections[c] {
		return
	}
	delete(h.connections, c)
	delete(h.sockets, c.socketID)
	if c.userID != "" && h.users[c.userID] == c {
		delete(h.users, c.userID)
	}
	for code, conns := range h.rooms {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, code)
		}
	}
	close(c.send)
}

// JoinRoom adds the connection to a room's broadcast group.
func (h *Hub) JoinRoom(c *WSConn, code string, roomID int64) {
	h.mu.Lock()
	if h.rooms[code] == nil {
		h.rooms[code] = make(map[*WSConn]bool)
	}
	h.rooms[code][c] = true
	h.mu.Unlock()
	c.trackRoom(code, roomID)
}

// LeaveRoom removes the connection from a room's broadcast group.
func (h *Hub) LeaveRoom(c *WSConn, code string) {
	h.mu.Lock()
	if conns, ok := h.rooms[code]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, code)
		}
	}
	h.mu.Unlock()
	c.untrackRoom(code)
}

func marshalEvent(event string, data any) []byte {
	b, err := json.Marshal(WSEvent{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal WebSocket event")
		return nil
	}
	return b
}

func (h *Hub) deliver(c *WSConn, data []byte) {
	select {
	case c.send <- data:
	default:
		log.Warn().Str("userId", c.userID).Msg("Dropping WebSocket message, buffer full")
	}
}

// BroadcastRoomEvent sends an event to every socket in the room.
func (h *Hub) BroadcastRoomEvent(roomCode, event string, data any) {
	h.BroadcastRoomEventExcept(roomCode, "", event, data)
}

// BroadcastRoomEventExcept sends to every socket in the room but one.
func (h *Hub) BroadcastRoomEventExcept(roomCode, exceptSocketID, event string, data any) {
	msg := marshalEvent(event, data)
	if msg == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomCode] {
		if c.socketID == exceptSocketID {
			continue
		}
		h.deliver(c, msg)
	}
}

// BroadcastDrawing relays live drawing deltas, skipping the sender and any
// socket still resyncing its canvas.
func (h *Hub) BroadcastDrawing(roomCode, senderSocketID string, data any) {
	msg := marshalEvent("drawing_data", data)
	if msg == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomCode] {
		if c.socketID == senderSocketID || c.isResyncing(roomCode) {
			continue
		}
		h.deliver(c, msg)
	}
}

// EmitToSocket sends an event to one socket; no-op if it is gone.
func (h *Hub) EmitToSocket(socketID, event string, data any) {
	msg := marshalEvent(event, data)
	if msg == nil {
		return
	}
	h.mu.RLock()
	c := h.sockets[socketID]
	h.mu.RUnlock()
	if c != nil {
		h.deliver(c, msg)
	}
}

// AnySocketInRoom returns some member socket other than except, empty when
// the room has no other live sockets. Used to pick a canvas-resync source.
func (h *Hub) AnySocketInRoom(roomCode, exceptSocketID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomCode] {
		if c.socketID != exceptSocketID && !c.isResyncing(roomCode) {
			return c.socketID
		}
	}
	return ""
}

// SocketIDForUser resolves a user's current socket, empty when offline.
func (h *Hub) SocketIDForUser(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.users[userID]; ok {
		return c.socketID
	}
	return ""
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
