package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/auth"
	"github.com/drawdash/api/internal/service"
	"github.com/gorilla/websocket"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 65536            // canvas resume payloads are large
	sendBufSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware; tighten in production
	},
}

// WSHandler owns WebSocket connections and routes client events to the
// services.
type WSHandler struct {
	hub      *Hub
	verifier *auth.Verifier
	roomSvc  *service.RoomService
	engine   *service.PhaseEngine
	guesses  *service.GuessService
}

// NewWSHandler creates a WSHandler.
func NewWSHandler(hub *Hub, verifier *auth.Verifier, roomSvc *service.RoomService, engine *service.PhaseEngine, guesses *service.GuessService) *WSHandler {
	return &WSHandler{hub: hub, verifier: verifier, roomSvc: roomSvc, engine: engine, guesses: guesses}
}

// ServeWS handles GET /api/v1/ws — upgrades to WebSocket.
// Auth via ?token= query parameter (WebSocket can't send headers). The
// handshake itself is open; an anonymous socket can connect but every
// state-changing event is refused with not_authenticated.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID string
	if tokenStr := r.URL.Query().Get("token"); tokenStr != "" {
		claims, err := h.verifier.Verify(tokenStr)
		if err != nil {
			http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
			return
		}
		userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:            conn,
		userID:          userID,
		socketID:        newSocketID(),
		send:            make(chan []byte, sendBufSize),
		rooms:           make(map[string]int64),
		resyncing:       make(map[string]bool),
		canvasRequested: make(map[string]bool),
	}
	h.hub.Register(client)

	// Send a welcome message so the client can confirm the connection is
	// live and learn its socket ID.
	welcome, _ := json.Marshal(WSEvent{Event: "connected", Data: map[string]any{
		"socketId":      client.socketID,
		"authenticated": userID != "",
	}})
	client.send <- welcome

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", userID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readPump reads messages from the WebSocket connection.
func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		// Snapshot room membership before the hub forgets the socket, then
		// arm a disconnect grace window for each room the user was in.
		joined := c.joinedRooms()
		h.hub.Unregister(c)
		c.conn.Close()

		if c.userID != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for _, roomID := range joined {
				h.roomSvc.Disconnect(ctx, roomID, c.userID, c.socketID)
			}
			cancel()
		}
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			break
		}

		var msg ClientEvent
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.dispatch(c, &msg)
	}
}

// writePump writes messages to the WebSocket connection.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain queued messages into the same write
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
