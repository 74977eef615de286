package service

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	// BroadcastRoomEvent sends an event to every socket in the room.
	BroadcastRoomEvent(roomCode string, eventType string, data any)

	// BroadcastRoomEventExcept sends to every socket in the room but one.
	BroadcastRoomEventExcept(roomCode, exceptSocketID, eventType string, data any)

	// EmitToSocket sends an event to a single socket, no-op if it is gone.
	EmitToSocket(socketID, eventType string, data any)

	// SocketIDForUser resolves a user's current live socket, empty when
	// the user is not connected. Always resolved at send time, never
	// stored, since the user may have reconnected on a new socket.
	SocketIDForUser(userID string) string
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastRoomEvent(string, string, any)               {}
func (NoopBroadcaster) BroadcastRoomEventExcept(string, string, string, any) {}
func (NoopBroadcaster) EmitToSocket(string, string, any)                     {}
func (NoopBroadcaster) SocketIDForUser(string) string                        { return "" }
