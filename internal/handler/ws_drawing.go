package handler

import (
	"context"
	"encoding/json"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/service"
)

// The server never stores canvas state. Live strokes are relayed as-is, and
// a client joining mid-round is caught up peer-to-peer: the server asks a
// live peer for its canvas history and forwards it to the joiner, who holds
// live strokes until resync_done.

// startCanvasResync catches a joiner up on the current canvas. The drawer
// holds the authoritative copy: a rejoining drawer is asked to serve the
// whole room rather than being served, while any other joiner is marked
// resyncing and a live peer (the drawer when reachable) serves it.
func (h *WSHandler) startCanvasResync(c *WSConn, room *model.Room) {
	if room.CurrentDrawerID == c.userID {
		h.hub.EmitToSocket(c.socketID, "request_canvas_data", map[string]any{
			"roomCode": room.Code,
		})
		return
	}

	c.setResyncing(room.Code, true)
	if !c.markCanvasRequested(room.Code) {
		return
	}

	source := h.hub.SocketIDForUser(room.CurrentDrawerID)
	if source == "" {
		source = h.hub.AnySocketInRoom(room.Code, c.socketID)
	}
	if source == "" {
		// Nobody holds a canvas to serve; the joiner starts blank.
		c.setResyncing(room.Code, false)
		return
	}
	h.hub.EmitToSocket(source, "request_canvas_data", map[string]any{
		"roomCode":       room.Code,
		"targetSocketId": c.socketID,
		"targetUserId":   c.userID,
	})
}

// handleDrawingData relays a stroke batch from the drawer to the room. The
// payload is opaque to the server except for the sequence number echoed in
// the ack.
func (h *WSHandler) handleDrawingData(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Sequence int64 `json:"sequence"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	code, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if !h.roomSvc.DrawingAllowed(ctx, roomID) {
		h.sendError(c, service.ErrWrongPhase, "")
		return
	}
	h.hub.BroadcastDrawing(code, c.socketID, json.RawMessage(data))
	h.hub.EmitToSocket(c.socketID, "drawing_ack", map[string]any{"sequence": req.Sequence})
}

// handleClearCanvas wipes everyone's canvas and bumps the canvas version so
// stale stroke batches from before the clear can be discarded client-side.
func (h *WSHandler) handleClearCanvas(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		CanvasVersion int `json:"canvasVersion"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	code, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if !h.roomSvc.DrawingAllowed(ctx, roomID) {
		h.sendError(c, service.ErrWrongPhase, "")
		return
	}
	h.hub.BroadcastRoomEvent(code, "canvas_cleared", map[string]any{
		"canvasVersion": req.CanvasVersion + 1,
	})
}

// handleSendCanvasData forwards a peer's canvas history as canvas_resume:
// to the named resyncing socket, or to the whole room when no target was
// named (a rejoined drawer serving everyone).
func (h *WSHandler) handleSendCanvasData(c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		TargetSocketID string `json:"targetSocketId"`
		TargetUserID   string `json:"targetUserId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return
	}
	code, _, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	target := req.TargetSocketID
	if target == "" && req.TargetUserID != "" {
		// Resolve at send time; the joiner may have reconnected again.
		target = h.hub.SocketIDForUser(req.TargetUserID)
		if target == "" {
			return
		}
	}
	if target == "" {
		h.hub.BroadcastRoomEventExcept(code, c.socketID, "canvas_resume", json.RawMessage(data))
		return
	}
	h.hub.EmitToSocket(target, "canvas_resume", json.RawMessage(data))
}

// handleResyncDone re-enables live stroke delivery for the socket.
func (h *WSHandler) handleResyncDone(c *WSConn, data json.RawMessage) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	if ref.RoomCode != "" {
		c.setResyncing(ref.RoomCode, false)
		return
	}
	for code := range c.joinedRooms() {
		c.setResyncing(code, false)
	}
}
