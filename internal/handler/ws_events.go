package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/service"
)

// eventTimeout bounds the database work behind a single client event.
const eventTimeout = 10 * time.Second

// roomRef is the room addressing shared by most client events; either field
// is accepted.
type roomRef struct {
	RoomID   int64  `json:"roomId"`
	RoomCode string `json:"roomCode"`
}

// resolveRoom maps a payload's room reference onto a room this socket has
// actually joined.
func (c *WSConn) resolveRoom(ref roomRef) (code string, id int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ref.RoomCode != "" {
		if roomID, found := c.rooms[ref.RoomCode]; found {
			return ref.RoomCode, roomID, true
		}
	}
	if ref.RoomID != 0 {
		for roomCode, roomID := range c.rooms {
			if roomID == ref.RoomID {
				return roomCode, roomID, true
			}
		}
	}
	return "", 0, false
}

func (h *WSHandler) sendError(c *WSConn, err error, details string) {
	code := service.ErrorCode(err)
	if code == "internal_error" {
		log.Error().Err(err).Str("userId", c.userID).Msg("Internal error handling client event")
	}
	data := map[string]any{"message": code}
	if details != "" {
		data["details"] = details
	}
	h.hub.EmitToSocket(c.socketID, "error", data)
}

// dispatch routes one decoded client event. Anonymous sockets may only
// observe; everything here requires an authenticated user.
func (h *WSHandler) dispatch(c *WSConn, msg *ClientEvent) {
	if c.userID == "" {
		h.sendError(c, service.ErrNotAuthenticated, msg.Event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch msg.Event {
	case "join_room":
		h.handleJoinRoom(ctx, c, msg.Data)
	case "leave_room":
		h.handleLeaveRoom(ctx, c, msg.Data)
	case "update_settings":
		h.handleUpdateSettings(ctx, c, msg.Data)
	case "select_team":
		h.handleSelectTeam(ctx, c, msg.Data)
	case "set_ready":
		h.handleSetReady(ctx, c, msg.Data, true)
	case "set_not_ready":
		h.handleSetReady(ctx, c, msg.Data, false)
	case "remove_participant":
		h.handleRemoveParticipant(ctx, c, msg.Data)
	case "continue_waiting":
		h.handleContinueWaiting(ctx, c, msg.Data)
	case "start_game":
		h.handleStartGame(ctx, c, msg.Data)
	case "choose_word":
		h.handleChooseWord(ctx, c, msg.Data)
	case "submit_guess":
		h.handleSubmitGuess(ctx, c, msg.Data)
	case "skip_turn":
		h.handleSkipTurn(ctx, c, msg.Data)
	case "chat_message":
		h.handleChat(ctx, c, msg.Data)
	case "word_hint":
		h.handleWordHint(ctx, c, msg.Data)
	case "report":
		h.handleReport(ctx, c, msg.Data)
	case "prepare_to_leave_permanently":
		h.handlePrepareToLeave(c)
	case "drawing_data":
		h.handleDrawingData(ctx, c, msg.Data)
	case "clear_canvas":
		h.handleClearCanvas(ctx, c, msg.Data)
	case "send_canvas_data":
		h.handleSendCanvasData(c, msg.Data)
	case "resync_done":
		h.handleResyncDone(c, msg.Data)
	case "join_voice", "voice_create_transport", "voice_produce", "voice_consume":
		h.handleVoice(ctx, c, msg.Event, msg.Data)
	default:
		log.Debug().Str("event", msg.Event).Str("userId", c.userID).Msg("Unknown client event")
	}
}

func (h *WSHandler) handleJoinRoom(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Team string `json:"team"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(c, service.ErrRoomNotFound, "join_room requires roomCode or roomId")
		return
	}
	code := req.RoomCode
	if code == "" && req.RoomID != 0 {
		var err error
		if code, err = h.roomSvc.RoomCodeByID(ctx, req.RoomID); err != nil {
			h.sendError(c, err, "")
			return
		}
	}
	if code == "" {
		h.sendError(c, service.ErrRoomNotFound, "join_room requires roomCode or roomId")
		return
	}

	res, err := h.roomSvc.Join(ctx, code, c.userID, c.socketID, req.Team)
	if err != nil {
		h.sendError(c, err, "")
		return
	}
	room := res.Room

	h.hub.JoinRoom(c, room.Code, room.ID)
	h.hub.EmitToSocket(c.socketID, "room_joined", map[string]any{
		"room":          room,
		"participants":  res.Active,
		"readyUserIds":  h.roomSvc.ReadyUserIDs(ctx, room.ID),
		"remainingTime": room.RemainingSeconds(time.Now()),
	})
	if res.Duplicate {
		return
	}

	if !res.Rejoined {
		h.hub.BroadcastRoomEventExcept(room.Code, c.socketID, "player_joined", map[string]any{
			"participant": res.Participant,
		})
	}
	h.hub.BroadcastRoomEvent(room.Code, "room_participants", map[string]any{
		"participants": res.Active,
		"readyUserIds": h.roomSvc.ReadyUserIDs(ctx, room.ID),
	})

	if room.Status == model.StatusPlaying && room.RoundPhase == model.PhaseDrawing {
		h.startCanvasResync(c, room)
	}
}

func (h *WSHandler) handleLeaveRoom(ctx context.Context, c *WSConn, data json.RawMessage) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	code, roomID, ok := c.resolveRoom(ref)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	h.hub.LeaveRoom(c, code)
	if err := h.roomSvc.Leave(ctx, roomID, c.userID); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleUpdateSettings(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Language     string   `json:"language"`
		Script       string   `json:"script"`
		Country      string   `json:"country"`
		Category     []string `json:"category"`
		EntryPoints  int      `json:"entryPoints"`
		TargetPoints int      `json:"targetPoints"`
		VoiceEnabled bool     `json:"voiceEnabled"`
		MaxPlayers   int      `json:"maxPlayers"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(c, service.ErrRoomNotFound, "malformed update_settings")
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	_, err := h.roomSvc.UpdateSettings(ctx, roomID, c.userID, model.RoomSettings{
		Language:     req.Language,
		Script:       req.Script,
		Country:      req.Country,
		Category:     req.Category,
		EntryPoints:  req.EntryPoints,
		TargetPoints: req.TargetPoints,
		VoiceEnabled: req.VoiceEnabled,
		MaxPlayers:   req.MaxPlayers,
	})
	if err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleSelectTeam(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Team string `json:"team"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(c, service.ErrInvalidTeam, "")
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.roomSvc.SelectTeam(ctx, roomID, c.userID, req.Team); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleSetReady(ctx context.Context, c *WSConn, data json.RawMessage, ready bool) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	_, roomID, ok := c.resolveRoom(ref)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.roomSvc.SetReady(ctx, roomID, c.userID, ready); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleRemoveParticipant(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(c, service.ErrRoomNotFound, "malformed remove_participant")
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.roomSvc.RemoveParticipant(ctx, roomID, c.userID, req.UserID); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleContinueWaiting(ctx context.Context, c *WSConn, data json.RawMessage) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	_, roomID, ok := c.resolveRoom(ref)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.roomSvc.ContinueWaiting(ctx, roomID, c.userID); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleStartGame(ctx context.Context, c *WSConn, data json.RawMessage) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	_, roomID, ok := c.resolveRoom(ref)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.engine.StartGame(ctx, roomID, c.userID); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleChooseWord(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Word string `json:"word"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(c, service.ErrInvalidWordChoice, "")
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.engine.ChooseWord(ctx, roomID, c.userID, req.Word); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleSubmitGuess(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Guess string `json:"guess"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(c, service.ErrWrongPhase, "malformed submit_guess")
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.guesses.Guess(ctx, roomID, c.userID, req.Guess); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleSkipTurn(ctx context.Context, c *WSConn, data json.RawMessage) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	_, roomID, ok := c.resolveRoom(ref)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.engine.SkipTurn(ctx, roomID, c.userID); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handleChat(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.Content == "" {
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.roomSvc.Chat(ctx, roomID, c.userID, req.Content); err != nil {
		h.sendError(c, err, "")
	}
}

// handleWordHint relays the drawer's hint (partially revealed word) to the
// guessers. The hint content is client-driven; the server only checks the
// sender is drawing right now.
func (h *WSHandler) handleWordHint(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		RevealedWord   string `json:"revealedWord"`
		HintsRemaining int    `json:"hintsRemaining"`
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
	h.hub.BroadcastRoomEventExcept(code, c.socketID, "word_hint", map[string]any{
		"revealedWord":   req.RevealedWord,
		"hintsRemaining": req.HintsRemaining,
	})
}

func (h *WSHandler) handleReport(ctx context.Context, c *WSConn, data json.RawMessage) {
	var req struct {
		roomRef
		TargetUserID string `json:"targetUserId"`
		Kind         string `json:"kind"`
	}
	if err := json.Unmarshal(data, &req); err != nil || req.TargetUserID == "" {
		return
	}
	_, roomID, ok := c.resolveRoom(req.roomRef)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	if err := h.roomSvc.Report(ctx, roomID, c.userID, req.TargetUserID, req.Kind); err != nil {
		h.sendError(c, err, "")
	}
}

func (h *WSHandler) handlePrepareToLeave(c *WSConn) {
	for _, roomID := range c.joinedRooms() {
		h.roomSvc.PrepareToLeavePermanently(roomID, c.userID)
	}
}

func (h *WSHandler) handleVoice(ctx context.Context, c *WSConn, event string, data json.RawMessage) {
	var ref roomRef
	json.Unmarshal(data, &ref)
	_, roomID, ok := c.resolveRoom(ref)
	if !ok {
		h.sendError(c, service.ErrNotParticipant, "")
		return
	}
	op := map[string]string{
		"join_voice":             "join",
		"voice_create_transport": "create_transport",
		"voice_produce":          "produce",
		"voice_consume":          "consume",
	}[event]
	resp, err := h.roomSvc.Voice(ctx, roomID, c.userID, op, data)
	if err != nil {
		h.sendError(c, err, "")
		return
	}
	h.hub.EmitToSocket(c.socketID, "voice_response", map[string]any{
		"op":   op,
		"data": json.RawMessage(resp),
	})
}
