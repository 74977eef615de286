package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/drawdash/api/internal/auth"
	"github.com/drawdash/api/internal/repository"
	"github.com/drawdash/api/internal/service"
)

// RoomHandler handles the room REST endpoints. Everything real-time goes
// over the WebSocket; REST covers creation, discovery, and history.
type RoomHandler struct {
	roomSvc *service.RoomService
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(roomSvc *service.RoomService) *RoomHandler {
	return &RoomHandler{roomSvc: roomSvc}
}

// CreateRoom handles POST /api/v1/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		GameMode     string   `json:"gameMode"`
		MaxPlayers   int      `json:"maxPlayers"`
		IsPublic     bool     `json:"isPublic"`
		Language     string   `json:"language"`
		Script       string   `json:"script"`
		Country      string   `json:"country"`
		Category     []string `json:"category"`
		EntryPoints  int      `json:"entryPoints"`
		TargetPoints int      `json:"targetPoints"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.roomSvc.CreateRoom(r.Context(), userID, service.CreateParams{
		GameMode:     req.GameMode,
		MaxPlayers:   req.MaxPlayers,
		IsPublic:     req.IsPublic,
		Language:     req.Language,
		Script:       req.Script,
		Country:      req.Country,
		Category:     req.Category,
		EntryPoints:  req.EntryPoints,
		TargetPoints: req.TargetPoints,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListRooms handles GET /api/v1/rooms
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomSvc.ListPublicRooms(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rooms == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

// GetRoom handles GET /api/v1/rooms/{code}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	room, err := h.roomSvc.RoomByCode(r.Context(), code)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// ListMessages handles GET /api/v1/rooms/{code}/messages
func (h *RoomHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	msgs, err := h.roomSvc.RecentMessages(r.Context(), code, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if msgs == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// UserHandler serves the read-only user endpoints. Account management lives
// in a separate service; this server reads its rows and owns the coin ledger.
type UserHandler struct {
	users  repository.UserRepository
	wallet repository.WalletRepository
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(users repository.UserRepository, wallet repository.WalletRepository) *UserHandler {
	return &UserHandler{users: users, wallet: wallet}
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	user, err := h.users.FindByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// GetBalance handles GET /api/v1/users/me/balance
func (h *UserHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	balance, err := h.wallet.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"balance": balance})
}
