package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

// voiceFee is the per-player coin cost charged when a room enables voice.
const voiceFee = 5

// drawingReportThreshold is how many distinct reporters a drawing report
// needs before it counts as a strike.
const drawingReportThreshold = 2

// RoomService owns room membership and lifecycle: joins with dedup and
// capacity, the disconnect grace window, lobby idle timeouts, settings,
// teams, ready state, chat, and reports. Game-phase work is delegated to
// the PhaseEngine.
type RoomService struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	messages     repository.MessageRepository
	reports      repository.ReportRepository
	wallet       repository.WalletRepository
	cache        repository.RoomCache
	engine       *PhaseEngine
	clock        *PhaseClock
	broadcaster  Broadcaster
	voice        VoiceRelay

	gracePeriod  time.Duration
	lobbyTimeout time.Duration

	// accepting gates joins until the startup sweep and timer rebuild
	// finish. Until then every join is refused with server_syncing.
	accepting atomic.Bool

	mu             sync.Mutex
	graceTimers    map[string]*time.Timer
	idleTimers     map[int64]*time.Timer
	permanentLeave map[string]bool
}

// NewRoomService creates a RoomService. The join gate starts closed; call
// Open after StartupSweep and the timer rebuild.
func NewRoomService(
	rooms repository.RoomRepository,
	participants repository.ParticipantRepository,
	messages repository.MessageRepository,
	reports repository.ReportRepository,
	wallet repository.WalletRepository,
	cache repository.RoomCache,
	engine *PhaseEngine,
	clock *PhaseClock,
	broadcaster Broadcaster,
	voice VoiceRelay,
	gracePeriod, lobbyTimeout time.Duration,
) *RoomService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	if voice == nil {
		voice = NoopVoiceRelay{}
	}
	return &RoomService{
		rooms:          rooms,
		participants:   participants,
		messages:       messages,
		reports:        reports,
		wallet:         wallet,
		cache:          cache,
		engine:         engine,
		clock:          clock,
		broadcaster:    broadcaster,
		voice:          voice,
		gracePeriod:    gracePeriod,
		lobbyTimeout:   lobbyTimeout,
		graceTimers:    make(map[string]*time.Timer),
		idleTimers:     make(map[int64]*time.Timer),
		permanentLeave: make(map[string]bool),
	}
}

// Open flips the join gate after startup recovery completes.
func (s *RoomService) Open() {
	s.accepting.Store(true)
	log.Info().Msg("Join gate open")
}

func graceKey(roomID int64, userID string) string {
	return strconv.FormatInt(roomID, 10) + "|" + userID
}

// CreateParams are the options for a new room.
type CreateParams struct {
	GameMode     string
	MaxPlayers   int
	IsPublic     bool
	Language     string
	Script       string
	Country      string
	Category     []string
	EntryPoints  int
	TargetPoints int
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newRoomCode() string {
	b := make([]byte, 5)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// CreateRoom creates a room with a fresh code and arms its lobby idle timer.
func (s *RoomService) CreateRoom(ctx context.Context, ownerID string, p CreateParams) (*model.Room, error) {
	if p.MaxPlayers < 2 || p.MaxPlayers > 15 {
		return nil, ErrInvalidMaxPlayers
	}
	if p.GameMode != model.ModeTeam {
		p.GameMode = model.ModeSolo
	}

	var room *model.Room
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		room, err = s.rooms.Create(ctx, &model.Room{
			Code:         newRoomCode(),
			OwnerID:      ownerID,
			MaxPlayers:   p.MaxPlayers,
			IsPublic:     p.IsPublic,
			GameMode:     p.GameMode,
			Language:     p.Language,
			Script:       p.Script,
			Country:      p.Country,
			Category:     p.Category,
			EntryPoints:  p.EntryPoints,
			TargetPoints: p.TargetPoints,
		})
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.refreshSnapshot(ctx, room)
	s.armIdleTimer(room.ID)
	log.Info().Str("code", room.Code).Str("ownerId", ownerID).Msg("Room created")
	return room, nil
}

// ListPublicRooms returns joinable public rooms.
func (s *RoomService) ListPublicRooms(ctx context.Context) ([]*model.Room, error) {
	return s.rooms.ListPublic(ctx)
}

// RoomByCode resolves a room with its participants.
func (s *RoomService) RoomByCode(ctx context.Context, code string) (*model.Room, error) {
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	room.Participants = nil
	if parts, err := s.participants.ListActive(ctx, room.ID); err == nil {
		for _, p := range parts {
			room.Participants = append(room.Participants, *p)
		}
	}
	return room, nil
}

// RoomCodeByID resolves a room's code from its numeric ID, snapshot first.
func (s *RoomService) RoomCodeByID(ctx context.Context, roomID int64) (string, error) {
	if snap, err := s.cache.GetByID(ctx, roomID); err == nil && snap != nil {
		return snap.Code, nil
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return "", err
	}
	if room == nil {
		return "", ErrRoomNotFound
	}
	return room.Code, nil
}

func (s *RoomService) refreshSnapshot(ctx context.Context, room *model.Room) {
	snap := &model.Snapshot{
		RoomID:            room.ID,
		Code:              room.Code,
		Status:            room.Status,
		RoundPhase:        room.RoundPhase,
		RoundPhaseEndTime: room.RoundPhaseEndTime,
	}
	if err := s.cache.SetSnapshot(ctx, snap); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to refresh room snapshot")
	}
}

// JoinResult is what the session layer needs after a join.
type JoinResult struct {
	Room        *model.Room
	Participant *model.Participant
	Active      []*model.Participant

	// Duplicate means the same socket retried an in-flight join; the
	// handler answers the sender only and broadcasts nothing.
	Duplicate bool

	// Rejoined means the user already had a seat (reconnect); joined
	// broadcasts are suppressed, a canvas resync may be needed.
	Rejoined bool
}

// Join admits a user into a room, idempotently. Reconnects cancel the
// disconnect grace timer and win the join lock over the previous socket.
func (s *RoomService) Join(ctx context.Context, code string, userID, socketID, team string) (*JoinResult, error) {
	if !s.accepting.Load() {
		return nil, ErrServerSyncing
	}

	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status == model.StatusClosed || room.Status == model.StatusFinished {
		return nil, ErrRoomClosed
	}

	ok, err := s.cache.AcquireJoinLock(ctx, room.ID, userID, socketID)
	if err != nil {
		return nil, err
	}

	existing, err := s.participants.Find(ctx, room.ID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.BannedAt != nil {
		return nil, repository.ErrBannedFromRoom
	}

	if !ok {
		// Same socket retrying. Idempotent: answer the sender only.
		if existing == nil {
			return nil, ErrRoomNotFound
		}
		active, _ := s.participants.ListActive(ctx, room.ID)
		return &JoinResult{Room: room, Participant: existing, Active: active, Duplicate: true, Rejoined: true}, nil
	}

	rejoined := existing != nil
	if rejoined && !existing.IsActive && room.Status == model.StatusPlaying {
		// Grace expired mid-game; the seat is gone.
		return nil, ErrExitedDueToInactivity
	}

	if room.GameMode == model.ModeTeam && team == "" {
		if existing == nil || existing.Team == "" {
			team = s.smallerTeam(ctx, room.ID)
		}
	}
	if team != "" && team != model.TeamBlue && team != model.TeamOrange {
		return nil, ErrInvalidTeam
	}

	p, err := s.participants.Join(ctx, room.ID, userID, socketID, team)
	if err != nil {
		return nil, err
	}
	s.cancelGrace(room.ID, userID)

	if room.Status == model.StatusLobby {
		if n, err := s.participants.CountActive(ctx, room.ID); err == nil && n >= 2 {
			if err := s.rooms.UpdateStatus(ctx, room.ID, model.StatusWaiting); err == nil {
				room.Status = model.StatusWaiting
			}
		}
	}
	s.refreshSnapshot(ctx, room)

	active, err := s.participants.ListActive(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	log.Info().Str("code", room.Code).Str("userId", userID).Bool("rejoined", rejoined).Msg("Player joined")
	return &JoinResult{Room: room, Participant: p, Active: active, Rejoined: rejoined}, nil
}

func (s *RoomService) smallerTeam(ctx context.Context, roomID int64) string {
	active, err := s.participants.ListActive(ctx, roomID)
	if err != nil {
		return model.TeamBlue
	}
	counts := map[string]int{}
	for _, p := range active {
		counts[p.Team]++
	}
	if counts[model.TeamOrange] < counts[model.TeamBlue] {
		return model.TeamOrange
	}
	return model.TeamBlue
}

// Leave is an explicit exit. The owner leaving deletes the room outright.
func (s *RoomService) Leave(ctx context.Context, roomID int64, userID string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.OwnerID == userID {
		return s.DeleteRoom(ctx, room)
	}

	wasDrawer := room.CurrentDrawerID == userID && room.Status == model.StatusPlaying

	if err := s.participants.SetActive(ctx, roomID, userID, false); err != nil {
		return err
	}
	s.cancelGrace(roomID, userID)
	if err := s.cache.UnmarkReady(ctx, roomID, userID); err != nil {
		log.Warn().Err(err).Int64("roomId", roomID).Msg("Failed to unmark ready on leave")
	}
	s.broadcaster.BroadcastRoomEvent(room.Code, "player_left", map[string]any{"userId": userID})

	return s.afterDeparture(ctx, room, wasDrawer)
}

// afterDeparture runs the lifecycle checks shared by leave and grace
// expiry: abort the turn if the drawer is gone, end the game if too few
// players remain, delete the room if nobody does.
func (s *RoomService) afterDeparture(ctx context.Context, room *model.Room, wasDrawer bool) error {
	n, err := s.participants.CountActive(ctx, room.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.DeleteRoom(ctx, room)
	}
	if wasDrawer {
		if err := s.engine.AbortDrawing(ctx, room.ID); err != nil {
			log.Error().Err(err).Str("code", room.Code).Msg("Failed to abort departed drawer's turn")
		}
	}
	if room.Status == model.StatusPlaying {
		if err := s.engine.CheckPlayers(ctx, room.ID); err != nil {
			log.Error().Err(err).Str("code", room.Code).Msg("Insufficient-player check failed")
		}
	}
	return nil
}

// Disconnect arms the grace window: the seat is kept, the socket binding is
// cleared, and only the grace timer expiring turns this into a leave.
func (s *RoomService) Disconnect(ctx context.Context, roomID int64, userID, socketID string) {
	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil || p == nil || !p.IsActive {
		return
	}
	if p.SocketID != "" && p.SocketID != socketID {
		// A newer socket already took over; this is the old one dying.
		return
	}
	if err := s.participants.SetSocketID(ctx, roomID, userID, ""); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to clear socket on disconnect")
	}

	grace := s.gracePeriod
	key := graceKey(roomID, userID)
	s.mu.Lock()
	if s.permanentLeave[key] {
		delete(s.permanentLeave, key)
		grace = time.Second
	}
	if t, ok := s.graceTimers[key]; ok {
		t.Stop()
	}
	s.graceTimers[key] = time.AfterFunc(grace, func() {
		s.graceExpired(roomID, userID)
	})
	s.mu.Unlock()
	log.Info().Int64("roomId", roomID).Str("userId", userID).Dur("grace", grace).Msg("Disconnect grace armed")
}

// PrepareToLeavePermanently shortens the user's next grace window to one
// second; sent by clients right before closing for good.
func (s *RoomService) PrepareToLeavePermanently(roomID int64, userID string) {
	key := graceKey(roomID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.graceTimers[key]; ok {
		t.Stop()
		s.graceTimers[key] = time.AfterFunc(time.Second, func() {
			s.graceExpired(roomID, userID)
		})
		return
	}
	s.permanentLeave[key] = true
}

func (s *RoomService) cancelGrace(roomID int64, userID string) {
	key := graceKey(roomID, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.graceTimers[key]; ok {
		t.Stop()
		delete(s.graceTimers, key)
	}
	delete(s.permanentLeave, key)
}

func (s *RoomService) graceExpired(roomID int64, userID string) {
	s.mu.Lock()
	delete(s.graceTimers, graceKey(roomID, userID))
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil || p == nil || !p.IsActive || p.SocketID != "" {
		// Reconnected (or gone) in the meantime.
		return
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil || room == nil {
		return
	}

	if err := s.participants.SetActive(ctx, roomID, userID, false); err != nil {
		log.Error().Err(err).Str("userId", userID).Msg("Failed to deactivate after grace expiry")
		return
	}
	if err := s.cache.UnmarkReady(ctx, roomID, userID); err != nil {
		log.Warn().Err(err).Int64("roomId", roomID).Msg("Failed to unmark ready after grace expiry")
	}
	s.broadcaster.BroadcastRoomEvent(room.Code, "player_left", map[string]any{"userId": userID})
	log.Info().Str("code", room.Code).Str("userId", userID).Msg("Grace expired, player left")

	if room.OwnerID == userID {
		if err := s.DeleteRoom(ctx, room); err != nil {
			log.Error().Err(err).Str("code", room.Code).Msg("Failed to delete room after owner grace expiry")
		}
		return
	}
	wasDrawer := room.CurrentDrawerID == userID && room.Status == model.StatusPlaying
	if err := s.afterDeparture(ctx, room, wasDrawer); err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Departure checks failed after grace expiry")
	}
}

// DeleteRoom tears a room down: timers, cache, broadcast, row.
func (s *RoomService) DeleteRoom(ctx context.Context, room *model.Room) error {
	s.clock.CancelAll(room.Code)
	s.cancelIdleTimer(room.ID)

	s.mu.Lock()
	prefix := strconv.FormatInt(room.ID, 10) + "|"
	for key, t := range s.graceTimers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			t.Stop()
			delete(s.graceTimers, key)
		}
	}
	s.mu.Unlock()

	s.broadcaster.BroadcastRoomEvent(room.Code, "room_closed", nil)
	if err := s.rooms.Delete(ctx, room.ID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, room.ID, room.Code); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to invalidate room cache")
	}
	log.Info().Str("code", room.Code).Msg("Room deleted")
	return nil
}

// UpdateSettings replaces room settings; owner-only, lobby/waiting only.
// Enabling voice charges every active player the voice fee atomically.
func (s *RoomService) UpdateSettings(ctx context.Context, roomID int64, userID string, settings model.RoomSettings) (*model.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.OwnerID != userID {
		return nil, &OwnerOnlyError{Action: "update_settings"}
	}
	if room.Status != model.StatusLobby && room.Status != model.StatusWaiting {
		return nil, ErrCannotUpdateAfterStart
	}
	if settings.MaxPlayers < 2 || settings.MaxPlayers > 15 {
		return nil, ErrInvalidMaxPlayers
	}

	if settings.VoiceEnabled && !room.VoiceEnabled {
		active, err := s.participants.ListActive(ctx, roomID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(active))
		for _, p := range active {
			ids = append(ids, p.UserID)
		}
		if err := s.wallet.DebitAll(ctx, ids, voiceFee, "voice_fee", roomID); err != nil {
			if errors.Is(err, repository.ErrInsufficientFunds) {
				s.broadcaster.BroadcastRoomEvent(room.Code, "error", map[string]any{
					"message": "insufficient_coins",
					"details": "voice requires every player to afford the fee",
				})
			}
			return nil, err
		}
	}

	updated, err := s.rooms.UpdateSettings(ctx, roomID, settings)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrCannotUpdateAfterStart
	}

	// The broadcast is the commit point; nothing after it may fail the call.
	s.broadcaster.BroadcastRoomEvent(updated.Code, "settings_updated", updated)
	s.refreshSnapshot(ctx, updated)
	return updated, nil
}

// SelectTeam moves the user between teams while no game is running.
func (s *RoomService) SelectTeam(ctx context.Context, roomID int64, userID, team string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.GameMode != model.ModeTeam {
		return ErrNotTeamMode
	}
	if room.Status != model.StatusLobby && room.Status != model.StatusWaiting {
		return ErrCannotChangeTeamAfterStart
	}
	if team != model.TeamBlue && team != model.TeamOrange {
		return ErrInvalidTeam
	}
	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return ErrNotParticipant
	}
	if err := s.participants.SetTeam(ctx, roomID, userID, team); err != nil {
		return err
	}
	s.broadcastParticipants(ctx, room)
	return nil
}

// SetReady toggles the user's ready flag and rebroadcasts the roster.
func (s *RoomService) SetReady(ctx context.Context, roomID int64, userID string, ready bool) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return ErrNotParticipant
	}
	if ready {
		err = s.cache.MarkReady(ctx, roomID, userID)
	} else {
		err = s.cache.UnmarkReady(ctx, roomID, userID)
	}
	if err != nil {
		return err
	}
	s.broadcastParticipants(ctx, room)
	return nil
}

func (s *RoomService) broadcastParticipants(ctx context.Context, room *model.Room) {
	active, err := s.participants.ListActive(ctx, room.ID)
	if err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Failed to list participants for broadcast")
		return
	}
	ready, err := s.cache.ReadyUsers(ctx, room.ID)
	if err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to read ready set for broadcast")
	}
	s.broadcaster.BroadcastRoomEvent(room.Code, "room_participants", map[string]any{
		"participants": active,
		"readyUserIds": ready,
	})
}

// RemoveParticipant is the owner kicking someone before the game starts.
func (s *RoomService) RemoveParticipant(ctx context.Context, roomID int64, ownerID, targetID string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.OwnerID != ownerID {
		return &OwnerOnlyError{Action: "remove_participant"}
	}
	if ownerID == targetID {
		return ErrCannotRemoveSelf
	}
	if room.Status == model.StatusPlaying {
		return ErrCannotRemoveDuringGame
	}
	if err := s.participants.Remove(ctx, roomID, targetID); err != nil {
		return err
	}
	s.cancelGrace(roomID, targetID)
	if err := s.cache.UnmarkReady(ctx, roomID, targetID); err != nil {
		log.Warn().Err(err).Int64("roomId", roomID).Msg("Failed to unmark ready on removal")
	}
	s.broadcaster.BroadcastRoomEvent(room.Code, "player_removed", map[string]any{
		"userId": targetID,
		"reason": "removed_by_owner",
	})
	return nil
}

// ContinueWaiting is the owner answering the lobby idle prompt.
func (s *RoomService) ContinueWaiting(ctx context.Context, roomID int64, userID string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.OwnerID != userID {
		return &OwnerOnlyError{Action: "continue_waiting"}
	}
	s.armIdleTimer(roomID)
	return nil
}

func (s *RoomService) armIdleTimer(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.idleTimers[roomID]; ok {
		t.Stop()
	}
	s.idleTimers[roomID] = time.AfterFunc(s.lobbyTimeout, func() {
		s.idleExpired(roomID)
	})
}

func (s *RoomService) cancelIdleTimer(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.idleTimers[roomID]; ok {
		t.Stop()
		delete(s.idleTimers, roomID)
	}
}

// idleExpired fires when a lobby sat too long without a game start. The
// owner's live socket gets a prompt; an absent owner loses the room.
func (s *RoomService) idleExpired(roomID int64) {
	s.mu.Lock()
	delete(s.idleTimers, roomID)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil || room == nil {
		return
	}
	if room.Status == model.StatusPlaying {
		return
	}

	if sock := s.broadcaster.SocketIDForUser(room.OwnerID); sock != "" {
		s.broadcaster.EmitToSocket(sock, "lobby_time_exceeded", map[string]any{
			"timeout": secs(s.lobbyTimeout),
		})
		// One more window to answer with continue_waiting.
		s.armIdleTimer(roomID)
		return
	}
	log.Info().Str("code", room.Code).Msg("Lobby idle with absent owner, deleting room")
	if err := s.DeleteRoom(ctx, room); err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Failed to delete idle room")
	}
}

// Chat persists and broadcasts a chat message.
func (s *RoomService) Chat(ctx context.Context, roomID int64, userID, content string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return ErrNotParticipant
	}

	saved, err := s.messages.Save(ctx, &model.Message{RoomID: roomID, SenderID: userID, Content: content})
	if err != nil {
		return err
	}
	s.broadcaster.BroadcastRoomEvent(room.Code, "chat_message", map[string]any{
		"userId":    userID,
		"content":   saved.Content,
		"createdAt": saved.CreatedAt,
	})
	return nil
}

// RecentMessages returns the room's chat history, oldest first.
func (s *RoomService) RecentMessages(ctx context.Context, code string, limit int) ([]*model.Message, error) {
	room, err := s.rooms.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return s.messages.ListRecent(ctx, room.ID, limit)
}

// Report files a report against a user or the current drawing. Drawing
// reports escalate: the first strike aborts the drawer's turn, the second
// bans the target from this room.
func (s *RoomService) Report(ctx context.Context, roomID int64, reporterID, targetID, kind string) error {
	if reporterID == targetID {
		return ErrSelfReport
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	p, err := s.participants.Find(ctx, roomID, reporterID)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return ErrNotParticipant
	}
	if kind != model.ReportKindDrawing {
		kind = model.ReportKindUser
	}

	report, counted, err := s.reports.Add(ctx, roomID, targetID, kind, reporterID)
	if err != nil {
		return err
	}
	if !counted || kind != model.ReportKindDrawing {
		return nil
	}
	if len(report.Reporters) < drawingReportThreshold {
		return nil
	}

	strikes, err := s.reports.Strike(ctx, roomID, targetID, kind)
	if err != nil {
		return err
	}
	switch {
	case strikes == 1:
		if room.CurrentDrawerID == targetID {
			if err := s.engine.AbortDrawing(ctx, roomID); err != nil {
				return err
			}
		}
	case strikes >= 2:
		if err := s.participants.Ban(ctx, roomID, targetID); err != nil {
			return err
		}
		s.broadcaster.BroadcastRoomEvent(room.Code, "user_banned_from_room", map[string]any{"userId": targetID})
		if room.CurrentDrawerID == targetID {
			if err := s.engine.AbortDrawing(ctx, roomID); err != nil {
				return err
			}
		}
		wasDrawer := room.CurrentDrawerID == targetID
		return s.afterDeparture(ctx, room, wasDrawer)
	}
	return nil
}

// Voice forwards an opaque voice signaling call after gating on membership
// and the room's voice flag.
func (s *RoomService) Voice(ctx context.Context, roomID int64, userID, op string, payload []byte) ([]byte, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if !room.VoiceEnabled {
		return nil, ErrVoiceDisabled
	}
	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.IsActive {
		return nil, ErrNotParticipant
	}

	switch op {
	case "join":
		return s.voice.Join(ctx, room.Code, userID)
	case "create_transport":
		return s.voice.CreateTransport(ctx, room.Code, userID, payload)
	case "produce":
		return s.voice.Produce(ctx, room.Code, userID, payload)
	case "consume":
		return s.voice.Consume(ctx, room.Code, userID, payload)
	default:
		return nil, fmt.Errorf("unknown voice op %q", op)
	}
}

// ReadyUserIDs returns the users currently marked ready, best effort.
func (s *RoomService) ReadyUserIDs(ctx context.Context, roomID int64) []string {
	ready, err := s.cache.ReadyUsers(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Int64("roomId", roomID).Msg("Failed to read ready set")
		return nil
	}
	return ready
}

// DrawingAllowed reports whether the room is in the drawing phase,
// answered from the snapshot cache when it is warm.
func (s *RoomService) DrawingAllowed(ctx context.Context, roomID int64) bool {
	if snap, err := s.cache.GetByID(ctx, roomID); err == nil && snap != nil {
		return snap.RoundPhase == model.PhaseDrawing
	}
	room, err := s.rooms.FindByID(ctx, roomID)
	return err == nil && room != nil && room.RoundPhase == model.PhaseDrawing
}

// StartupSweep reaps state orphaned by the previous process: participants
// whose grace window died with it are counted out, stale socket bindings
// are cleared, and every room is re-checked for emptiness and player
// count. Runs before the join gate opens.
func (s *RoomService) StartupSweep(ctx context.Context) error {
	n, err := s.participants.SweepOrphans(ctx)
	if err != nil {
		return fmt.Errorf("sweep orphans: %w", err)
	}
	if n > 0 {
		log.Info().Int64("count", n).Msg("Deactivated orphaned participants")
	}

	playing, err := s.rooms.ListPlaying(ctx)
	if err != nil {
		return fmt.Errorf("list playing rooms: %w", err)
	}
	for _, room := range playing {
		count, err := s.participants.CountActive(ctx, room.ID)
		if err != nil {
			log.Error().Err(err).Str("code", room.Code).Msg("Failed to count participants during sweep")
			continue
		}
		if count == 0 {
			if err := s.DeleteRoom(ctx, room); err != nil {
				log.Error().Err(err).Str("code", room.Code).Msg("Failed to delete empty room during sweep")
			}
			continue
		}
		if err := s.engine.CheckPlayers(ctx, room.ID); err != nil {
			log.Error().Err(err).Str("code", room.Code).Msg("Insufficient-player check failed during sweep")
		}
	}

	rooms, err := s.rooms.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("list open rooms: %w", err)
	}
	for _, room := range rooms {
		count, err := s.participants.CountActive(ctx, room.ID)
		if err != nil {
			log.Error().Err(err).Str("code", room.Code).Msg("Failed to count participants during sweep")
			continue
		}
		// Freshly created rooms legitimately sit empty before the owner's
		// socket joins.
		if count == 0 && time.Since(room.CreatedAt) > 5*time.Minute {
			if err := s.DeleteRoom(ctx, room); err != nil {
				log.Error().Err(err).Str("code", room.Code).Msg("Failed to delete empty room during sweep")
			}
			continue
		}
		if room.Status != model.StatusPlaying {
			s.armIdleTimer(room.ID)
		}
	}
	return nil
}
