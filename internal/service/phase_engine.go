package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

// PhaseDurations are the timed-phase lengths. Fixed in production, but
// injectable so tests can run rounds in milliseconds.
type PhaseDurations struct {
	SelectingDrawer time.Duration
	ChoosingWord    time.Duration
	Drawing         time.Duration
	Reveal          time.Duration
	Interval        time.Duration
	IntervalEnding  time.Duration
}

// DefaultPhaseDurations returns the production phase lengths.
func DefaultPhaseDurations() PhaseDurations {
	return PhaseDurations{
		SelectingDrawer: 5 * time.Second,
		ChoosingWord:    10 * time.Second,
		Drawing:         80 * time.Second,
		Reveal:          7 * time.Second,
		Interval:        4 * time.Second,
		IntervalEnding:  2 * time.Second,
	}
}

const (
	maxPointsPerRound = 10
	wordOptionCount   = 3
	eliminationLives  = 3
	maxSkips          = 3
)

// PhaseEngine drives the per-room round state machine:
// selecting_drawer -> choosing_word -> drawing -> reveal -> interval and
// back, until a player or team reaches the target score. Every phase write
// goes through the store's atomic transition, so concurrent timers, guesses
// and reconnects race safely: the loser of a compare-and-set exits without
// acting.
type PhaseEngine struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	wallet       repository.WalletRepository
	cache        repository.RoomCache
	picker       *WordPicker
	clock        *PhaseClock
	broadcaster  Broadcaster
	durations    PhaseDurations
}

// NewPhaseEngine creates a PhaseEngine and attaches it to the clock.
func NewPhaseEngine(
	rooms repository.RoomRepository,
	participants repository.ParticipantRepository,
	wallet repository.WalletRepository,
	cache repository.RoomCache,
	picker *WordPicker,
	clock *PhaseClock,
	broadcaster Broadcaster,
	durations PhaseDurations,
) *PhaseEngine {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	e := &PhaseEngine{
		rooms:        rooms,
		participants: participants,
		wallet:       wallet,
		cache:        cache,
		picker:       picker,
		clock:        clock,
		broadcaster:  broadcaster,
		durations:    durations,
	}
	clock.SetHandler(e.HandleExpiry)
	return e
}

func secs(d time.Duration) int { return int(d / time.Second) }

func (e *PhaseEngine) roomByID(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// transition runs the atomic phase CAS and refreshes the cache snapshot on
// success. (nil, nil) means another writer got there first.
func (e *PhaseEngine) transition(ctx context.Context, roomID int64, fromPhase string, next model.PhaseState) (*model.Room, error) {
	room, err := e.rooms.TransitionPhase(ctx, roomID, fromPhase, next)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, nil
	}
	e.refreshSnapshot(ctx, room)
	return room, nil
}

func (e *PhaseEngine) refreshSnapshot(ctx context.Context, room *model.Room) {
	snap := &model.Snapshot{
		RoomID:            room.ID,
		Code:              room.Code,
		Status:            room.Status,
		RoundPhase:        room.RoundPhase,
		RoundPhaseEndTime: room.RoundPhaseEndTime,
	}
	if err := e.cache.SetSnapshot(ctx, snap); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to refresh room snapshot")
	}
}

func (e *PhaseEngine) broadcastPhase(room *model.Room, duration time.Duration) {
	e.broadcaster.BroadcastRoomEvent(room.Code, "phase_change", map[string]any{
		"phase":        room.RoundPhase,
		"duration":     secs(duration),
		"phaseEndTime": room.RoundPhaseEndTime,
		"round":        room.CurrentRound,
	})
}

// StartGame validates the start gates, charges entry fees, and opens round
// one. Owner-only; requires enough players and every non-owner ready.
func (e *PhaseEngine) StartGame(ctx context.Context, roomID int64, userID string) error {
	room, err := e.roomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != userID {
		return &OwnerOnlyError{Action: "start_game"}
	}
	if room.Status != model.StatusLobby && room.Status != model.StatusWaiting {
		return ErrWrongPhase
	}

	active, err := e.participants.ListActive(ctx, roomID)
	if err != nil {
		return err
	}
	if len(active) < 2 {
		return ErrNotEnoughPlayers
	}
	if room.GameMode == model.ModeTeam {
		counts := map[string]int{}
		for _, p := range active {
			counts[p.Team]++
		}
		if counts[model.TeamBlue] < 2 || counts[model.TeamOrange] < 2 {
			return ErrBothTeamsNeedPlayers
		}
	}

	ready, err := e.cache.ReadyUsers(ctx, roomID)
	if err != nil {
		return err
	}
	readySet := make(map[string]bool, len(ready))
	for _, id := range ready {
		readySet[id] = true
	}
	for _, p := range active {
		if p.UserID != room.OwnerID && !readySet[p.UserID] {
			return ErrNotAllReady
		}
	}

	if room.EntryPoints > 0 {
		var unpaid []string
		for _, p := range active {
			if !p.HasPaidEntry {
				unpaid = append(unpaid, p.UserID)
			}
		}
		if len(unpaid) > 0 {
			if err := e.wallet.DebitAll(ctx, unpaid, room.EntryPoints, "entry_fee", roomID); err != nil {
				return err
			}
			for _, id := range unpaid {
				if err := e.participants.MarkPaidEntry(ctx, roomID, id); err != nil {
					log.Error().Err(err).Str("userId", id).Msg("Failed to mark entry paid")
				}
			}
		}
	}

	if err := e.cache.ClearReady(ctx, roomID); err != nil {
		log.Warn().Err(err).Int64("roomId", roomID).Msg("Failed to clear ready set at game start")
	}
	e.broadcaster.BroadcastRoomEvent(room.Code, "clear_chat", nil)
	log.Info().Str("code", room.Code).Int("players", len(active)).Str("mode", room.GameMode).Msg("Game started")

	room.CurrentDrawerID = ""
	room.LastDrawerID = ""
	room.DrawnUserIDs = nil
	room.UsedWords = nil
	return e.startRound(ctx, room, "", 1)
}

// startRound selects the next drawer and CASes fromPhase into
// selecting_drawer. A nil CAS result means a concurrent writer advanced the
// room; the caller's work is already done.
func (e *PhaseEngine) startRound(ctx context.Context, room *model.Room, fromPhase string, round int) error {
	active, err := e.participants.ListActive(ctx, room.ID)
	if err != nil {
		return err
	}
	if !enoughPlayers(room.GameMode, active) {
		return e.endInsufficient(ctx, room, fromPhase)
	}

	lastDrawer := room.CurrentDrawerID
	if lastDrawer == "" {
		lastDrawer = room.LastDrawerID
	}
	drawerID, drawn := NextDrawer(active, room.DrawnUserIDs, room.GameMode, lastDrawer)
	if drawerID == "" {
		return e.endInsufficient(ctx, room, fromPhase)
	}

	end := time.Now().Add(e.durations.SelectingDrawer)
	next := room.PhaseState()
	next.Status = model.StatusPlaying
	next.CurrentRound = round
	next.RoundPhase = model.PhaseSelectingDrawer
	next.RoundPhaseEndTime = &end
	next.CurrentDrawerID = drawerID
	next.CurrentWord = ""
	next.CurrentWordOptions = nil
	next.DrawnUserIDs = drawn
	next.LastDrawerID = lastDrawer

	updated, err := e.transition(ctx, room.ID, fromPhase, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	if err := e.participants.SetDrawer(ctx, room.ID, drawerID); err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Failed to set drawer flag")
	}
	if err := e.participants.ResetRoundFlags(ctx, room.ID); err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Failed to reset round flags")
	}

	e.broadcastPhase(updated, e.durations.SelectingDrawer)
	e.broadcaster.BroadcastRoomEvent(updated.Code, "drawer_selected", map[string]any{
		"drawer":          drawerID,
		"previewDuration": secs(e.durations.SelectingDrawer),
	})
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseSelectingDrawer, end)
	return nil
}

func enoughPlayers(gameMode string, active []*model.Participant) bool {
	if gameMode == model.ModeTeam {
		counts := map[string]int{}
		for _, p := range active {
			counts[p.Team]++
		}
		return counts[model.TeamBlue] >= 2 && counts[model.TeamOrange] >= 2
	}
	return len(active) >= 2
}

// HandleExpiry is the clock callback: it re-reads fresh state, confirms the
// phase is still the one the timer was armed for, and advances. A handler
// failure falls back to forcing the next drawer so the room cannot stall.
func (e *PhaseEngine) HandleExpiry(ctx context.Context, roomID int64, code, phase string) {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("Room lookup failed in phase-end handler")
		return
	}
	if room == nil || room.RoundPhase != phase {
		return
	}

	switch phase {
	case model.PhaseSelectingDrawer:
		err = e.enterChoosingWord(ctx, room)
	case model.PhaseChoosingWord:
		err = e.choosingWordTimeout(ctx, room)
	case model.PhaseDrawing:
		err = e.enterReveal(ctx, room)
	case model.PhaseReveal:
		err = e.afterReveal(ctx, room)
	case model.PhaseInterval:
		err = e.startRound(ctx, room, model.PhaseInterval, room.CurrentRound+1)
	case model.PhaseIntervalEnding:
		err = e.backToLobby(ctx, room)
	case model.PhaseInternalProcessing:
		// Process died mid-claim. Force the next drawer.
		err = e.startRound(ctx, room, model.PhaseInternalProcessing, room.CurrentRound)
	default:
		return
	}
	if err != nil {
		log.Error().Err(err).Str("code", code).Str("phase", phase).
			Msg("Phase-end handler failed, recovering with next drawer")
		e.recoverRoom(ctx, roomID)
	}
}

func (e *PhaseEngine) recoverRoom(ctx context.Context, roomID int64) {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil || room == nil || room.Status != model.StatusPlaying {
		return
	}
	if err := e.startRound(ctx, room, room.RoundPhase, room.CurrentRound); err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Recovery round start failed")
	}
}

// enterChoosingWord claims the internal sentinel before touching the word
// catalog, so a racing caller cannot compute options twice, then CASes into
// choosing_word with the options attached.
func (e *PhaseEngine) enterChoosingWord(ctx context.Context, room *model.Room) error {
	end := time.Now().Add(e.durations.ChoosingWord)
	claim := room.PhaseState()
	claim.RoundPhase = model.PhaseInternalProcessing
	claim.RoundPhaseEndTime = &end
	claimed, err := e.transition(ctx, room.ID, model.PhaseSelectingDrawer, claim)
	if err != nil {
		return err
	}
	if claimed == nil {
		return nil
	}

	options, err := e.picker.Pick(ctx, claimed, wordOptionCount)
	if err != nil {
		return fmt.Errorf("pick word options: %w", err)
	}

	end = time.Now().Add(e.durations.ChoosingWord)
	next := claimed.PhaseState()
	next.RoundPhase = model.PhaseChoosingWord
	next.RoundPhaseEndTime = &end
	next.CurrentWordOptions = options
	updated, err := e.transition(ctx, claimed.ID, model.PhaseInternalProcessing, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	e.broadcastPhase(updated, e.durations.ChoosingWord)
	// Resolve the drawer's socket at send time; they may have reconnected
	// since the phase began.
	if sock := e.broadcaster.SocketIDForUser(updated.CurrentDrawerID); sock != "" {
		e.broadcaster.EmitToSocket(sock, "word_options", map[string]any{
			"words":    options,
			"duration": secs(e.durations.ChoosingWord),
		})
	}
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseChoosingWord, end)
	return nil
}

// ChooseWord is the drawer committing to one of the offered options, moving
// choosing_word into drawing.
func (e *PhaseEngine) ChooseWord(ctx context.Context, roomID int64, userID, word string) error {
	room, err := e.roomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CurrentDrawerID != userID {
		return ErrNotYourTurn
	}
	if room.RoundPhase != model.PhaseChoosingWord {
		return ErrWrongPhase
	}
	valid := false
	for _, w := range room.CurrentWordOptions {
		if w == word {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidWordChoice
	}

	end := time.Now().Add(e.durations.Drawing)
	next := room.PhaseState()
	next.RoundPhase = model.PhaseDrawing
	next.RoundPhaseEndTime = &end
	next.CurrentWord = word
	next.CurrentWordOptions = nil
	next.UsedWords = append(append([]string{}, room.UsedWords...), word)

	updated, err := e.transition(ctx, roomID, model.PhaseChoosingWord, next)
	if err != nil {
		return err
	}
	if updated == nil {
		// The choose-word timer beat this request.
		return ErrWrongPhase
	}

	if err := e.participants.ResetElimination(ctx, roomID, userID); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to reset elimination lives")
	}
	e.clock.Cancel(room.Code, model.PhaseChoosingWord)
	e.broadcastPhase(updated, e.durations.Drawing)
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseDrawing, end)
	return nil
}

// choosingWordTimeout burns one of the drawer's lives and moves on; at zero
// lives the drawer is removed from the room entirely.
func (e *PhaseEngine) choosingWordTimeout(ctx context.Context, room *model.Room) error {
	drawerID := room.CurrentDrawerID
	lives, err := e.participants.DecrementElimination(ctx, room.ID, drawerID)
	if err != nil {
		return fmt.Errorf("decrement elimination: %w", err)
	}
	if lives <= 0 {
		if err := e.participants.Remove(ctx, room.ID, drawerID); err != nil {
			log.Error().Err(err).Str("userId", drawerID).Msg("Failed to remove eliminated drawer")
		}
		e.broadcaster.BroadcastRoomEvent(room.Code, "player_removed", map[string]any{
			"userId": drawerID,
			"reason": "failed_to_choose_word",
		})
		log.Info().Str("code", room.Code).Str("userId", drawerID).Msg("Drawer eliminated after repeated choose-word timeouts")
	}
	return e.startRound(ctx, room, model.PhaseChoosingWord, room.CurrentRound)
}

// SkipTurn lets the current drawer give up the turn. Three skips in one
// game removes the player.
func (e *PhaseEngine) SkipTurn(ctx context.Context, roomID int64, userID string) error {
	room, err := e.roomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CurrentDrawerID != userID {
		return ErrNotYourTurn
	}
	if room.RoundPhase != model.PhaseChoosingWord && room.RoundPhase != model.PhaseDrawing {
		return ErrWrongPhase
	}

	skips, err := e.participants.IncrementSkip(ctx, roomID, userID)
	if err != nil {
		return err
	}
	e.broadcaster.BroadcastRoomEvent(room.Code, "drawer_skipped", map[string]any{"drawer": userID})
	if skips >= maxSkips {
		if err := e.participants.Remove(ctx, roomID, userID); err != nil {
			log.Error().Err(err).Str("userId", userID).Msg("Failed to remove skipping drawer")
		}
		e.broadcaster.BroadcastRoomEvent(room.Code, "player_removed", map[string]any{
			"userId": userID,
			"reason": "skipped_too_often",
		})
	}
	return e.startRound(ctx, room, room.RoundPhase, room.CurrentRound)
}

// FinishDrawing ends the drawing phase early, used when every eligible
// guesser got the word or a team scored first-correct. No-op if the phase
// already moved.
func (e *PhaseEngine) FinishDrawing(ctx context.Context, roomID int64) error {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil || room.RoundPhase != model.PhaseDrawing {
		return nil
	}
	return e.enterReveal(ctx, room)
}

// AbortDrawing drops the current turn without a reveal: drawer left, or a
// drawing report struck. Drawer and word state are cleared and the room
// rests in interval before the next round.
func (e *PhaseEngine) AbortDrawing(ctx context.Context, roomID int64) error {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return nil
	}
	switch room.RoundPhase {
	case model.PhaseSelectingDrawer, model.PhaseChoosingWord, model.PhaseDrawing:
	default:
		return nil
	}

	fromPhase := room.RoundPhase
	end := time.Now().Add(e.durations.Interval)
	next := room.PhaseState()
	next.RoundPhase = model.PhaseInterval
	next.RoundPhaseEndTime = &end
	next.CurrentDrawerID = ""
	next.CurrentWord = ""
	next.CurrentWordOptions = nil
	next.LastDrawerID = room.CurrentDrawerID

	updated, err := e.transition(ctx, roomID, fromPhase, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	e.clock.Cancel(room.Code, fromPhase)
	e.broadcaster.BroadcastRoomEvent(room.Code, "drawer_skipped", map[string]any{"drawer": room.CurrentDrawerID})
	e.broadcastPhase(updated, e.durations.Interval)
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseInterval, end)
	return nil
}

// enterReveal moves drawing into reveal, pays the drawer in solo mode, and
// reveals the word to the room.
func (e *PhaseEngine) enterReveal(ctx context.Context, room *model.Room) error {
	end := time.Now().Add(e.durations.Reveal)
	next := room.PhaseState()
	next.RoundPhase = model.PhaseReveal
	next.RoundPhaseEndTime = &end

	updated, err := e.transition(ctx, room.ID, model.PhaseDrawing, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	e.clock.Cancel(room.Code, model.PhaseDrawing)

	active, err := e.participants.ListActive(ctx, room.ID)
	if err != nil {
		return err
	}
	if room.GameMode == model.ModeSolo {
		guessed := 0
		for _, p := range active {
			if p.UserID != room.CurrentDrawerID && p.HasGuessedThisRound {
				guessed++
			}
		}
		if guessed > 0 {
			reward := 20 * guessed / maxInt(1, len(active)-1)
			if reward > maxPointsPerRound {
				reward = maxPointsPerRound
			}
			if err := e.participants.AwardDrawerPoints(ctx, room.ID, room.CurrentDrawerID, reward); err != nil {
				log.Error().Err(err).Str("code", room.Code).Msg("Failed to award drawer points")
			} else if p, err := e.participants.Find(ctx, room.ID, room.CurrentDrawerID); err == nil && p != nil {
				e.broadcaster.BroadcastRoomEvent(room.Code, "score_update", map[string]any{
					"userId": p.UserID,
					"score":  p.Score,
				})
			}
		}
	}
	if err := e.participants.MarkDrawn(ctx, room.ID, room.CurrentDrawerID); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to mark drawer as drawn")
	}

	e.broadcastPhase(updated, e.durations.Reveal)
	e.broadcaster.BroadcastRoomEvent(room.Code, "guess_result", map[string]any{"word": room.CurrentWord})
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseReveal, end)
	return nil
}

// afterReveal either ends the game when a player or team has reached the
// target, or rests in interval before the next round.
func (e *PhaseEngine) afterReveal(ctx context.Context, room *model.Room) error {
	active, err := e.participants.ListActive(ctx, room.ID)
	if err != nil {
		return err
	}

	reached := false
	if room.GameMode == model.ModeTeam {
		for _, total := range TeamScores(active) {
			if total >= room.TargetPoints {
				reached = true
			}
		}
	} else {
		for _, p := range active {
			if p.Score >= room.TargetPoints {
				reached = true
			}
		}
	}
	if reached {
		return e.endGame(ctx, room, active)
	}

	end := time.Now().Add(e.durations.Interval)
	next := room.PhaseState()
	next.RoundPhase = model.PhaseInterval
	next.RoundPhaseEndTime = &end
	next.CurrentWord = ""
	next.CurrentWordOptions = nil

	updated, err := e.transition(ctx, room.ID, model.PhaseReveal, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	e.broadcastPhase(updated, e.durations.Interval)
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseInterval, end)
	return nil
}

func (e *PhaseEngine) endGame(ctx context.Context, room *model.Room, active []*model.Participant) error {
	rankings := ComputeRankings(active, room.GameMode, room.EntryPoints)

	end := time.Now().Add(e.durations.IntervalEnding)
	next := room.PhaseState()
	next.Status = model.StatusFinished
	next.RoundPhase = model.PhaseIntervalEnding
	next.RoundPhaseEndTime = &end
	next.CurrentDrawerID = ""
	next.CurrentWord = ""
	next.CurrentWordOptions = nil
	next.LastDrawerID = room.CurrentDrawerID

	updated, err := e.transition(ctx, room.ID, model.PhaseReveal, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	for _, rk := range rankings {
		if rk.Reward > 0 {
			if err := e.wallet.Credit(ctx, rk.UserID, rk.Reward, "game_reward", room.ID); err != nil {
				log.Error().Err(err).Str("userId", rk.UserID).Msg("Failed to credit game reward")
			}
		}
	}

	e.broadcaster.BroadcastRoomEvent(room.Code, "game_ended", map[string]any{
		"rankings":  rankings,
		"entryCost": room.EntryPoints,
		"gameMode":  room.GameMode,
	})
	log.Info().Str("code", room.Code).Int("round", room.CurrentRound).Msg("Game ended")
	e.clock.Schedule(updated.ID, updated.Code, model.PhaseIntervalEnding, end)
	return nil
}

// backToLobby resets the room and everyone's per-game state after the
// end-of-game pause.
func (e *PhaseEngine) backToLobby(ctx context.Context, room *model.Room) error {
	next := model.PhaseState{
		Status:       model.StatusLobby,
		CurrentRound: 0,
	}
	updated, err := e.transition(ctx, room.ID, model.PhaseIntervalEnding, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}

	if err := e.participants.ResetGame(ctx, room.ID); err != nil {
		log.Error().Err(err).Str("code", room.Code).Msg("Failed to reset participants for lobby")
	}
	if err := e.participants.SetDrawer(ctx, room.ID, ""); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to clear drawer flags")
	}
	if err := e.cache.ClearReady(ctx, room.ID); err != nil {
		log.Warn().Err(err).Str("code", room.Code).Msg("Failed to clear ready set")
	}
	e.broadcaster.BroadcastRoomEvent(room.Code, "room_back_to_lobby", nil)
	return nil
}

// endInsufficient closes a game that can no longer continue: solo needs two
// active players, team mode two per team.
func (e *PhaseEngine) endInsufficient(ctx context.Context, room *model.Room, fromPhase string) error {
	next := room.PhaseState()
	next.Status = model.StatusClosed
	next.RoundPhase = ""
	next.RoundPhaseEndTime = nil
	next.CurrentDrawerID = ""
	next.CurrentWord = ""
	next.CurrentWordOptions = nil

	updated, err := e.transition(ctx, room.ID, fromPhase, next)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	e.clock.CancelAll(room.Code)
	e.broadcaster.BroadcastRoomEvent(room.Code, "game_ended_insufficient_players", nil)
	log.Info().Str("code", room.Code).Msg("Game ended: insufficient players")
	return nil
}

// CheckPlayers runs the insufficient-player check against current state,
// called by the session layer after a leave or grace expiry mid-game.
func (e *PhaseEngine) CheckPlayers(ctx context.Context, roomID int64) error {
	room, err := e.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil || room.Status != model.StatusPlaying {
		return nil
	}
	active, err := e.participants.ListActive(ctx, roomID)
	if err != nil {
		return err
	}
	if enoughPlayers(room.GameMode, active) {
		return nil
	}
	return e.endInsufficient(ctx, room, room.RoundPhase)
}

// Rebuild re-arms phase timers from persistent state, at startup before the
// join gate opens.
func (e *PhaseEngine) Rebuild(ctx context.Context) error {
	return e.clock.Rebuild(ctx)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
