package service

import (
	"context"
	"errors"
	"testing"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

func (f *fixture) startGame(t *testing.T, room *model.Room) *model.Room {
	t.Helper()
	if err := f.engine.StartGame(context.Background(), room.ID, room.OwnerID); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	return f.currentRoom(room.ID)
}

func (f *fixture) expire(room *model.Room, phase string) *model.Room {
	f.engine.HandleExpiry(context.Background(), room.ID, room.Code, phase)
	return f.currentRoom(room.ID)
}

func (f *fixture) toChoosingWord(t *testing.T, room *model.Room) *model.Room {
	t.Helper()
	fresh := f.expire(room, model.PhaseSelectingDrawer)
	if fresh.RoundPhase != model.PhaseChoosingWord {
		t.Fatalf("expected choosing_word, got %q", fresh.RoundPhase)
	}
	return fresh
}

func (f *fixture) toDrawing(t *testing.T, room *model.Room) *model.Room {
	t.Helper()
	fresh := f.toChoosingWord(t, room)
	if err := f.engine.ChooseWord(context.Background(), fresh.ID, fresh.CurrentDrawerID, fresh.CurrentWordOptions[0]); err != nil {
		t.Fatalf("ChooseWord: %v", err)
	}
	return f.currentRoom(room.ID)
}

func TestStartGameOwnerOnly(t *testing.T) {
	f := newFixture()
	room := f.makeRoom(model.ModeSolo, 3, 0, 50)

	err := f.engine.StartGame(context.Background(), room.ID, "user-2")
	var ownerErr *OwnerOnlyError
	if !errors.As(err, &ownerErr) {
		t.Fatalf("expected OwnerOnlyError, got %v", err)
	}
	if code := ErrorCode(err); code != "only_owner_can_start_game" {
		t.Errorf("error code %s", code)
	}
}

func TestStartGameNeedsTwoPlayers(t *testing.T) {
	f := newFixture()
	room := f.makeRoom(model.ModeSolo, 1, 0, 50)

	if err := f.engine.StartGame(context.Background(), room.ID, "user-1"); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("expected not_enough_players, got %v", err)
	}
}

func TestStartGameNeedsAllReady(t *testing.T) {
	f := newFixture()
	room := f.makeRoom(model.ModeSolo, 3, 0, 50)
	f.cache.UnmarkReady(context.Background(), room.ID, "user-3")

	if err := f.engine.StartGame(context.Background(), room.ID, "user-1"); !errors.Is(err, ErrNotAllReady) {
		t.Fatalf("expected not_all_ready, got %v", err)
	}
}

func TestStartGameTeamNeedsTwoPerTeam(t *testing.T) {
	f := newFixture()
	room := f.makeRoom(model.ModeTeam, 3, 0, 50) // blue: user-1,user-3; orange: user-2

	if err := f.engine.StartGame(context.Background(), room.ID, "user-1"); !errors.Is(err, ErrBothTeamsNeedPlayers) {
		t.Fatalf("expected both_teams_need_players, got %v", err)
	}
}

func TestStartGameChargesEntryAndOpensRoundOne(t *testing.T) {
	f := newFixture()
	room := f.makeRoom(model.ModeSolo, 3, 10, 50)

	fresh := f.startGame(t, room)
	if fresh.Status != model.StatusPlaying {
		t.Errorf("status %s, want playing", fresh.Status)
	}
	if fresh.RoundPhase != model.PhaseSelectingDrawer {
		t.Errorf("phase %s, want selecting_drawer", fresh.RoundPhase)
	}
	if fresh.CurrentRound != 1 {
		t.Errorf("round %d, want 1", fresh.CurrentRound)
	}
	if fresh.CurrentDrawerID == "" {
		t.Error("no drawer selected")
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if bal, _ := f.wallet.Balance(ctx, userN(i)); bal != 90 {
			t.Errorf("%s balance %d, want 90", userN(i), bal)
		}
		p, _ := f.parts.Find(ctx, room.ID, userN(i))
		if !p.HasPaidEntry {
			t.Errorf("%s entry not marked paid", userN(i))
		}
	}
	if !f.bc.has("clear_chat") {
		t.Error("clear_chat not broadcast")
	}
	if !f.bc.has("drawer_selected") {
		t.Error("drawer_selected not broadcast")
	}
}

func TestStartGameInsufficientCoins(t *testing.T) {
	f := newFixture()
	room := f.makeRoom(model.ModeSolo, 2, 500, 50)

	err := f.engine.StartGame(context.Background(), room.ID, "user-1")
	if !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	fresh := f.currentRoom(room.ID)
	if fresh.Status == model.StatusPlaying {
		t.Error("game started despite failed entry charge")
	}
	// Nobody was charged.
	if bal, _ := f.wallet.Balance(context.Background(), "user-1"); bal != 100 {
		t.Errorf("user-1 balance %d, want 100", bal)
	}
}

func TestSelectingDrawerExpiryOffersWords(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))

	fresh := f.toChoosingWord(t, room)
	if len(fresh.CurrentWordOptions) != 3 {
		t.Fatalf("expected 3 word options, got %v", fresh.CurrentWordOptions)
	}

	// Options go to the drawer's socket only.
	evt, ok := f.bc.last("word_options")
	if !ok {
		t.Fatal("word_options not emitted")
	}
	if evt.SocketID != "sock-"+fresh.CurrentDrawerID {
		t.Errorf("word_options went to %s, want drawer socket", evt.SocketID)
	}
}

func TestChooseWordGates(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toChoosingWord(t, room)
	ctx := context.Background()

	notDrawer := "user-1"
	if notDrawer == fresh.CurrentDrawerID {
		notDrawer = "user-2"
	}
	if err := f.engine.ChooseWord(ctx, room.ID, notDrawer, fresh.CurrentWordOptions[0]); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("non-drawer choose: %v", err)
	}
	if err := f.engine.ChooseWord(ctx, room.ID, fresh.CurrentDrawerID, "not-an-option"); !errors.Is(err, ErrInvalidWordChoice) {
		t.Errorf("invalid word: %v", err)
	}
}

func TestChooseWordEntersDrawing(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toDrawing(t, room)

	if fresh.RoundPhase != model.PhaseDrawing {
		t.Fatalf("phase %s, want drawing", fresh.RoundPhase)
	}
	if fresh.CurrentWord == "" {
		t.Error("no word committed")
	}
	found := false
	for _, w := range fresh.UsedWords {
		if w == fresh.CurrentWord {
			found = true
		}
	}
	if !found {
		t.Error("chosen word not recorded as used")
	}
}

func TestChoosingWordTimeoutBurnsLife(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toChoosingWord(t, room)
	drawer := fresh.CurrentDrawerID

	after := f.expire(fresh, model.PhaseChoosingWord)
	if after.RoundPhase != model.PhaseSelectingDrawer {
		t.Fatalf("expected restart in selecting_drawer, got %q", after.RoundPhase)
	}
	if after.CurrentRound != 1 {
		t.Errorf("round advanced to %d on timeout", after.CurrentRound)
	}
	p, _ := f.parts.Find(context.Background(), room.ID, drawer)
	if p.EliminationCount != 2 {
		t.Errorf("lives %d, want 2", p.EliminationCount)
	}
}

func TestChoosingWordTimeoutRemovesAtZeroLives(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toChoosingWord(t, room)
	drawer := fresh.CurrentDrawerID
	ctx := context.Background()

	f.parts.DecrementElimination(ctx, room.ID, drawer)
	f.parts.DecrementElimination(ctx, room.ID, drawer)

	f.expire(fresh, model.PhaseChoosingWord)
	if p, _ := f.parts.Find(ctx, room.ID, drawer); p != nil {
		t.Error("drawer not removed after losing last life")
	}
	evt, ok := f.bc.last("player_removed")
	if !ok {
		t.Fatal("player_removed not broadcast")
	}
	if data := evt.Data.(map[string]any); data["reason"] != "failed_to_choose_word" {
		t.Errorf("removal reason %v", data["reason"])
	}
}

func TestDrawingExpiryRevealsAndPaysDrawer(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toDrawing(t, room)
	ctx := context.Background()

	guesser := "user-1"
	if guesser == fresh.CurrentDrawerID {
		guesser = "user-2"
	}
	if err := f.guesses.Guess(ctx, room.ID, guesser, fresh.CurrentWord); err != nil {
		t.Fatalf("Guess: %v", err)
	}

	after := f.currentRoom(room.ID)
	if after.RoundPhase == model.PhaseDrawing {
		after = f.expire(after, model.PhaseDrawing)
	}
	if after.RoundPhase != model.PhaseReveal {
		t.Fatalf("phase %s, want reveal", after.RoundPhase)
	}

	// One of two guessers got the word: drawer earns 20*1/2 = 10.
	drawer, _ := f.parts.Find(ctx, room.ID, fresh.CurrentDrawerID)
	if drawer.Score != 10 {
		t.Errorf("drawer score %d, want 10", drawer.Score)
	}
	evt, ok := f.bc.last("guess_result")
	if !ok {
		t.Fatal("guess_result not broadcast")
	}
	if data := evt.Data.(map[string]any); data["word"] != fresh.CurrentWord {
		t.Errorf("revealed word %v, want %s", data["word"], fresh.CurrentWord)
	}
}

func TestRevealToIntervalToNextRound(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toDrawing(t, room)

	fresh = f.expire(fresh, model.PhaseDrawing)
	fresh = f.expire(fresh, model.PhaseReveal)
	if fresh.RoundPhase != model.PhaseInterval {
		t.Fatalf("phase %s, want interval", fresh.RoundPhase)
	}

	fresh = f.expire(fresh, model.PhaseInterval)
	if fresh.RoundPhase != model.PhaseSelectingDrawer {
		t.Fatalf("phase %s, want selecting_drawer", fresh.RoundPhase)
	}
	if fresh.CurrentRound != 2 {
		t.Errorf("round %d, want 2", fresh.CurrentRound)
	}
	if fresh.CurrentDrawerID == fresh.LastDrawerID {
		t.Error("same drawer two rounds in a row")
	}
}

func TestTargetReachedEndsGame(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 10, 5))
	fresh := f.toDrawing(t, room)
	ctx := context.Background()

	guesser := "user-1"
	if guesser == fresh.CurrentDrawerID {
		guesser = "user-2"
	}
	if err := f.guesses.Guess(ctx, room.ID, guesser, fresh.CurrentWord); err != nil {
		t.Fatalf("Guess: %v", err)
	}

	after := f.currentRoom(room.ID)
	if after.RoundPhase == model.PhaseDrawing {
		after = f.expire(after, model.PhaseDrawing)
	}
	after = f.expire(after, model.PhaseReveal)

	if after.Status != model.StatusFinished {
		t.Errorf("status %s, want finished", after.Status)
	}
	if after.RoundPhase != model.PhaseIntervalEnding {
		t.Errorf("phase %s, want interval_ending", after.RoundPhase)
	}
	if !f.bc.has("game_ended") {
		t.Error("game_ended not broadcast")
	}

	// Winner got the podium payout on top of the 90 left after entry.
	if bal, _ := f.wallet.Balance(ctx, guesser); bal != 90+30 {
		t.Errorf("winner balance %d, want 120", bal)
	}
}

func TestBackToLobbyResetsEverything(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 5))
	fresh := f.toDrawing(t, room)
	ctx := context.Background()

	guesser := "user-1"
	if guesser == fresh.CurrentDrawerID {
		guesser = "user-2"
	}
	f.guesses.Guess(ctx, room.ID, guesser, fresh.CurrentWord)
	after := f.currentRoom(room.ID)
	if after.RoundPhase == model.PhaseDrawing {
		after = f.expire(after, model.PhaseDrawing)
	}
	after = f.expire(after, model.PhaseReveal)
	after = f.expire(after, model.PhaseIntervalEnding)

	if after.Status != model.StatusLobby {
		t.Errorf("status %s, want lobby", after.Status)
	}
	if after.RoundPhase != "" || after.CurrentRound != 0 {
		t.Errorf("phase %q round %d after lobby reset", after.RoundPhase, after.CurrentRound)
	}
	active, _ := f.parts.ListActive(ctx, room.ID)
	for _, p := range active {
		if p.Score != 0 || p.IsDrawer || p.HasGuessedThisRound {
			t.Errorf("%s not reset: %+v", p.UserID, p)
		}
	}
	if !f.bc.has("room_back_to_lobby") {
		t.Error("room_back_to_lobby not broadcast")
	}
}

func TestSkipTurnRestartsRound(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toChoosingWord(t, room)
	drawer := fresh.CurrentDrawerID
	ctx := context.Background()

	if err := f.engine.SkipTurn(ctx, room.ID, drawer); err != nil {
		t.Fatalf("SkipTurn: %v", err)
	}
	after := f.currentRoom(room.ID)
	if after.RoundPhase != model.PhaseSelectingDrawer {
		t.Errorf("phase %s, want selecting_drawer", after.RoundPhase)
	}
	if after.CurrentRound != 1 {
		t.Errorf("round advanced to %d on skip", after.CurrentRound)
	}
	if !f.bc.has("drawer_skipped") {
		t.Error("drawer_skipped not broadcast")
	}
	if p, _ := f.parts.Find(ctx, room.ID, drawer); p == nil {
		t.Error("drawer removed on first skip")
	}
}

func TestThirdSkipRemovesPlayer(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toChoosingWord(t, room)
	drawer := fresh.CurrentDrawerID
	ctx := context.Background()

	f.parts.IncrementSkip(ctx, room.ID, drawer)
	f.parts.IncrementSkip(ctx, room.ID, drawer)
	if err := f.engine.SkipTurn(ctx, room.ID, drawer); err != nil {
		t.Fatalf("SkipTurn: %v", err)
	}
	if p, _ := f.parts.Find(ctx, room.ID, drawer); p != nil {
		t.Error("player not removed after third skip")
	}
	evt, ok := f.bc.last("player_removed")
	if !ok {
		t.Fatal("player_removed not broadcast")
	}
	if data := evt.Data.(map[string]any); data["reason"] != "skipped_too_often" {
		t.Errorf("removal reason %v", data["reason"])
	}
}

func TestSkipTurnNotDrawer(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toChoosingWord(t, room)

	notDrawer := "user-1"
	if notDrawer == fresh.CurrentDrawerID {
		notDrawer = "user-2"
	}
	if err := f.engine.SkipTurn(context.Background(), room.ID, notDrawer); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("expected not_your_turn, got %v", err)
	}
}

func TestAbortDrawingRestsInInterval(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))
	fresh := f.toDrawing(t, room)
	drawer := fresh.CurrentDrawerID

	if err := f.engine.AbortDrawing(context.Background(), room.ID); err != nil {
		t.Fatalf("AbortDrawing: %v", err)
	}
	after := f.currentRoom(room.ID)
	if after.RoundPhase != model.PhaseInterval {
		t.Errorf("phase %s, want interval", after.RoundPhase)
	}
	if after.CurrentDrawerID != "" || after.CurrentWord != "" {
		t.Error("drawer/word state not cleared on abort")
	}
	if after.LastDrawerID != drawer {
		t.Errorf("last drawer %s, want %s", after.LastDrawerID, drawer)
	}
}

func TestCheckPlayersEndsInsufficientGame(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 2, 0, 50))
	ctx := context.Background()

	f.parts.SetActive(ctx, room.ID, "user-2", false)
	if err := f.engine.CheckPlayers(ctx, room.ID); err != nil {
		t.Fatalf("CheckPlayers: %v", err)
	}
	after := f.currentRoom(room.ID)
	if after.Status != model.StatusClosed {
		t.Errorf("status %s, want closed", after.Status)
	}
	if !f.bc.has("game_ended_insufficient_players") {
		t.Error("game_ended_insufficient_players not broadcast")
	}
}

func TestHandleExpiryIgnoresStalePhase(t *testing.T) {
	f := newFixture()
	room := f.startGame(t, f.makeRoom(model.ModeSolo, 3, 0, 50))

	// Timer armed for a phase the room already left.
	before := f.currentRoom(room.ID)
	f.engine.HandleExpiry(context.Background(), room.ID, room.Code, model.PhaseDrawing)
	after := f.currentRoom(room.ID)
	if after.RoundPhase != before.RoundPhase {
		t.Errorf("stale expiry moved the phase to %s", after.RoundPhase)
	}
}
