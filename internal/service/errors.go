package service

import (
	"errors"

	"github.com/drawdash/api/internal/repository"
)

// Service errors surfaced to clients. The handler maps these to the wire
// error payload via ErrorCode; anything unmapped reports internal_error.
var (
	ErrRoomNotFound               = errors.New("room not found")
	ErrRoomClosed                 = errors.New("room is closed")
	ErrNotAuthenticated           = errors.New("not authenticated")
	ErrNotParticipant             = errors.New("user is not in this room")
	ErrCannotUpdateAfterStart     = errors.New("settings are locked once the game has started")
	ErrInvalidTeam                = errors.New("invalid team")
	ErrNotTeamMode                = errors.New("room is not in team mode")
	ErrCannotChangeTeamAfterStart = errors.New("teams are locked once the game has started")
	ErrNotEnoughPlayers           = errors.New("not enough players to start")
	ErrBothTeamsNeedPlayers       = errors.New("both teams need players")
	ErrNotAllReady                = errors.New("not all players are ready")
	ErrNotYourTurn                = errors.New("it is not your turn")
	ErrWrongPhase                 = errors.New("action not allowed in the current phase")
	ErrInvalidWordChoice          = errors.New("word is not one of the offered options")
	ErrAlreadyGuessed             = errors.New("already guessed this round")
	ErrDrawerCannotGuess          = errors.New("the drawer cannot guess")
	ErrWrongTeam                  = errors.New("only the team opposing the drawer can guess")
	ErrRoundEnded                 = errors.New("the round has already ended")
	ErrServerSyncing              = errors.New("server is restoring state, try again shortly")
	ErrInvalidMaxPlayers          = errors.New("invalid max players")
	ErrCannotRemoveSelf           = errors.New("cannot remove yourself")
	ErrCannotRemoveDuringGame     = errors.New("cannot remove players during a game")
	ErrExitedDueToInactivity      = errors.New("seat lost after the disconnect grace expired")
	ErrVoiceDisabled              = errors.New("voice is not enabled in this room")
	ErrSelfReport                 = errors.New("cannot report yourself")
)

// OwnerOnlyError rejects an owner-gated action attempted by someone else.
// The action name becomes part of the wire code.
type OwnerOnlyError struct {
	Action string // e.g. "start_game"
}

func (e *OwnerOnlyError) Error() string {
	return "only the room owner can " + e.Action
}

// ErrorCode maps a service error to its wire code. Unknown errors map to
// internal_error and are logged server-side.
func ErrorCode(err error) string {
	var ownerErr *OwnerOnlyError
	if errors.As(err, &ownerErr) {
		return "only_owner_can_" + ownerErr.Action
	}
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, ErrRoomClosed):
		return "room_closed"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, repository.ErrRoomFull):
		return "room_full"
	case errors.Is(err, ErrNotParticipant):
		return "not_in_room"
	case errors.Is(err, ErrCannotUpdateAfterStart):
		return "cannot_update_after_game_started"
	case errors.Is(err, ErrInvalidTeam):
		return "invalid_team"
	case errors.Is(err, ErrNotTeamMode):
		return "not_team_mode"
	case errors.Is(err, ErrCannotChangeTeamAfterStart):
		return "cannot_change_team_after_game_started"
	case errors.Is(err, ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, ErrBothTeamsNeedPlayers):
		return "both_teams_need_players"
	case errors.Is(err, ErrNotAllReady):
		return "not_all_ready"
	case errors.Is(err, repository.ErrInsufficientFunds):
		return "insufficient_coins"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, ErrInvalidWordChoice):
		return "invalid_word_choice"
	case errors.Is(err, ErrAlreadyGuessed):
		return "already_guessed"
	case errors.Is(err, ErrDrawerCannotGuess):
		return "drawer_cannot_guess"
	case errors.Is(err, ErrWrongTeam):
		return "wrong_team"
	case errors.Is(err, ErrRoundEnded):
		return "round_ended"
	case errors.Is(err, repository.ErrBannedFromRoom):
		return "you_are_banned"
	case errors.Is(err, ErrServerSyncing):
		return "server_syncing"
	case errors.Is(err, ErrInvalidMaxPlayers):
		return "invalid_max_players"
	case errors.Is(err, ErrCannotRemoveSelf):
		return "cannot_remove_self"
	case errors.Is(err, ErrCannotRemoveDuringGame):
		return "cannot_remove_during_game"
	case errors.Is(err, ErrExitedDueToInactivity):
		return "exited_due_to_inactivity"
	case errors.Is(err, ErrVoiceDisabled):
		return "voice_disabled"
	case errors.Is(err, ErrSelfReport):
		return "cannot_report_self"
	default:
		return "internal_error"
	}
}
