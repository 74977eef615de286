package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

// GuessService validates guesses, awards points, and triggers early round
// termination. Precondition failures are soft: they come back to the
// guesser as structured errors and never mutate state.
type GuessService struct {
	rooms        repository.RoomRepository
	participants repository.ParticipantRepository
	engine       *PhaseEngine
	broadcaster  Broadcaster
}

// NewGuessService creates a GuessService.
func NewGuessService(
	rooms repository.RoomRepository,
	participants repository.ParticipantRepository,
	engine *PhaseEngine,
	broadcaster Broadcaster,
) *GuessService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &GuessService{
		rooms:        rooms,
		participants: participants,
		engine:       engine,
		broadcaster:  broadcaster,
	}
}

// guessReward converts remaining phase time into points: one point per
// started 8-second slice left on the clock, capped per round.
func guessReward(remaining int) int {
	reward := (remaining + 7) / 8
	if reward > maxPointsPerRound {
		reward = maxPointsPerRound
	}
	if reward < 1 {
		reward = 1
	}
	return reward
}

// guessingTeam returns the team whose turn it is to guess: teams alternate
// drawing, so the drawer's opponents hold the guess.
func guessingTeam(drawerTeam string) string {
	if drawerTeam == model.TeamBlue {
		return model.TeamOrange
	}
	return model.TeamBlue
}

// Guess evaluates one submitted guess.
func (s *GuessService) Guess(ctx context.Context, roomID int64, userID, guess string) error {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	switch room.RoundPhase {
	case model.PhaseDrawing:
	case model.PhaseReveal, model.PhaseInterval:
		return ErrRoundEnded
	default:
		return ErrWrongPhase
	}
	if room.CurrentWord == "" {
		return ErrWrongPhase
	}

	p, err := s.participants.Find(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if p == nil || !p.IsActive {
		return ErrNotParticipant
	}
	if userID == room.CurrentDrawerID {
		return ErrDrawerCannotGuess
	}
	if p.HasGuessedThisRound {
		return ErrAlreadyGuessed
	}

	var drawerTeam string
	if room.GameMode == model.ModeTeam {
		if drawer, err := s.participants.Find(ctx, roomID, room.CurrentDrawerID); err == nil && drawer != nil {
			drawerTeam = drawer.Team
		}
		if p.Team != guessingTeam(drawerTeam) {
			return ErrWrongTeam
		}
	}

	if !strings.EqualFold(strings.TrimSpace(guess), room.CurrentWord) {
		s.broadcaster.BroadcastRoomEvent(room.Code, "incorrect_guess", map[string]any{
			"userId": userID,
			"guess":  guess,
		})
		return nil
	}

	reward := guessReward(room.RemainingSeconds(time.Now()))

	if room.GameMode == model.ModeTeam {
		return s.awardTeam(ctx, room, p, reward)
	}
	return s.awardSolo(ctx, room, p, reward)
}

func (s *GuessService) awardSolo(ctx context.Context, room *model.Room, p *model.Participant, reward int) error {
	won, err := s.participants.AwardPoints(ctx, room.ID, p.UserID, reward)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyGuessed
	}

	s.broadcaster.BroadcastRoomEvent(room.Code, "correct_guess", map[string]any{
		"userId": p.UserID,
		"reward": reward,
	})
	s.broadcaster.BroadcastRoomEvent(room.Code, "score_update", map[string]any{
		"userId": p.UserID,
		"score":  p.Score + reward,
	})
	log.Info().Str("code", room.Code).Str("userId", p.UserID).Int("reward", reward).Msg("Correct guess")

	active, err := s.participants.ListActive(ctx, room.ID)
	if err != nil {
		return err
	}
	allGuessed := true
	targetReached := false
	for _, q := range active {
		if q.UserID != room.CurrentDrawerID && !q.HasGuessedThisRound {
			allGuessed = false
		}
		if q.Score >= room.TargetPoints {
			targetReached = true
		}
	}
	if allGuessed || targetReached {
		return s.engine.FinishDrawing(ctx, room.ID)
	}
	return nil
}

// awardTeam pays the guesser's whole team exactly once per round inside a
// row-locked transaction, then ends the round immediately. The team total
// is the first-correct signal: a concurrent teammate's award loses the lock
// race and surfaces as already_guessed.
func (s *GuessService) awardTeam(ctx context.Context, room *model.Room, p *model.Participant, reward int) error {
	won, err := s.participants.AwardTeamPoints(ctx, room.ID, p.Team, reward)
	if err != nil {
		return err
	}
	if !won {
		return ErrAlreadyGuessed
	}

	s.broadcaster.BroadcastRoomEvent(room.Code, "correct_guess", map[string]any{
		"userId": p.UserID,
		"team":   p.Team,
		"reward": reward,
	})
	active, err := s.participants.ListActive(ctx, room.ID)
	if err == nil {
		for _, q := range active {
			if q.Team == p.Team {
				s.broadcaster.BroadcastRoomEvent(room.Code, "score_update", map[string]any{
					"userId": q.UserID,
					"score":  q.Score,
				})
			}
		}
	}
	log.Info().Str("code", room.Code).Str("team", p.Team).Int("reward", reward).Msg("Team first-correct")

	return s.engine.FinishDrawing(ctx, room.ID)
}
