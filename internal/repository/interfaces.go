// Package repository defines the storage interfaces used by the service
// layer. Postgres implementations live in the postgres subpackage, the
// Redis-backed cache in the redis subpackage.
package repository

import (
	"context"
	"time"

	"github.com/drawdash/api/internal/model"
)

// RoomRepository persists rooms. TransitionPhase is the only way phase
// fields change once a game is running.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) (*model.Room, error)
	FindByID(ctx context.Context, id int64) (*model.Room, error)
	FindByCode(ctx context.Context, code string) (*model.Room, error)
	ListPublic(ctx context.Context) ([]*model.Room, error)

	// TransitionPhase atomically moves the room from fromPhase (empty
	// string matches a NULL phase) to the given state. Returns the updated
	// room, or (nil, nil) when another writer already moved the phase.
	TransitionPhase(ctx context.Context, roomID int64, fromPhase string, next model.PhaseState) (*model.Room, error)

	// ListPlaying returns all rooms with an in-progress game, for timer
	// rebuild at startup.
	ListPlaying(ctx context.Context) ([]*model.Room, error)

	// ListOpen returns rooms in lobby, waiting, or playing state, for the
	// startup sweep's empty-room checks.
	ListOpen(ctx context.Context) ([]*model.Room, error)

	// ListOverdue returns playing rooms whose phase end time passed more
	// than the given grace ago. Safety net behind the in-process timers.
	ListOverdue(ctx context.Context, grace time.Duration) ([]*model.Room, error)

	UpdateSettings(ctx context.Context, roomID int64, s model.RoomSettings) (*model.Room, error)
	UpdateStatus(ctx context.Context, roomID int64, status string) error
	Delete(ctx context.Context, roomID int64) error
}

// ParticipantRepository persists room membership and scores.
type ParticipantRepository interface {
	// Join inserts the participant if the room has a free slot, re-activates
	// the row on rejoin. Capacity is checked under a room row lock.
	Join(ctx context.Context, roomID int64, userID, socketID, team string) (*model.Participant, error)

	Find(ctx context.Context, roomID int64, userID string) (*model.Participant, error)
	ListActive(ctx context.Context, roomID int64) ([]*model.Participant, error)
	ListAll(ctx context.Context, roomID int64) ([]*model.Participant, error)
	CountActive(ctx context.Context, roomID int64) (int, error)

	SetActive(ctx context.Context, roomID int64, userID string, active bool) error
	SetSocketID(ctx context.Context, roomID int64, userID, socketID string) error
	SetTeam(ctx context.Context, roomID int64, userID, team string) error
	SetDrawer(ctx context.Context, roomID int64, userID string) error
	MarkDrawn(ctx context.Context, roomID int64, userID string) error
	Remove(ctx context.Context, roomID int64, userID string) error
	Ban(ctx context.Context, roomID int64, userID string) error

	// AwardPoints adds points to one guesser and flips has_guessed_this_round,
	// returning false if the flag was already set. points_updated_at moves
	// only when the score changes.
	AwardPoints(ctx context.Context, roomID int64, userID string, points int) (bool, error)

	// AwardTeamPoints credits every active member of the team in one
	// row-locked transaction, returning false if any member of the team had
	// already guessed this round.
	AwardTeamPoints(ctx context.Context, roomID int64, team string, points int) (bool, error)

	AwardDrawerPoints(ctx context.Context, roomID int64, userID string, points int) error

	// ResetRoundFlags clears has_guessed_this_round for every participant.
	ResetRoundFlags(ctx context.Context, roomID int64) error

	// ResetGame zeroes scores and per-game flags for a fresh lobby.
	ResetGame(ctx context.Context, roomID int64) error

	MarkPaidEntry(ctx context.Context, roomID int64, userID string) error

	// DecrementElimination lowers elimination_count and returns the new value.
	DecrementElimination(ctx context.Context, roomID int64, userID string) (int, error)

	// ResetElimination restores the participant's word-choice lives.
	ResetElimination(ctx context.Context, roomID int64, userID string) error

	// IncrementSkip raises skip_count and returns the new value.
	IncrementSkip(ctx context.Context, roomID int64, userID string) (int, error)

	// SweepOrphans deactivates participants whose socket died with the
	// previous process. Run once at startup before the join gate opens.
	SweepOrphans(ctx context.Context) (int64, error)
}

// WordRepository serves the word catalog.
type WordRepository interface {
	// RandomWords returns up to n distinct words for the language and script,
	// restricted to the given theme titles (empty = all themes), excluding
	// the given words.
	RandomWords(ctx context.Context, language, script string, themes, exclude []string, n int) ([]string, error)
}

// MessageRepository persists chat messages.
type MessageRepository interface {
	Save(ctx context.Context, m *model.Message) (*model.Message, error)
	ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error)
}

// ReportRepository accumulates reports against users and drawings.
type ReportRepository interface {
	// Add records reporterID against (roomID, targetID, kind). The returned
	// report carries the updated reporter set; counted is false when the
	// reporter had already reported this target.
	Add(ctx context.Context, roomID int64, targetID, kind, reporterID string) (*model.Report, bool, error)

	// Strike increments the strike count and returns the new value.
	Strike(ctx context.Context, roomID int64, targetID, kind string) (int, error)
}

// WalletRepository tracks coin balances as a transaction ledger.
type WalletRepository interface {
	Balance(ctx context.Context, userID string) (int, error)

	// Debit records a negative entry; fails with ErrInsufficientFunds when
	// the balance would go negative.
	Debit(ctx context.Context, userID string, amount int, kind string, roomID int64) error

	// DebitAll debits every listed user atomically; no one is charged when
	// any single debit would fail.
	DebitAll(ctx context.Context, userIDs []string, amount int, kind string, roomID int64) error

	Credit(ctx context.Context, userID string, amount int, kind string, roomID int64) error
}

// UserRepository reads user rows written by the account service.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// RoomCache is the Redis-backed hot cache plus the small coordination
// primitives (ready sets, join locks) that ride on the same client.
type RoomCache interface {
	SetSnapshot(ctx context.Context, snap *model.Snapshot) error
	GetByID(ctx context.Context, roomID int64) (*model.Snapshot, error)
	GetByCode(ctx context.Context, code string) (*model.Snapshot, error)
	Invalidate(ctx context.Context, roomID int64, code string) error

	// AcquireJoinLock is a short-TTL dedup guard for join_room: a repeat
	// join from the socket already holding the lock is rejected, a join
	// from a new socket (reconnect) takes the lock over.
	AcquireJoinLock(ctx context.Context, roomID int64, userID, socketID string) (bool, error)

	MarkReady(ctx context.Context, roomID int64, userID string) error
	UnmarkReady(ctx context.Context, roomID int64, userID string) error
	ReadyUsers(ctx context.Context, roomID int64) ([]string, error)
	ClearReady(ctx context.Context, roomID int64) error
}
