package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

// ParticipantRepo handles room membership and score database operations.
type ParticipantRepo struct {
	db *sql.DB
}

// NewParticipantRepo creates a ParticipantRepo.
func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

const participantColumns = `p.room_id, p.user_id, u.username, COALESCE(u.avatar_url, ''),
	p.team, p.is_drawer, p.score, p.points_updated_at, p.has_guessed_this_round,
	p.has_paid_entry, p.has_drawn, p.elimination_count, p.skip_count,
	p.is_active, p.socket_id, p.banned_at, p.joined_at`

func scanParticipant(row rowScanner) (*model.Participant, error) {
	var p model.Participant
	var team, socketID sql.NullString
	var bannedAt sql.NullTime
	err := row.Scan(
		&p.RoomID, &p.UserID, &p.Username, &p.AvatarURL,
		&team, &p.IsDrawer, &p.Score, &p.PointsUpdatedAt, &p.HasGuessedThisRound,
		&p.HasPaidEntry, &p.HasDrawn, &p.EliminationCount, &p.SkipCount,
		&p.IsActive, &socketID, &bannedAt, &p.JoinedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Team = team.String
	p.SocketID = socketID.String
	if bannedAt.Valid {
		t := bannedAt.Time
		p.BannedAt = &t
	}
	return &p, nil
}

// Join adds the user to the room, or re-activates an existing membership on
// rejoin. Capacity is checked under a room row lock so two concurrent joins
// cannot both take the last slot.
func (r *ParticipantRepo) Join(ctx context.Context, roomID int64, userID, socketID, team string) (*model.Participant, error) {
	var joined *model.Participant
	err := withRetry(func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin join tx: %w", err)
		}
		defer tx.Rollback()

		var maxPlayers int
		if err := tx.QueryRowContext(ctx,
			`SELECT max_players FROM rooms WHERE id = $1 FOR UPDATE`, roomID,
		).Scan(&maxPlayers); err != nil {
			return fmt.Errorf("lock room for join: %w", err)
		}

		var bannedAt sql.NullTime
		var existing bool
		err = tx.QueryRowContext(ctx,
			`SELECT banned_at FROM room_participants WHERE room_id = $1 AND user_id = $2`,
			roomID, userID,
		).Scan(&bannedAt)
		switch {
		case err == sql.ErrNoRows:
			existing = false
		case err != nil:
			return fmt.Errorf("check existing participant: %w", err)
		default:
			existing = true
		}
		if bannedAt.Valid {
			return repository.ErrBannedFromRoom
		}

		if existing {
			_, err = tx.ExecContext(ctx,
				`UPDATE room_participants
				 SET is_active = true, socket_id = $3, team = COALESCE(NULLIF($4, ''), team)
				 WHERE room_id = $1 AND user_id = $2`,
				roomID, userID, socketID, team)
			if err != nil {
				return fmt.Errorf("reactivate participant: %w", err)
			}
		} else {
			var active int
			if err := tx.QueryRowContext(ctx,
				`SELECT count(*) FROM room_participants WHERE room_id = $1 AND is_active`,
				roomID,
			).Scan(&active); err != nil {
				return fmt.Errorf("count active participants: %w", err)
			}
			if active >= maxPlayers {
				return repository.ErrRoomFull
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO room_participants (room_id, user_id, socket_id, team)
				 VALUES ($1, $2, $3, NULLIF($4, ''))`,
				roomID, userID, socketID, team)
			if err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}

		row := tx.QueryRowContext(ctx,
			`SELECT `+participantColumns+`
			 FROM room_participants p JOIN users u ON u.id = p.user_id
			 WHERE p.room_id = $1 AND p.user_id = $2`,
			roomID, userID)
		joined, err = scanParticipant(row)
		if err != nil {
			return fmt.Errorf("read joined participant: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return joined, nil
}

// Find looks up one membership row.
func (r *ParticipantRepo) Find(ctx context.Context, roomID int64, userID string) (*model.Participant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+participantColumns+`
		 FROM room_participants p JOIN users u ON u.id = p.user_id
		 WHERE p.room_id = $1 AND p.user_id = $2`,
		roomID, userID)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return p, nil
}

func (r *ParticipantRepo) list(ctx context.Context, query string, args ...any) ([]*model.Participant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActive returns the room's active participants ordered by user ID.
func (r *ParticipantRepo) ListActive(ctx context.Context, roomID int64) ([]*model.Participant, error) {
	out, err := r.list(ctx,
		`SELECT `+participantColumns+`
		 FROM room_participants p JOIN users u ON u.id = p.user_id
		 WHERE p.room_id = $1 AND p.is_active
		 ORDER BY p.user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list active participants: %w", err)
	}
	return out, nil
}

// ListAll returns every membership row for the room, active or not.
func (r *ParticipantRepo) ListAll(ctx context.Context, roomID int64) ([]*model.Participant, error) {
	out, err := r.list(ctx,
		`SELECT `+participantColumns+`
		 FROM room_participants p JOIN users u ON u.id = p.user_id
		 WHERE p.room_id = $1
		 ORDER BY p.user_id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

// CountActive returns the number of active participants.
func (r *ParticipantRepo) CountActive(ctx context.Context, roomID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM room_participants WHERE room_id = $1 AND is_active`,
		roomID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active participants: %w", err)
	}
	return n, nil
}

// SetActive flips the participant's active flag. Deactivating clears the
// socket binding.
func (r *ParticipantRepo) SetActive(ctx context.Context, roomID int64, userID string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET is_active = $3, socket_id = CASE WHEN $3 THEN socket_id ELSE NULL END
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, active)
	if err != nil {
		return fmt.Errorf("set participant active: %w", err)
	}
	return nil
}

// SetSocketID binds the participant to their current socket.
func (r *ParticipantRepo) SetSocketID(ctx context.Context, roomID int64, userID, socketID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET socket_id = NULLIF($3, '')
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, socketID)
	if err != nil {
		return fmt.Errorf("set socket id: %w", err)
	}
	return nil
}

// SetTeam assigns the participant to a team.
func (r *ParticipantRepo) SetTeam(ctx context.Context, roomID int64, userID, team string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET team = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, team)
	if err != nil {
		return fmt.Errorf("set team: %w", err)
	}
	return nil
}

// SetDrawer marks userID as the room's drawer and clears the flag everywhere
// else. Empty userID clears all drawer flags.
func (r *ParticipantRepo) SetDrawer(ctx context.Context, roomID int64, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET is_drawer = (user_id = $2) WHERE room_id = $1`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("set drawer: %w", err)
	}
	return nil
}

// MarkDrawn records that the participant completed a drawing turn.
func (r *ParticipantRepo) MarkDrawn(ctx context.Context, roomID int64, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET has_drawn = true WHERE room_id = $1 AND user_id = $2`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("mark drawn: %w", err)
	}
	return nil
}

// Remove deletes the membership row.
func (r *ParticipantRepo) Remove(ctx context.Context, roomID int64, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}
	return nil
}

// Ban records a ban and deactivates the participant. The row is kept so a
// rejoin attempt can be rejected.
func (r *ParticipantRepo) Ban(ctx context.Context, roomID int64, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET banned_at = now(), is_active = false, socket_id = NULL
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("ban participant: %w", err)
	}
	return nil
}

// AwardPoints credits a correct guess. The has_guessed_this_round guard in
// the WHERE clause makes a duplicate award a no-op; the returned bool says
// whether this call won. points_updated_at moves with the score so ties
// rank by who got there first.
func (r *ParticipantRepo) AwardPoints(ctx context.Context, roomID int64, userID string, points int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET score = score + $3, has_guessed_this_round = true, points_updated_at = now()
		 WHERE room_id = $1 AND user_id = $2 AND NOT has_guessed_this_round`,
		roomID, userID, points)
	if err != nil {
		return false, fmt.Errorf("award points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("award points rows: %w", err)
	}
	return n > 0, nil
}

// AwardTeamPoints credits every active member of the team once for the
// round. All team rows are locked in a fixed order first, so two concurrent
// correct guesses from the same team serialize and the loser sees the
// has_guessed flag already set.
func (r *ParticipantRepo) AwardTeamPoints(ctx context.Context, roomID int64, team string, points int) (bool, error) {
	var won bool
	err := withRetry(func() error {
		won = false
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin team award tx: %w", err)
		}
		defer tx.Rollback()

		rows, err := tx.QueryContext(ctx,
			`SELECT has_guessed_this_round FROM room_participants
			 WHERE room_id = $1 AND team = $2 AND is_active
			 ORDER BY user_id FOR UPDATE`,
			roomID, team)
		if err != nil {
			return fmt.Errorf("lock team rows: %w", err)
		}
		any := false
		guessed := false
		for rows.Next() {
			any = true
			var g bool
			if err := rows.Scan(&g); err != nil {
				rows.Close()
				return fmt.Errorf("scan team row: %w", err)
			}
			guessed = guessed || g
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("team rows: %w", err)
		}
		if !any || guessed {
			return tx.Commit()
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE room_participants
			 SET score = score + $3, has_guessed_this_round = true, points_updated_at = now()
			 WHERE room_id = $1 AND team = $2 AND is_active`,
			roomID, team, points)
		if err != nil {
			return fmt.Errorf("award team points: %w", err)
		}
		won = true
		return tx.Commit()
	})
	if err != nil {
		return false, err
	}
	return won, nil
}

// AwardDrawerPoints credits the drawer without touching the guess flag.
func (r *ParticipantRepo) AwardDrawerPoints(ctx context.Context, roomID int64, userID string, points int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET score = score + $3, points_updated_at = now()
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID, points)
	if err != nil {
		return fmt.Errorf("award drawer points: %w", err)
	}
	return nil
}

// ResetRoundFlags clears the per-round guess flag for everyone in the room.
func (r *ParticipantRepo) ResetRoundFlags(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET has_guessed_this_round = false WHERE room_id = $1`,
		roomID)
	if err != nil {
		return fmt.Errorf("reset round flags: %w", err)
	}
	return nil
}

// ResetGame zeroes scores and per-game flags so the room can host a fresh
// game from the lobby.
func (r *ParticipantRepo) ResetGame(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET score = 0, has_guessed_this_round = false, has_paid_entry = false,
		     has_drawn = false, is_drawer = false, elimination_count = 3, skip_count = 0
		 WHERE room_id = $1`,
		roomID)
	if err != nil {
		return fmt.Errorf("reset game: %w", err)
	}
	return nil
}

// MarkPaidEntry records that the entry fee was debited for this game.
func (r *ParticipantRepo) MarkPaidEntry(ctx context.Context, roomID int64, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET has_paid_entry = true
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("mark paid entry: %w", err)
	}
	return nil
}

// DecrementElimination lowers the participant's remaining word-choice
// lives and returns the new count.
func (r *ParticipantRepo) DecrementElimination(ctx context.Context, roomID int64, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`UPDATE room_participants
		 SET elimination_count = GREATEST(elimination_count - 1, 0)
		 WHERE room_id = $1 AND user_id = $2
		 RETURNING elimination_count`,
		roomID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("decrement elimination: %w", err)
	}
	return n, nil
}

// ResetElimination restores the participant's word-choice lives.
func (r *ParticipantRepo) ResetElimination(ctx context.Context, roomID int64, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE room_participants SET elimination_count = 3
		 WHERE room_id = $1 AND user_id = $2`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("reset elimination: %w", err)
	}
	return nil
}

// IncrementSkip raises the participant's skip vote count and returns it.
func (r *ParticipantRepo) IncrementSkip(ctx context.Context, roomID int64, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`UPDATE room_participants
		 SET skip_count = skip_count + 1
		 WHERE room_id = $1 AND user_id = $2
		 RETURNING skip_count`,
		roomID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("increment skip: %w", err)
	}
	return n, nil
}

// SweepOrphans reaps seats orphaned by a previous process. Actives with no
// socket were inside a disconnect grace window whose timer died with the
// process, so they are counted out; everyone else keeps their seat but
// loses the dead socket binding so they can reconnect. Runs once at
// startup before the join gate opens. Returns the deactivated count.
func (r *ParticipantRepo) SweepOrphans(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET is_active = false
		 WHERE is_active AND socket_id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("sweep orphans: %w", err)
	}
	deactivated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep orphans rows: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE room_participants
		 SET socket_id = NULL
		 WHERE is_active AND socket_id IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("sweep stale sockets: %w", err)
	}
	return deactivated, nil
}
