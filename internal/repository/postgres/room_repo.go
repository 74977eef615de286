package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/drawdash/api/internal/model"
)

// RoomRepo handles room database operations.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo creates a RoomRepo.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

const roomColumns = `id, code, owner_id, max_players, is_public, game_mode,
	language, script, country, category, entry_points, target_points, voice_enabled,
	status, current_round, round_phase, round_phase_end_time, current_drawer_id,
	current_word, current_word_options, drawer_pointer_index, drawn_user_ids,
	used_words, last_drawer_id, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*model.Room, error) {
	var r model.Room
	var phase, drawerID, word, lastDrawer sql.NullString
	var endTime sql.NullTime
	var category, wordOptions, drawnIDs, usedWords []byte
	err := row.Scan(
		&r.ID, &r.Code, &r.OwnerID, &r.MaxPlayers, &r.IsPublic, &r.GameMode,
		&r.Language, &r.Script, &r.Country, &category, &r.EntryPoints, &r.TargetPoints, &r.VoiceEnabled,
		&r.Status, &r.CurrentRound, &phase, &endTime, &drawerID,
		&word, &wordOptions, &r.DrawerPointerIndex, &drawnIDs,
		&usedWords, &lastDrawer, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.RoundPhase = phase.String
	r.CurrentDrawerID = drawerID.String
	r.CurrentWord = word.String
	r.LastDrawerID = lastDrawer.String
	if endTime.Valid {
		t := endTime.Time
		r.RoundPhaseEndTime = &t
	}
	for _, col := range []struct {
		raw []byte
		dst *[]string
	}{
		{category, &r.Category},
		{wordOptions, &r.CurrentWordOptions},
		{drawnIDs, &r.DrawnUserIDs},
		{usedWords, &r.UsedWords},
	} {
		if len(col.raw) > 0 {
			if err := json.Unmarshal(col.raw, col.dst); err != nil {
				return nil, fmt.Errorf("decode room json column: %w", err)
			}
		}
	}
	return &r, nil
}

func jsonStrings(ss []string) []byte {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return b
}

// Create inserts a new room in lobby state.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO rooms (code, owner_id, max_players, is_public, game_mode,
		   language, script, country, category, entry_points, target_points, voice_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING `+roomColumns,
		room.Code, room.OwnerID, room.MaxPlayers, room.IsPublic, room.GameMode,
		room.Language, room.Script, room.Country, jsonStrings(room.Category),
		room.EntryPoints, room.TargetPoints, room.VoiceEnabled,
	)
	created, err := scanRoom(row)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return created, nil
}

// FindByID looks up a room by its ID.
func (r *RoomRepo) FindByID(ctx context.Context, id int64) (*model.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find room by id: %w", err)
	}
	return room, nil
}

// FindByCode looks up a room by its 5-character code.
func (r *RoomRepo) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code = $1`, code)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find room by code: %w", err)
	}
	return room, nil
}

// ListPublic returns joinable public rooms, newest first.
func (r *RoomRepo) ListPublic(ctx context.Context) ([]*model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE is_public AND status IN ('lobby', 'waiting', 'playing')
		 ORDER BY created_at DESC LIMIT 100`)
	if err != nil {
		return nil, fmt.Errorf("list public rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// TransitionPhase atomically moves the room's phase from fromPhase to the
// given state. The WHERE clause is the compare half of the compare-and-set:
// an empty fromPhase matches a NULL round_phase. Returns (nil, nil) when the
// compare fails, meaning another writer already moved the phase.
func (r *RoomRepo) TransitionPhase(ctx context.Context, roomID int64, fromPhase string, next model.PhaseState) (*model.Room, error) {
	var wordOptions []byte
	if next.CurrentWordOptions != nil {
		wordOptions = jsonStrings(next.CurrentWordOptions)
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE rooms SET
		   status = $3,
		   current_round = $4,
		   round_phase = NULLIF($5, ''),
		   round_phase_end_time = $6,
		   current_drawer_id = NULLIF($7, ''),
		   current_word = NULLIF($8, ''),
		   current_word_options = $9,
		   drawer_pointer_index = $10,
		   drawn_user_ids = $11,
		   used_words = $12,
		   last_drawer_id = NULLIF($13, '')
		 WHERE id = $1 AND round_phase IS NOT DISTINCT FROM NULLIF($2, '')
		 RETURNING `+roomColumns,
		roomID, fromPhase,
		next.Status, next.CurrentRound, next.RoundPhase, next.RoundPhaseEndTime,
		next.CurrentDrawerID, next.CurrentWord, wordOptions,
		next.DrawerPointerIndex, jsonStrings(next.DrawnUserIDs),
		jsonStrings(next.UsedWords), next.LastDrawerID,
	)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transition phase: %w", err)
	}
	return room, nil
}

// ListPlaying returns all rooms with a game in progress, for timer rebuild
// at startup.
func (r *RoomRepo) ListPlaying(ctx context.Context) ([]*model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE status = 'playing'`)
	if err != nil {
		return nil, fmt.Errorf("list playing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playing room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ListOpen returns rooms in lobby, waiting, or playing state.
func (r *RoomRepo) ListOpen(ctx context.Context) ([]*model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE status IN ('lobby', 'waiting', 'playing')`)
	if err != nil {
		return nil, fmt.Errorf("list open rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan open room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// ListOverdue returns playing rooms whose phase deadline passed more than
// grace ago. The poller uses this as a safety net behind in-process timers.
func (r *RoomRepo) ListOverdue(ctx context.Context, grace time.Duration) ([]*model.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE status = 'playing' AND round_phase IS NOT NULL
		   AND round_phase_end_time < now() - $1::interval`,
		fmt.Sprintf("%d milliseconds", grace.Milliseconds()))
	if err != nil {
		return nil, fmt.Errorf("list overdue rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan overdue room: %w", err)
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// UpdateSettings replaces the mutable room settings. Guarded on status so a
// racing game start cannot be reconfigured underneath.
func (r *RoomRepo) UpdateSettings(ctx context.Context, roomID int64, s model.RoomSettings) (*model.Room, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE rooms SET
		   language = $2, script = $3, country = $4, category = $5,
		   entry_points = $6, target_points = $7, voice_enabled = $8, max_players = $9
		 WHERE id = $1 AND status IN ('lobby', 'waiting')
		 RETURNING `+roomColumns,
		roomID, s.Language, s.Script, s.Country, jsonStrings(s.Category),
		s.EntryPoints, s.TargetPoints, s.VoiceEnabled, s.MaxPlayers,
	)
	room, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update room settings: %w", err)
	}
	return room, nil
}

// UpdateStatus sets the room status.
func (r *RoomRepo) UpdateStatus(ctx context.Context, roomID int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = $1 WHERE id = $2`, status, roomID)
	if err != nil {
		return fmt.Errorf("update room status: %w", err)
	}
	return nil
}

// Delete removes the room. Participants and messages cascade.
func (r *RoomRepo) Delete(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
