package model

import "time"

// Round phases a room moves through while a game is in progress.
// PhaseInternalProcessing is a short-lived sentinel claimed before slow
// work so a racing caller cannot redo it; PhaseIntervalEnding covers the
// pause between game_ended and the return to lobby.
const (
	PhaseSelectingDrawer    = "selecting_drawer"
	PhaseChoosingWord       = "choosing_word"
	PhaseDrawing            = "drawing"
	PhaseReveal             = "reveal"
	PhaseInterval           = "interval"
	PhaseInternalProcessing = "_internal_processing"
	PhaseIntervalEnding     = "interval_ending"
)

// Room statuses.
const (
	StatusLobby    = "lobby"
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
	StatusClosed   = "closed"
)

// Game modes.
const (
	ModeSolo = "solo"
	ModeTeam = "team"
)

// Teams in team mode.
const (
	TeamBlue   = "blue"
	TeamOrange = "orange"
)

// TimedPhases are the phases that carry an authoritative end time and a
// scheduled expiry.
var TimedPhases = []string{
	PhaseSelectingDrawer,
	PhaseChoosingWord,
	PhaseDrawing,
	PhaseReveal,
	PhaseInterval,
	PhaseIntervalEnding,
}

// IsTimedPhase reports whether phase has a scheduled expiry.
func IsTimedPhase(phase string) bool {
	for _, p := range TimedPhases {
		if p == phase {
			return true
		}
	}
	return false
}

// User represents a registered user. Account management lives in a separate
// service; this server only reads the row.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Room is the single source of truth for one game session.
type Room struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	OwnerID    string `json:"owner_id"`
	MaxPlayers int    `json:"max_players"`
	IsPublic   bool   `json:"is_public"`
	GameMode   string `json:"game_mode"`

	// Settings, mutable only while no game is in progress.
	Language     string   `json:"language"`
	Script       string   `json:"script"`
	Country      string   `json:"country"`
	Category     []string `json:"category"`
	EntryPoints  int      `json:"entry_points"`
	TargetPoints int      `json:"target_points"`
	VoiceEnabled bool     `json:"voice_enabled"`

	// Game state.
	Status             string     `json:"status"`
	CurrentRound       int        `json:"current_round"`
	RoundPhase         string     `json:"round_phase,omitempty"` // empty = no active phase
	RoundPhaseEndTime  *time.Time `json:"round_phase_end_time,omitempty"`
	CurrentDrawerID    string     `json:"current_drawer_id,omitempty"`
	CurrentWord        string     `json:"-"` // never serialized to clients
	CurrentWordOptions []string   `json:"-"`
	DrawerPointerIndex int        `json:"drawer_pointer_index"`
	DrawnUserIDs       []string   `json:"drawn_user_ids"`
	UsedWords          []string   `json:"-"`
	LastDrawerID       string     `json:"last_drawer_id,omitempty"`

	CreatedAt    time.Time     `json:"created_at"`
	Participants []Participant `json:"participants,omitempty"`
}

// RemainingSeconds returns the client-visible remaining time of the active
// phase at the given instant: max(0, ceil(endTime - now)).
func (r *Room) RemainingSeconds(now time.Time) int {
	if r.RoundPhaseEndTime == nil {
		return 0
	}
	return remainingSeconds(*r.RoundPhaseEndTime, now)
}

func remainingSeconds(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// PhaseState is the complete set of phase-related room fields written by a
// single atomic transition. Callers snapshot the current room and adjust
// the fields the transition changes.
type PhaseState struct {
	Status             string
	CurrentRound       int
	RoundPhase         string // empty clears the phase
	RoundPhaseEndTime  *time.Time
	CurrentDrawerID    string
	CurrentWord        string
	CurrentWordOptions []string
	DrawerPointerIndex int
	DrawnUserIDs       []string
	UsedWords          []string
	LastDrawerID       string
}

// PhaseState copies the room's current phase-related fields.
func (r *Room) PhaseState() PhaseState {
	return PhaseState{
		Status:             r.Status,
		CurrentRound:       r.CurrentRound,
		RoundPhase:         r.RoundPhase,
		RoundPhaseEndTime:  r.RoundPhaseEndTime,
		CurrentDrawerID:    r.CurrentDrawerID,
		CurrentWord:        r.CurrentWord,
		CurrentWordOptions: r.CurrentWordOptions,
		DrawerPointerIndex: r.DrawerPointerIndex,
		DrawnUserIDs:       r.DrawnUserIDs,
		UsedWords:          r.UsedWords,
		LastDrawerID:       r.LastDrawerID,
	}
}

// RoomSettings carries the mutable room settings for update_settings.
type RoomSettings struct {
	Language     string   `json:"language"`
	Script       string   `json:"script"`
	Country      string   `json:"country"`
	Category     []string `json:"category"`
	EntryPoints  int      `json:"entry_points"`
	TargetPoints int      `json:"target_points"`
	VoiceEnabled bool     `json:"voice_enabled"`
	MaxPlayers   int      `json:"max_players"`
}

// Participant is one (room, user) membership row, kept across disconnects.
type Participant struct {
	RoomID              int64      `json:"room_id"`
	UserID              string     `json:"user_id"`
	Username            string     `json:"username,omitempty"`
	AvatarURL           string     `json:"avatar_url,omitempty"`
	Team                string     `json:"team,omitempty"`
	IsDrawer            bool       `json:"is_drawer"`
	Score               int        `json:"score"`
	PointsUpdatedAt     time.Time  `json:"points_updated_at"`
	HasGuessedThisRound bool       `json:"has_guessed_this_round"`
	HasPaidEntry        bool       `json:"has_paid_entry"`
	HasDrawn            bool       `json:"has_drawn"`
	EliminationCount    int        `json:"elimination_count"`
	SkipCount           int        `json:"skip_count"`
	IsActive            bool       `json:"is_active"`
	SocketID            string     `json:"-"`
	BannedAt            *time.Time `json:"banned_at,omitempty"`
	JoinedAt            time.Time  `json:"joined_at"`
}

// Snapshot is the cached hot subset of a room used by the phase clock to
// revalidate a fired timer without a database round-trip.
type Snapshot struct {
	RoomID            int64      `json:"room_id"`
	Code              string     `json:"code"`
	Status            string     `json:"status"`
	RoundPhase        string     `json:"round_phase,omitempty"`
	RoundPhaseEndTime *time.Time `json:"round_phase_end_time,omitempty"`
}

// RemainingSeconds returns the remaining phase time at the given instant.
func (s *Snapshot) RemainingSeconds(now time.Time) int {
	if s.RoundPhaseEndTime == nil {
		return 0
	}
	return remainingSeconds(*s.RoundPhaseEndTime, now)
}

// Message is a persisted chat message.
type Message struct {
	ID        int64     `json:"id"`
	RoomID    int64     `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Report kinds.
const (
	ReportKindUser    = "user"
	ReportKindDrawing = "drawing"
)

// Report accumulates reports against a user or the current drawing in a room.
type Report struct {
	ID          int64     `json:"id"`
	RoomID      int64     `json:"room_id"`
	TargetID    string    `json:"target_id"`
	Kind        string    `json:"kind"`
	Reporters   []string  `json:"reporters"`
	StrikeCount int       `json:"strike_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Ranking is one row of the final leaderboard.
type Ranking struct {
	UserID string `json:"user_id"`
	Rank   int    `json:"rank"`
	Score  int    `json:"score"`
	Team   string `json:"team,omitempty"`
	Reward int    `json:"reward"`
}
