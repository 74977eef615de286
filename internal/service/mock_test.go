package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

type mockRoomRepo struct {
	mu     sync.Mutex
	nextID int64
	rooms  map[int64]*model.Room
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{rooms: make(map[int64]*model.Room)}
}

func (m *mockRoomRepo) Create(_ context.Context, room *model.Room) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	cp := *room
	cp.ID = m.nextID
	cp.Status = model.StatusLobby
	cp.CreatedAt = time.Now()
	m.rooms[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockRoomRepo) FindByID(_ context.Context, id int64) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *mockRoomRepo) FindByCode(_ context.Context, code string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rooms {
		if r.Code == code {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockRoomRepo) ListPublic(_ context.Context) ([]*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Room
	for _, r := range m.rooms {
		if r.IsPublic && (r.Status == model.StatusLobby || r.Status == model.StatusWaiting || r.Status == model.StatusPlaying) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRoomRepo) TransitionPhase(_ context.Context, roomID int64, fromPhase string, next model.PhaseState) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok || r.RoundPhase != fromPhase {
		return nil, nil
	}
	r.Status = next.Status
	r.CurrentRound = next.CurrentRound
	r.RoundPhase = next.RoundPhase
	r.RoundPhaseEndTime = next.RoundPhaseEndTime
	r.CurrentDrawerID = next.CurrentDrawerID
	r.CurrentWord = next.CurrentWord
	r.CurrentWordOptions = next.CurrentWordOptions
	r.DrawerPointerIndex = next.DrawerPointerIndex
	r.DrawnUserIDs = next.DrawnUserIDs
	r.UsedWords = next.UsedWords
	r.LastDrawerID = next.LastDrawerID
	cp := *r
	return &cp, nil
}

func (m *mockRoomRepo) listWhere(keep func(*model.Room) bool) []*model.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Room
	for _, r := range m.rooms {
		if keep(r) {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (m *mockRoomRepo) ListPlaying(_ context.Context) ([]*model.Room, error) {
	return m.listWhere(func(r *model.Room) bool { return r.Status == model.StatusPlaying }), nil
}

func (m *mockRoomRepo) ListOpen(_ context.Context) ([]*model.Room, error) {
	return m.listWhere(func(r *model.Room) bool {
		return r.Status == model.StatusLobby || r.Status == model.StatusWaiting || r.Status == model.StatusPlaying
	}), nil
}

func (m *mockRoomRepo) ListOverdue(_ context.Context, grace time.Duration) ([]*model.Room, error) {
	cutoff := time.Now().Add(-grace)
	return m.listWhere(func(r *model.Room) bool {
		return r.Status == model.StatusPlaying && r.RoundPhase != "" &&
			r.RoundPhaseEndTime != nil && r.RoundPhaseEndTime.Before(cutoff)
	}), nil
}

func (m *mockRoomRepo) UpdateSettings(_ context.Context, roomID int64, s model.RoomSettings) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok || (r.Status != model.StatusLobby && r.Status != model.StatusWaiting) {
		return nil, nil
	}
	r.Language = s.Language
	r.Script = s.Script
	r.Country = s.Country
	r.Category = s.Category
	r.EntryPoints = s.EntryPoints
	r.TargetPoints = s.TargetPoints
	r.VoiceEnabled = s.VoiceEnabled
	r.MaxPlayers = s.MaxPlayers
	cp := *r
	return &cp, nil
}

func (m *mockRoomRepo) UpdateStatus(_ context.Context, roomID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[roomID]; ok {
		r.Status = status
	}
	return nil
}

func (m *mockRoomRepo) Delete(_ context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	return nil
}

type mockParticipantRepo struct {
	mu    sync.Mutex
	rooms map[int64]map[string]*model.Participant
	caps  *mockRoomRepo // capacity checks on Join when set
}

func newMockParticipantRepo() *mockParticipantRepo {
	return &mockParticipantRepo{rooms: make(map[int64]map[string]*model.Participant)}
}

func (m *mockParticipantRepo) Join(_ context.Context, roomID int64, userID, socketID, team string) (*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[string]*model.Participant)
	}
	if p, ok := m.rooms[roomID][userID]; ok {
		if p.BannedAt != nil {
			return nil, repository.ErrBannedFromRoom
		}
		p.IsActive = true
		p.SocketID = socketID
		if team != "" {
			p.Team = team
		}
		cp := *p
		return &cp, nil
	}
	if m.caps != nil {
		if room, _ := m.caps.FindByID(context.Background(), roomID); room != nil {
			active := 0
			for _, p := range m.rooms[roomID] {
				if p.IsActive {
					active++
				}
			}
			if active >= room.MaxPlayers {
				return nil, repository.ErrRoomFull
			}
		}
	}
	p := &model.Participant{
		RoomID:           roomID,
		UserID:           userID,
		SocketID:         socketID,
		Team:             team,
		IsActive:         true,
		EliminationCount: 3,
		PointsUpdatedAt:  time.Now(),
		JoinedAt:         time.Now(),
	}
	m.rooms[roomID][userID] = p
	cp := *p
	return &cp, nil
}

func (m *mockParticipantRepo) Find(_ context.Context, roomID int64, userID string) (*model.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rooms[roomID][userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockParticipantRepo) list(roomID int64, activeOnly bool) []*model.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Participant
	for _, p := range m.rooms[roomID] {
		if activeOnly && !p.IsActive {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *mockParticipantRepo) ListActive(_ context.Context, roomID int64) ([]*model.Participant, error) {
	return m.list(roomID, true), nil
}

func (m *mockParticipantRepo) ListAll(_ context.Context, roomID int64) ([]*model.Participant, error) {
	return m.list(roomID, false), nil
}

func (m *mockParticipantRepo) CountActive(_ context.Context, roomID int64) (int, error) {
	return len(m.list(roomID, true)), nil
}

func (m *mockParticipantRepo) SetActive(_ context.Context, roomID int64, userID string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.IsActive = active
		if !active {
			p.SocketID = ""
		}
	}
	return nil
}

func (m *mockParticipantRepo) SetSocketID(_ context.Context, roomID int64, userID, socketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.SocketID = socketID
	}
	return nil
}

func (m *mockParticipantRepo) SetTeam(_ context.Context, roomID int64, userID, team string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.Team = team
	}
	return nil
}

func (m *mockParticipantRepo) SetDrawer(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.rooms[roomID] {
		p.IsDrawer = id == userID
	}
	return nil
}

func (m *mockParticipantRepo) MarkDrawn(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.HasDrawn = true
	}
	return nil
}

func (m *mockParticipantRepo) Remove(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms[roomID], userID)
	return nil
}

func (m *mockParticipantRepo) Ban(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		now := time.Now()
		p.BannedAt = &now
		p.IsActive = false
	}
	return nil
}

func (m *mockParticipantRepo) AwardPoints(_ context.Context, roomID int64, userID string, points int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rooms[roomID][userID]
	if !ok || p.HasGuessedThisRound {
		return false, nil
	}
	p.Score += points
	p.HasGuessedThisRound = true
	p.PointsUpdatedAt = time.Now()
	return true, nil
}

func (m *mockParticipantRepo) AwardTeamPoints(_ context.Context, roomID int64, team string, points int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rooms[roomID] {
		if p.Team == team && p.HasGuessedThisRound {
			return false, nil
		}
	}
	for _, p := range m.rooms[roomID] {
		if p.Team == team && p.IsActive {
			p.Score += points
			p.HasGuessedThisRound = true
			p.PointsUpdatedAt = time.Now()
		}
	}
	return true, nil
}

func (m *mockParticipantRepo) AwardDrawerPoints(_ context.Context, roomID int64, userID string, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.Score += points
		p.PointsUpdatedAt = time.Now()
	}
	return nil
}

func (m *mockParticipantRepo) ResetRoundFlags(_ context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rooms[roomID] {
		p.HasGuessedThisRound = false
	}
	return nil
}

func (m *mockParticipantRepo) ResetGame(_ context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.rooms[roomID] {
		p.Score = 0
		p.HasGuessedThisRound = false
		p.HasPaidEntry = false
		p.HasDrawn = false
		p.IsDrawer = false
		p.EliminationCount = 3
		p.SkipCount = 0
	}
	return nil
}

func (m *mockParticipantRepo) MarkPaidEntry(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.HasPaidEntry = true
	}
	return nil
}

func (m *mockParticipantRepo) DecrementElimination(_ context.Context, roomID int64, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rooms[roomID][userID]
	if !ok {
		return 0, nil
	}
	if p.EliminationCount > 0 {
		p.EliminationCount--
	}
	return p.EliminationCount, nil
}

func (m *mockParticipantRepo) ResetElimination(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rooms[roomID][userID]; ok {
		p.EliminationCount = 3
	}
	return nil
}

func (m *mockParticipantRepo) IncrementSkip(_ context.Context, roomID int64, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rooms[roomID][userID]
	if !ok {
		return 0, nil
	}
	p.SkipCount++
	return p.SkipCount, nil
}

func (m *mockParticipantRepo) SweepOrphans(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deactivated int64
	for _, room := range m.rooms {
		for _, p := range room {
			if !p.IsActive {
				continue
			}
			if p.SocketID == "" {
				p.IsActive = false
				deactivated++
			} else {
				p.SocketID = ""
			}
		}
	}
	return deactivated, nil
}

type mockWordRepo struct {
	words []string
	err   error
}

func (m *mockWordRepo) RandomWords(_ context.Context, _, _ string, _, exclude []string, n int) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	used := make(map[string]bool, len(exclude))
	for _, w := range exclude {
		used[w] = true
	}
	var out []string
	for _, w := range m.words {
		if !used[w] && len(out) < n {
			out = append(out, w)
		}
	}
	return out, nil
}

type mockMessageRepo struct {
	mu   sync.Mutex
	msgs []*model.Message
}

func (m *mockMessageRepo) Save(_ context.Context, msg *model.Message) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	cp.ID = int64(len(m.msgs) + 1)
	cp.CreatedAt = time.Now()
	m.msgs = append(m.msgs, &cp)
	out := cp
	return &out, nil
}

func (m *mockMessageRepo) ListRecent(_ context.Context, roomID int64, limit int) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Message
	for _, msg := range m.msgs {
		if msg.RoomID == roomID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type mockReportRepo struct {
	mu      sync.Mutex
	reports map[string]*model.Report
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{reports: make(map[string]*model.Report)}
}

func reportKey(roomID int64, targetID, kind string) string {
	return strconv.FormatInt(roomID, 10) + "|" + targetID + "|" + kind
}

func (m *mockReportRepo) Add(_ context.Context, roomID int64, targetID, kind, reporterID string) (*model.Report, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reportKey(roomID, targetID, kind)
	r, ok := m.reports[key]
	if !ok {
		r = &model.Report{RoomID: roomID, TargetID: targetID, Kind: kind}
		m.reports[key] = r
	}
	for _, id := range r.Reporters {
		if id == reporterID {
			cp := *r
			return &cp, false, nil
		}
	}
	r.Reporters = append(r.Reporters, reporterID)
	cp := *r
	return &cp, true, nil
}

func (m *mockReportRepo) Strike(_ context.Context, roomID int64, targetID, kind string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reportKey(roomID, targetID, kind)
	r, ok := m.reports[key]
	if !ok {
		return 0, nil
	}
	r.StrikeCount++
	return r.StrikeCount, nil
}

type mockWalletRepo struct {
	mu       sync.Mutex
	balances map[string]int
}

func newMockWalletRepo() *mockWalletRepo {
	return &mockWalletRepo{balances: make(map[string]int)}
}

func (m *mockWalletRepo) Balance(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID], nil
}

func (m *mockWalletRepo) Debit(_ context.Context, userID string, amount int, _ string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[userID] < amount {
		return repository.ErrInsufficientFunds
	}
	m.balances[userID] -= amount
	return nil
}

func (m *mockWalletRepo) DebitAll(_ context.Context, userIDs []string, amount int, _ string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range userIDs {
		if m.balances[id] < amount {
			return repository.ErrInsufficientFunds
		}
	}
	for _, id := range userIDs {
		m.balances[id] -= amount
	}
	return nil
}

func (m *mockWalletRepo) Credit(_ context.Context, userID string, amount int, _ string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] += amount
	return nil
}

type mockCache struct {
	mu        sync.Mutex
	snapshots map[int64]*model.Snapshot
	ready     map[int64]map[string]bool
	joinLocks map[string]string
}

func newMockCache() *mockCache {
	return &mockCache{
		snapshots: make(map[int64]*model.Snapshot),
		ready:     make(map[int64]map[string]bool),
		joinLocks: make(map[string]string),
	}
}

func (m *mockCache) SetSnapshot(_ context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.snapshots[snap.RoomID] = &cp
	return nil
}

func (m *mockCache) GetByID(_ context.Context, roomID int64) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[roomID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *mockCache) GetByCode(_ context.Context, code string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.snapshots {
		if s.Code == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockCache) Invalidate(_ context.Context, roomID int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, roomID)
	delete(m.ready, roomID)
	return nil
}

func (m *mockCache) AcquireJoinLock(_ context.Context, roomID int64, userID, socketID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strconv.FormatInt(roomID, 10) + "|" + userID
	holder, held := m.joinLocks[key]
	if held && holder == socketID {
		return false, nil
	}
	m.joinLocks[key] = socketID
	return true, nil
}

func (m *mockCache) MarkReady(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready[roomID] == nil {
		m.ready[roomID] = make(map[string]bool)
	}
	m.ready[roomID][userID] = true
	return nil
}

func (m *mockCache) UnmarkReady(_ context.Context, roomID int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ready[roomID], userID)
	return nil
}

func (m *mockCache) ReadyUsers(_ context.Context, roomID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.ready[roomID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *mockCache) ClearReady(_ context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ready, roomID)
	return nil
}

// recordedEvent is one broadcast or direct emit captured by the recording
// broadcaster.
type recordedEvent struct {
	Code     string // room code, empty for direct emits
	SocketID string // target socket for direct emits, excluded socket otherwise
	Event    string
	Data     any
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	events  []recordedEvent
	sockets map[string]string // userID -> socketID
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{sockets: make(map[string]string)}
}

func (b *recordingBroadcaster) BroadcastRoomEvent(roomCode, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Code: roomCode, Event: event, Data: data})
}

func (b *recordingBroadcaster) BroadcastRoomEventExcept(roomCode, exceptSocketID, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Code: roomCode, SocketID: exceptSocketID, Event: event, Data: data})
}

func (b *recordingBroadcaster) EmitToSocket(socketID, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{SocketID: socketID, Event: event, Data: data})
}

func (b *recordingBroadcaster) SocketIDForUser(userID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sockets[userID]
}

func (b *recordingBroadcaster) setSocket(userID, socketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sockets[userID] = socketID
}

func (b *recordingBroadcaster) byEvent(event string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBroadcaster) has(event string) bool {
	return len(b.byEvent(event)) > 0
}

func (b *recordingBroadcaster) last(event string) (recordedEvent, bool) {
	evts := b.byEvent(event)
	if len(evts) == 0 {
		return recordedEvent{}, false
	}
	return evts[len(evts)-1], true
}

// fixture wires the engine and services over mocks. Phase durations are an
// hour so no timer fires mid-test; transitions are driven through
// HandleExpiry directly.
type fixture struct {
	rooms  *mockRoomRepo
	parts  *mockParticipantRepo
	words  *mockWordRepo
	msgs   *mockMessageRepo
	repRep *mockReportRepo
	wallet *mockWalletRepo
	cache  *mockCache
	bc     *recordingBroadcaster

	clock   *PhaseClock
	engine  *PhaseEngine
	guesses *GuessService
	roomSvc *RoomService
}

func testDurations() PhaseDurations {
	return PhaseDurations{
		SelectingDrawer: time.Hour,
		ChoosingWord:    time.Hour,
		Drawing:         time.Hour,
		Reveal:          time.Hour,
		Interval:        time.Hour,
		IntervalEnding:  time.Hour,
	}
}

func newFixture() *fixture {
	f := &fixture{
		rooms:  newMockRoomRepo(),
		parts:  newMockParticipantRepo(),
		words:  &mockWordRepo{words: []string{"apple", "banana", "cherry", "dragon", "eagle"}},
		msgs:   &mockMessageRepo{},
		repRep: newMockReportRepo(),
		wallet: newMockWalletRepo(),
		cache:  newMockCache(),
		bc:     newRecordingBroadcaster(),
	}
	f.parts.caps = f.rooms
	f.clock = NewPhaseClock(f.rooms, f.cache, 0)
	f.engine = NewPhaseEngine(f.rooms, f.parts, f.wallet, f.cache, NewWordPicker(f.words), f.clock, f.bc, testDurations())
	f.guesses = NewGuessService(f.rooms, f.parts, f.engine, f.bc)
	f.roomSvc = NewRoomService(f.rooms, f.parts, f.msgs, f.repRep, f.wallet, f.cache,
		f.engine, f.clock, f.bc, nil, 50*time.Millisecond, time.Hour)
	f.roomSvc.Open()
	return f
}

// makeRoom creates a room and seats n active players named user-1..user-n,
// user-1 owning. Team mode alternates blue/orange.
func (f *fixture) makeRoom(gameMode string, n, entry, target int) *model.Room {
	ctx := context.Background()
	room, err := f.rooms.Create(ctx, &model.Room{
		Code:         "TEST1",
		OwnerID:      "user-1",
		MaxPlayers:   10,
		GameMode:     gameMode,
		Language:     "english",
		EntryPoints:  entry,
		TargetPoints: target,
	})
	if err != nil {
		panic(err)
	}
	teams := []string{model.TeamBlue, model.TeamOrange}
	for i := 1; i <= n; i++ {
		team := ""
		if gameMode == model.ModeTeam {
			team = teams[(i-1)%2]
		}
		id := userN(i)
		f.parts.Join(ctx, room.ID, id, "sock-"+id, team)
		f.bc.setSocket(id, "sock-"+id)
		f.wallet.Credit(ctx, id, 100, "seed", 0)
		if i > 1 {
			f.cache.MarkReady(ctx, room.ID, id)
		}
	}
	return room
}

func userN(i int) string {
	return "user-" + strconv.Itoa(i)
}

// currentRoom re-reads the room's fresh state.
func (f *fixture) currentRoom(id int64) *model.Room {
	room, _ := f.rooms.FindByID(context.Background(), id)
	return room
}
