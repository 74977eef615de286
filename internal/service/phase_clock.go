package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/drawdash/api/internal/model"
	"github.com/drawdash/api/internal/repository"
)

// ExpiryHandler is invoked when a scheduled phase reaches its end time and
// the guard checks confirm the phase is still current. The handler advances
// the state machine; the compare-and-set there keeps a double fire harmless.
type ExpiryHandler func(ctx context.Context, roomID int64, code, phase string)

// PhaseClock owns the wall-clock side of the round state machine: one
// in-process timer per (room, phase), a startup rebuild from the database,
// and a slow poller that catches anything the timers miss.
type PhaseClock struct {
	rooms   repository.RoomRepository
	cache   repository.RoomCache
	jitter  time.Duration // per-room spread modulus, 0 disables
	handler ExpiryHandler

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewPhaseClock creates a PhaseClock. The handler is attached separately
// with SetHandler since the engine and clock reference each other.
func NewPhaseClock(rooms repository.RoomRepository, cache repository.RoomCache, jitter time.Duration) *PhaseClock {
	return &PhaseClock{
		rooms:  rooms,
		cache:  cache,
		jitter: jitter,
		timers: make(map[string]*time.Timer),
	}
}

// SetHandler attaches the expiry handler. Must be called before Schedule.
func (c *PhaseClock) SetHandler(h ExpiryHandler) {
	c.handler = h
}

func timerKey(code, phase string) string { return code + "|" + phase }

// jitterFor spreads simultaneous expiries across rooms deterministically,
// so a restart that rebuilds many timers does not fire them as one burst.
func (c *PhaseClock) jitterFor(roomID int64) time.Duration {
	if c.jitter <= 0 {
		return 0
	}
	return time.Duration(roomID) * time.Millisecond % c.jitter
}

// Schedule arms the timer for (room, phase) ending at endTime. Scheduling
// the same key again replaces the previous timer.
func (c *PhaseClock) Schedule(roomID int64, code, phase string, endTime time.Time) {
	delay := time.Until(endTime) + c.jitterFor(roomID)
	if delay < 0 {
		delay = 0
	}
	key := timerKey(code, phase)

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[key]; ok {
		t.Stop()
	}
	c.timers[key] = time.AfterFunc(delay, func() {
		c.fire(roomID, code, phase)
	})
}

// Cancel drops the timer for (room, phase) if armed.
func (c *PhaseClock) Cancel(code, phase string) {
	key := timerKey(code, phase)
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[key]; ok {
		t.Stop()
		delete(c.timers, key)
	}
}

// CancelAll drops every timer for the room, on room deletion.
func (c *PhaseClock) CancelAll(code string) {
	prefix := code + "|"
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, t := range c.timers {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			t.Stop()
			delete(c.timers, key)
		}
	}
}

// fire revalidates the expiry against the cached snapshot (store on cache
// miss) before invoking the handler. A room that already moved on, or had
// its deadline extended, is left alone.
func (c *PhaseClock) fire(roomID int64, code, phase string) {
	c.mu.Lock()
	delete(c.timers, timerKey(code, phase))
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	snap, err := c.cache.GetByID(ctx, roomID)
	if err != nil {
		log.Warn().Err(err).Int64("roomId", roomID).Msg("Snapshot lookup failed on timer fire, falling back to store")
	}
	if snap == nil {
		room, err := c.rooms.FindByID(ctx, roomID)
		if err != nil {
			log.Error().Err(err).Int64("roomId", roomID).Msg("Room lookup failed on timer fire")
			return
		}
		if room == nil {
			return
		}
		snap = &model.Snapshot{
			RoomID:            room.ID,
			Code:              room.Code,
			Status:            room.Status,
			RoundPhase:        room.RoundPhase,
			RoundPhaseEndTime: room.RoundPhaseEndTime,
		}
	}

	if snap.RoundPhase != phase {
		return
	}
	if remaining := snap.RemainingSeconds(time.Now()); remaining > 0 {
		// Deadline moved. Re-arm for the new end time.
		c.Schedule(roomID, code, phase, *snap.RoundPhaseEndTime)
		return
	}

	if c.handler == nil {
		log.Error().Str("code", code).Str("phase", phase).Msg("Phase timer fired with no handler attached")
		return
	}
	c.handler(ctx, roomID, code, phase)
}

// Rebuild re-arms timers for every in-progress room. Called once at startup
// before the join gate opens; already-overdue phases fire immediately.
func (c *PhaseClock) Rebuild(ctx context.Context) error {
	rooms, err := c.rooms.ListPlaying(ctx)
	if err != nil {
		return err
	}
	n := 0
	for _, room := range rooms {
		if !model.IsTimedPhase(room.RoundPhase) || room.RoundPhaseEndTime == nil {
			continue
		}
		c.Schedule(room.ID, room.Code, room.RoundPhase, *room.RoundPhaseEndTime)
		n++
	}
	log.Info().Int("count", n).Msg("Rebuilt phase timers after restart")
	return nil
}

// pollInterval and pollGrace size the safety-net poller: anything whose
// deadline passed more than pollGrace ago without a timer firing gets
// re-driven through the handler.
const (
	pollInterval = 30 * time.Second
	pollGrace    = 2 * time.Second
)

// StartPoller runs the overdue-phase poller until ctx is cancelled.
func (c *PhaseClock) StartPoller(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", pollInterval).Msg("Phase deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Phase deadline poller stopped")
			return
		case <-ticker.C:
			c.checkOverdue(ctx)
		}
	}
}

func (c *PhaseClock) checkOverdue(ctx context.Context) {
	rooms, err := c.rooms.ListOverdue(ctx, pollGrace)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list overdue rooms")
		return
	}
	if len(rooms) > 0 {
		log.Info().Int("count", len(rooms)).Msg("Poller found overdue phases")
	}
	for _, room := range rooms {
		if c.handler == nil {
			return
		}
		log.Info().Str("code", room.Code).Str("phase", room.RoundPhase).Msg("Poller driving overdue phase")
		c.handler(ctx, room.ID, room.Code, room.RoundPhase)
	}
}
