package schedule

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"dankbot/internal/eventbus"
	"dankbot/internal/notify"
	"dankbot/internal/room"
	logx "dankbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

// Notifier receives fired timers. Notify must not block.
type Notifier interface {
	Notify(n notify.Notification) error
}

type Options struct {
	SlotsPerDay int
	Points      PointRange
	// Texts is the shared pool for random slots. Empty means the time digits.
	Texts []string
	// LeaderboardDelay is the gap between the last slot of the day and the
	// leaderboard post.
	LeaderboardDelay time.Duration
	Hardcore         HardcoreOptions
}

type HardcoreOptions struct {
	PunishPercent int
	PunishMin     int
	IdleAfter     time.Duration
}

// Punishment is max(PunishMin, score*PunishPercent/100), capped at score.
func (o HardcoreOptions) Punishment(score int) int {
	p := max(o.PunishMin, score*o.PunishPercent/100)
	return min(p, score)
}

type Option func(*Engine)

// WithRand replaces the slot generator's source.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rnd = &lockedRand{r: r} }
}

func WithBus(bus eventbus.Bus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine schedules the rooms of one registry on one cron runner.
type Engine struct {
	log      logx.Logger
	bus      eventbus.Bus
	cron     Cron
	notifier Notifier
	rooms    *room.Registry
	parser   cron.ScheduleParser
	rnd      *lockedRand
	now      func() time.Time

	mu     sync.RWMutex
	opts   Options
	timers map[int64]*TimerRegistry
}

func NewEngine(rooms *room.Registry, c Cron, n Notifier, opts Options, log logx.Logger, o ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{
		log:      log,
		bus:      eventbus.Nop(),
		cron:     c,
		notifier: n,
		rooms:    rooms,
		parser:   cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		rnd:      &lockedRand{r: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x6461_6e6b))},
		now:      time.Now,
		opts:     opts,
		timers:   map[int64]*TimerRegistry{},
	}
	for _, fn := range o {
		fn(e)
	}
	return e
}

// Apply swaps generation and leaderboard options. Live timers keep their
// times until the next regeneration.
func (e *Engine) Apply(opts Options) {
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
}

func (e *Engine) options() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

func (e *Engine) Rooms() *room.Registry { return e.rooms }

// GenerateRandomTimeSlots draws count slots for a room. Points are uniform in
// pr and texts come from the shared pool.
func (e *Engine) GenerateRandomTimeSlots(roomID int64, count int, pr PointRange) ([]room.TimeSlot, error) {
	slots, err := generate(e.rnd, count, pr, e.options().Texts)
	if err != nil {
		return nil, fmt.Errorf("room %d: %w", roomID, err)
	}
	return slots, nil
}

// do runs fn under the room lock with the room's timers.
func (e *Engine) do(roomID int64, fn func(st *room.State, tr *TimerRegistry) error) error {
	r, ok := e.rooms.Get(roomID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRoom, roomID)
	}
	e.mu.RLock()
	tr := e.timers[roomID]
	e.mu.RUnlock()
	if tr == nil {
		return fmt.Errorf("%w: %d has no timers", ErrUnknownRoom, roomID)
	}
	return r.Do(func(st *room.State) error {
		// RemoveRoom may have won the lock after tr was looked up.
		if tr.Closed() {
			return fmt.Errorf("%w: %d removed", ErrUnknownRoom, roomID)
		}
		return fn(st, tr)
	})
}

// CreateRoom registers a new running room with a fresh set of random slots.
func (e *Engine) CreateRoom(id int64) (*room.Room, error) {
	o := e.options()
	slots, err := e.GenerateRandomTimeSlots(id, o.SlotsPerDay, o.Points)
	if err != nil {
		return nil, err
	}
	r := room.New(id)
	_ = r.Do(func(st *room.State) error {
		st.RandomSlots = slots
		return nil
	})
	if err := e.AddRoom(r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddRoom registers r and schedules everything it has. The timers exist
// before the room becomes visible; on a scheduling error the room is
// removed again.
func (e *Engine) AddRoom(r *room.Room) error {
	id := r.ID()
	tr := NewTimerRegistry(id, e.cron)
	e.mu.Lock()
	if _, ok := e.timers[id]; ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %d", room.ErrDuplicateRoom, id)
	}
	e.timers[id] = tr
	e.mu.Unlock()

	if err := e.rooms.Add(r); err != nil {
		e.dropTimers(id, tr)
		return err
	}
	if err := e.ScheduleAllOfRoom(id); err != nil {
		if rerr := e.RemoveRoom(id); rerr != nil {
			e.log.Warn("room rollback failed", logx.Room(id), logx.Err(rerr))
		}
		return err
	}
	return nil
}

// RemoveRoom cancels every timer of the room before dropping it. Operations
// already waiting on the room lock fail with ErrUnknownRoom.
func (e *Engine) RemoveRoom(id int64) error {
	var tr *TimerRegistry
	err := e.do(id, func(_ *room.State, t *TimerRegistry) error {
		n := t.Close()
		tr = t
		e.log.Debug("room timers cancelled", logx.Room(id), logx.Int("timers", n))
		return nil
	})
	if err != nil {
		return err
	}
	e.rooms.Remove(id)
	e.dropTimers(id, tr)
	return nil
}

func (e *Engine) dropTimers(id int64, tr *TimerRegistry) {
	e.mu.Lock()
	if e.timers[id] == tr {
		delete(e.timers, id)
	}
	e.mu.Unlock()
}

func (e *Engine) StartRoom(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		if st.Running {
			return nil
		}
		st.Running = true
		return e.scheduleAllLocked(st, tr)
	})
}

func (e *Engine) StopRoom(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		st.Running = false
		tr.CancelAll()
		return nil
	})
}

// SetHardcore toggles nightly punishment of idle members.
func (e *Engine) SetHardcore(id int64, on bool) error {
	return e.do(id, func(st *room.State, _ *TimerRegistry) error {
		st.Hardcore = on
		return nil
	})
}

// SetAutoLeaderboards toggles the daily leaderboard post and re-arms it.
func (e *Engine) SetAutoLeaderboards(id int64, on bool) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		tr.CancelCategory(CategoryLeaderboard)
		st.AutoLeaderboards = on
		return e.scheduleLeaderboardLocked(st, tr)
	})
}

// AddManualSlot stores ts and re-arms the manual slots and the leaderboard.
func (e *Engine) AddManualSlot(id int64, ts room.TimeSlot) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		if err := st.AddManualSlot(ts); err != nil {
			return err
		}
		return e.rearmManualLocked(st, tr)
	})
}

func (e *Engine) RemoveManualSlot(id int64, hour, minute int) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		if err := st.RemoveManualSlot(hour, minute); err != nil {
			return err
		}
		return e.rearmManualLocked(st, tr)
	})
}

func (e *Engine) rearmManualLocked(st *room.State, tr *TimerRegistry) error {
	tr.CancelCategory(CategoryManual)
	tr.CancelCategory(CategoryLeaderboard)
	if err := e.scheduleSlotsLocked(st, tr, CategoryManual, st.ManualSlots); err != nil {
		return err
	}
	return e.scheduleLeaderboardLocked(st, tr)
}

func (e *Engine) ScheduleAllOfRoom(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		return e.scheduleAllLocked(st, tr)
	})
}

func (e *Engine) UnscheduleAllOfRoom(id int64) (int, error) {
	var n int
	err := e.do(id, func(_ *room.State, tr *TimerRegistry) error {
		n = tr.CancelAll()
		return nil
	})
	return n, err
}

func (e *Engine) ScheduleRandomTimeSlotsOfRoom(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		return e.scheduleSlotsLocked(st, tr, CategoryRandom, st.RandomSlots)
	})
}

func (e *Engine) UnscheduleRandomTimeSlotsOfRoom(id int64) (int, error) {
	return e.cancel(id, CategoryRandom)
}

func (e *Engine) ScheduleManualTimeSlotsOfRoom(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		return e.scheduleSlotsLocked(st, tr, CategoryManual, st.ManualSlots)
	})
}

func (e *Engine) UnscheduleManualTimeSlotsOfRoom(id int64) (int, error) {
	return e.cancel(id, CategoryManual)
}

func (e *Engine) ScheduleLeaderboardPostOfRoom(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		return e.scheduleLeaderboardLocked(st, tr)
	})
}

func (e *Engine) UnscheduleLeaderboardPostOfRoom(id int64) (int, error) {
	return e.cancel(id, CategoryLeaderboard)
}

func (e *Engine) cancel(id int64, cat Category) (int, error) {
	var n int
	err := e.do(id, func(_ *room.State, tr *TimerRegistry) error {
		n = tr.CancelCategory(cat)
		return nil
	})
	return n, err
}

// ResetRandomTimeSlots runs the nightly regeneration for one room.
func (e *Engine) ResetRandomTimeSlots(id int64) error {
	return e.do(id, func(st *room.State, tr *TimerRegistry) error {
		return e.regenerateLocked(st, tr)
	})
}

// LiveTimers counts the room's timers of cat.
func (e *Engine) LiveTimers(id int64, cat Category) (int, error) {
	var n int
	err := e.do(id, func(_ *room.State, tr *TimerRegistry) error {
		n = tr.Count(cat)
		return nil
	})
	return n, err
}

// regenerateLocked unschedules, regenerates, then reschedules. The order is
// load-bearing: new slots are never armed next to stale handles.
func (e *Engine) regenerateLocked(st *room.State, tr *TimerRegistry) error {
	tr.CancelCategory(CategoryRandom)
	tr.CancelCategory(CategoryLeaderboard)
	if n := tr.Count(CategoryRandom) + tr.Count(CategoryLeaderboard); n != 0 {
		return fmt.Errorf("room %d: %d timers survived cancellation", st.ID, n)
	}
	o := e.options()
	slots, err := e.GenerateRandomTimeSlots(st.ID, o.SlotsPerDay, o.Points)
	if err != nil {
		return err
	}
	st.RandomSlots = slots
	if err := e.scheduleSlotsLocked(st, tr, CategoryRandom, st.RandomSlots); err != nil {
		return err
	}
	return e.scheduleLeaderboardLocked(st, tr)
}

func (e *Engine) scheduleAllLocked(st *room.State, tr *TimerRegistry) error {
	if !st.Running {
		return nil
	}
	for _, cat := range Categories {
		if tr.Count(cat) > 0 {
			return fmt.Errorf("%w: room %d %s", ErrAlreadyScheduled, st.ID, cat)
		}
	}
	if err := e.scheduleSlotsLocked(st, tr, CategoryRandom, st.RandomSlots); err != nil {
		return err
	}
	if err := e.scheduleSlotsLocked(st, tr, CategoryManual, st.ManualSlots); err != nil {
		return err
	}
	return e.scheduleLeaderboardLocked(st, tr)
}

// scheduleSlotsLocked arms one daily timer per distinct hour:minute. Slots
// sharing a time share the timer and are notified in order.
func (e *Engine) scheduleSlotsLocked(st *room.State, tr *TimerRegistry, cat Category, slots []room.TimeSlot) error {
	if !st.Running {
		return nil
	}
	if tr.Count(cat) > 0 {
		return fmt.Errorf("%w: room %d %s", ErrAlreadyScheduled, st.ID, cat)
	}
	var order []string
	groups := map[string][]room.TimeSlot{}
	for _, ts := range slots {
		k := ts.Clock()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], ts)
	}
	for _, k := range order {
		group := groups[k]
		first := group[0]
		sched, err := e.parser.Parse(fmt.Sprintf("0 %d %d * * *", first.Minute(), first.Hour()))
		if err != nil {
			tr.CancelCategory(cat)
			return fmt.Errorf("room %d slot %s: %w", st.ID, k, err)
		}
		if _, err := tr.Register(cat, k, sched, e.fireSlots(group)); err != nil {
			tr.CancelCategory(cat)
			return err
		}
	}
	return nil
}

// scheduleLeaderboardLocked arms the post LeaderboardDelay after the latest
// slot of the day. Rooms without slots or with auto leaderboards off get none.
func (e *Engine) scheduleLeaderboardLocked(st *room.State, tr *TimerRegistry) error {
	if !st.Running || !st.AutoLeaderboards {
		return nil
	}
	all := st.AllSlots()
	if len(all) == 0 {
		return nil
	}
	if tr.Count(CategoryLeaderboard) > 0 {
		return fmt.Errorf("%w: room %d %s", ErrAlreadyScheduled, st.ID, CategoryLeaderboard)
	}
	h, m, s := leaderboardClock(all[len(all)-1], e.options().LeaderboardDelay)
	sched, err := e.parser.Parse(fmt.Sprintf("%d %d %d * * *", s, m, h))
	if err != nil {
		return fmt.Errorf("room %d leaderboard: %w", st.ID, err)
	}
	_, err = tr.Register(CategoryLeaderboard, "", sched, e.fireLeaderboard)
	return err
}

func leaderboardClock(last room.TimeSlot, delay time.Duration) (h, m, s int) {
	const day = 24 * time.Hour
	at := time.Duration(last.Hour())*time.Hour + time.Duration(last.Minute())*time.Minute + delay
	at = ((at % day) + day) % day
	return int(at / time.Hour), int(at % time.Hour / time.Minute), int(at % time.Minute / time.Second)
}

func (e *Engine) fireSlots(group []room.TimeSlot) func(Handle) {
	return func(h Handle) {
		if !e.stillLive(h, nil) {
			e.log.Debug("stale timer dropped", logx.Room(h.RoomID), logx.String("cat", string(h.Category)), logx.String("slot", h.Identity))
			return
		}
		at := e.now()
		for _, ts := range group {
			e.deliver(notify.Notification{
				RoomID:   h.RoomID,
				Kind:     notify.KindDankTime,
				Category: string(h.Category),
				At:       at,
				Slot:     ts,
			})
			e.bus.Publish(eventbus.SlotFired{RoomID: h.RoomID, Category: string(h.Category), Clock: ts.Clock(), Points: ts.Points()})
		}
	}
}

func (e *Engine) fireLeaderboard(h Handle) {
	var board []room.Member
	if !e.stillLive(h, func(st *room.State) { board = st.Leaderboard() }) {
		e.log.Debug("stale timer dropped", logx.Room(h.RoomID), logx.String("cat", string(h.Category)))
		return
	}
	e.deliver(notify.Notification{
		RoomID:      h.RoomID,
		Kind:        notify.KindLeaderboard,
		Category:    string(h.Category),
		At:          e.now(),
		Leaderboard: board,
	})
	e.bus.Publish(eventbus.LeaderboardPosted{RoomID: h.RoomID, Entries: len(board)})
}

// stillLive takes the room lock, checks h and runs capture while holding it.
func (e *Engine) stillLive(h Handle, capture func(st *room.State)) bool {
	live := false
	err := e.do(h.RoomID, func(st *room.State, tr *TimerRegistry) error {
		if !st.Running || !tr.Live(h) {
			return nil
		}
		live = true
		if capture != nil {
			capture(st)
		}
		return nil
	})
	return err == nil && live
}

// deliver enqueues n. Failures are logged and the timer keeps recurring.
func (e *Engine) deliver(n notify.Notification) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(n); err != nil {
		lvl := e.log.Warn
		if errors.Is(err, notify.ErrStopped) {
			lvl = e.log.Debug
		}
		lvl("notify enqueue failed", logx.Room(n.RoomID), logx.String("subject", n.Subject()), logx.Err(err))
	}
}
