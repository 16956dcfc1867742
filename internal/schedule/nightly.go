package schedule

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"dankbot/internal/eventbus"
	"dankbot/internal/room"
	logx "dankbot/pkg/logx"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// CycleReport summarizes one nightly run.
type CycleReport struct {
	RunID    string
	At       time.Time
	Rooms    int
	Skipped  int
	Failed   int
	Punished int
	Pruned   int
	Took     time.Duration
}

// Nightly fires the regeneration cycle once a day for every running room.
type Nightly struct {
	eng  *Engine
	cron Cron
	spec string
	log  logx.Logger
	bus  eventbus.Bus
	now  func() time.Time

	// cycles never overlap.
	runMu sync.Mutex

	mu    sync.Mutex
	entry cron.EntryID
	armed bool
}

// NewNightly takes a six-field cron spec (seconds first), e.g. "0 0 0 * * *".
func NewNightly(eng *Engine, c Cron, spec string, log logx.Logger) *Nightly {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Nightly{
		eng:  eng,
		cron: c,
		spec: spec,
		log:  log,
		bus:  eng.bus,
		now:  eng.now,
	}
}

// Start registers the daily trigger. Calling it twice is a no-op.
func (n *Nightly) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.armed {
		return nil
	}
	sched, err := n.eng.parser.Parse(n.spec)
	if err != nil {
		return fmt.Errorf("nightly spec %q: %w", n.spec, err)
	}
	n.entry = n.cron.Schedule(sched, cron.FuncJob(func() { n.RunCycle(n.now()) }))
	n.armed = true
	n.log.Info("nightly armed", logx.String("spec", n.spec))
	return nil
}

func (n *Nightly) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.armed {
		return
	}
	n.cron.Remove(n.entry)
	n.armed = false
}

// Next previews the next fire time after now in now's location.
func (n *Nightly) Next(now time.Time) (time.Time, error) {
	return gronx.NextTickAfter(n.spec, now, false)
}

// RunCycle regenerates, punishes and prunes every running room. now is used
// for every room of the run. One room failing does not stop the others.
func (n *Nightly) RunCycle(now time.Time) CycleReport {
	n.runMu.Lock()
	defer n.runMu.Unlock()

	start := time.Now()
	rep := CycleReport{RunID: uuid.NewString(), At: now}
	hc := n.eng.options().Hardcore
	log := n.log.With(logx.String("run", rep.RunID))

	for _, r := range n.eng.rooms.Rooms() {
		res, err := n.cycleRoom(r.ID(), now, hc)
		if errors.Is(err, ErrUnknownRoom) {
			// removed after the room list was taken
			rep.Skipped++
			continue
		}
		if err != nil {
			rep.Failed++
			log.Error("nightly room cycle failed", logx.Room(r.ID()), logx.Err(err))
			n.bus.Publish(eventbus.RoomCycleFailed{RunID: rep.RunID, RoomID: r.ID(), Err: err.Error()})
			continue
		}
		if res.skipped {
			rep.Skipped++
			continue
		}
		rep.Rooms++
		rep.Punished += res.punished
		rep.Pruned += res.pruned
	}
	rep.Took = time.Since(start)

	log.Info("nightly cycle done",
		logx.Int("rooms", rep.Rooms),
		logx.Int("skipped", rep.Skipped),
		logx.Int("failed", rep.Failed),
		logx.Int("punished", rep.Punished),
		logx.Int("pruned", rep.Pruned),
		logx.Duration("took", rep.Took),
	)
	n.bus.Publish(eventbus.NightlyCompleted{
		RunID:    rep.RunID,
		Rooms:    rep.Rooms,
		Failed:   rep.Failed,
		Punished: rep.Punished,
		Pruned:   rep.Pruned,
		Took:     rep.Took,
	})
	return rep
}

type roomResult struct {
	skipped  bool
	punished int
	pruned   int
}

func (n *Nightly) cycleRoom(id int64, now time.Time, hc HardcoreOptions) (res roomResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			n.log.Error("nightly room cycle panicked", logx.Room(id), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	err = n.eng.do(id, func(st *room.State, tr *TimerRegistry) error {
		if !st.Running {
			res.skipped = true
			return nil
		}
		if err := n.eng.regenerateLocked(st, tr); err != nil {
			return err
		}
		if st.Hardcore {
			res.punished = punishIdle(st, now, hc)
		}
		res.pruned = len(st.PruneZeroScores())
		return nil
	})
	return res, err
}

// punishIdle docks every positive member idle for longer than IdleAfter.
func punishIdle(st *room.State, now time.Time, hc HardcoreOptions) int {
	idle := hc.IdleAfter
	if idle <= 0 {
		idle = 24 * time.Hour
	}
	n := 0
	for id, m := range st.Members {
		if m.Score <= 0 || now.Sub(m.LastScoreChange) <= idle {
			continue
		}
		if took, err := st.Punish(id, hc.Punishment(m.Score)); err == nil && took > 0 {
			n++
		}
	}
	return n
}
