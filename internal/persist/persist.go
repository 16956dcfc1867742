// Package persist snapshots the room registry on a timer and once more on
// shutdown.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dankbot/internal/eventbus"
	"dankbot/internal/room"
	"dankbot/internal/storage"
	logx "dankbot/pkg/logx"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var ErrSnapshot = errors.New("snapshot failed")

// historyPeek is how many past snapshots Restore logs.
const historyPeek = 5

const (
	ReasonPeriodic = "periodic"
	ReasonShutdown = "shutdown"
	ReasonManual   = "manual"
)

// Cron is the part of *cron.Cron the coordinator needs.
type Cron interface {
	Schedule(schedule cron.Schedule, job cron.Job) cron.EntryID
	Remove(id cron.EntryID)
}

type Coordinator struct {
	rooms    *room.Registry
	store    storage.Store
	cron     Cron
	interval time.Duration
	log      logx.Logger
	bus      eventbus.Bus

	// snapMu serializes every snapshot, periodic or not.
	snapMu sync.Mutex

	mu    sync.Mutex
	entry cron.EntryID
	armed bool
}

// New returns a coordinator. A nil store turns every snapshot into a no-op.
func New(rooms *room.Registry, store storage.Store, c Cron, intervalMinutes int, log logx.Logger, bus eventbus.Bus) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	return &Coordinator{
		rooms:    rooms,
		store:    store,
		cron:     c,
		interval: time.Duration(max(intervalMinutes, 1)) * time.Minute,
		log:      log,
		bus:      bus,
	}
}

// Start arms the periodic snapshot. A run that is still going when the next
// one is due makes the next one skip.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.armed || c.store == nil {
		return
	}
	job := cron.NewChain(cron.SkipIfStillRunning(logx.CronLogger(c.log))).Then(cron.FuncJob(func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.interval)
		defer cancel()
		// failures are already logged and published; the next tick proceeds.
		_ = c.Snapshot(ctx, ReasonPeriodic)
	}))
	c.entry = c.cron.Schedule(cron.Every(c.interval), job)
	c.armed = true
	c.log.Info("periodic snapshot armed", logx.Duration("every", c.interval))
}

// Shutdown disarms the periodic trigger and takes one final snapshot. Its
// error is for the caller to report; it never blocks exit beyond ctx.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if c.armed {
		c.cron.Remove(c.entry)
		c.armed = false
	}
	c.mu.Unlock()
	return c.Snapshot(ctx, ReasonShutdown)
}

// Snapshot copies every room under its own lock and saves the result.
func (c *Coordinator) Snapshot(ctx context.Context, reason string) error {
	if c.store == nil {
		return nil
	}
	c.snapMu.Lock()
	defer c.snapMu.Unlock()

	start := time.Now()
	snap := storage.Snapshot{
		ID:      uuid.NewString(),
		TakenAt: start,
		Reason:  reason,
		Rooms:   c.rooms.Snapshots(),
	}
	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		err = fmt.Errorf("%w: %s %s: %w", ErrSnapshot, reason, snap.ID, err)
		c.log.Error("snapshot failed", logx.String("reason", reason), logx.String("id", snap.ID), logx.Err(err))
		c.bus.Publish(eventbus.SnapshotFailed{ID: snap.ID, Reason: reason, Err: err.Error()})
		return err
	}
	took := time.Since(start)
	c.log.Debug("snapshot saved", logx.String("reason", reason), logx.String("id", snap.ID), logx.Int("rooms", len(snap.Rooms)), logx.Duration("took", took))
	c.bus.Publish(eventbus.SnapshotSaved{ID: snap.ID, Reason: reason, Rooms: len(snap.Rooms), Took: took})
	return nil
}

// Restore loads the last snapshot and hands every room to add. It returns
// how many rooms were added; rooms add rejects are logged and skipped.
func (c *Coordinator) Restore(ctx context.Context, add func(*room.Room) error) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	snap, ok, err := c.store.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		c.log.Info("no snapshot to restore")
		return 0, nil
	}
	n := 0
	for _, rs := range snap.Rooms {
		if err := add(room.FromSnapshot(rs)); err != nil {
			c.log.Warn("room restore failed", logx.Room(rs.ID), logx.Err(err))
			continue
		}
		n++
	}
	c.log.Info("snapshot restored", logx.String("id", snap.ID), logx.Time("taken_at", snap.TakenAt), logx.Int("rooms", n))
	if hist, err := c.store.History(ctx, historyPeek); err != nil {
		c.log.Warn("snapshot history unavailable", logx.Err(err))
	} else {
		for _, h := range hist {
			c.log.Debug("snapshot history", logx.String("id", h.ID), logx.String("reason", h.Reason), logx.Time("taken_at", h.TakenAt), logx.Int("rooms", h.Rooms))
		}
	}
	return n, nil
}
