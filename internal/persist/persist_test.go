package persist

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dankbot/internal/eventbus"
	"dankbot/internal/room"
	"dankbot/internal/storage"
	logx "dankbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type nopCron struct {
	mu      sync.Mutex
	entries map[cron.EntryID]cron.Job
	next    cron.EntryID
}

func (c *nopCron) Schedule(_ cron.Schedule, j cron.Job) cron.EntryID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[cron.EntryID]cron.Job{}
	}
	c.next++
	c.entries[c.next] = j
	return c.next
}

func (c *nopCron) Remove(id cron.EntryID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *nopCron) only(t *testing.T) cron.Job {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(c.entries))
	}
	for _, j := range c.entries {
		return j
	}
	return nil
}

// gateStore blocks the first save until released and records overlap.
type gateStore struct {
	storage.Store
	gate    chan struct{}
	entered chan struct{}
	first   atomic.Bool
	active  atomic.Int32
	overlap atomic.Bool
	mu      sync.Mutex
	saved   []storage.Snapshot
}

func (g *gateStore) SaveSnapshot(ctx context.Context, s storage.Snapshot) error {
	if g.active.Add(1) > 1 {
		g.overlap.Store(true)
	}
	defer g.active.Add(-1)
	if g.first.CompareAndSwap(false, true) {
		close(g.entered)
		<-g.gate
	}
	g.mu.Lock()
	g.saved = append(g.saved, s)
	g.mu.Unlock()
	return nil
}

func registryWith(t *testing.T, ids ...int64) *room.Registry {
	t.Helper()
	reg := room.NewRegistry()
	for _, id := range ids {
		r := room.New(id)
		_ = r.Do(func(st *room.State) error {
			st.AlterScore(1, "a", int(id), time.Now())
			return nil
		})
		if err := reg.Add(r); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func TestShutdownWaitsForInflightPeriodic(t *testing.T) {
	t.Parallel()
	st := &gateStore{gate: make(chan struct{}), entered: make(chan struct{})}
	fc := &nopCron{}
	c := New(registryWith(t, 1, 2), st, fc, 5, logx.Nop(), nil)
	c.Start()

	periodic := fc.only(t)
	periodicDone := make(chan struct{})
	go func() {
		periodic.Run()
		close(periodicDone)
	}()
	<-st.entered

	shutdownErr := make(chan error, 1)
	go func() { shutdownErr <- c.Shutdown(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(st.gate)

	<-periodicDone
	if err := <-shutdownErr; err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if st.overlap.Load() {
		t.Fatal("snapshots overlapped")
	}
	if len(st.saved) != 2 || st.saved[0].Reason != ReasonPeriodic || st.saved[1].Reason != ReasonShutdown {
		t.Fatalf("saved = %+v", st.saved)
	}
	for _, s := range st.saved {
		if len(s.Rooms) != 2 {
			t.Fatalf("snapshot %s has %d rooms", s.Reason, len(s.Rooms))
		}
	}
	fc.mu.Lock()
	left := len(fc.entries)
	fc.mu.Unlock()
	if left != 0 {
		t.Fatal("periodic trigger still armed after shutdown")
	}
}

type failStore struct{ storage.Store }

func (failStore) SaveSnapshot(context.Context, storage.Snapshot) error {
	return errors.New("disk full")
}

func TestSnapshotFailureIsReported(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	failed, unsub := bus.Subscribe(2, eventbus.KindSnapshotFailed)
	defer unsub()
	c := New(registryWith(t, 1), failStore{}, &nopCron{}, 1, logx.Nop(), bus)
	err := c.Snapshot(context.Background(), ReasonManual)
	if !errors.Is(err, ErrSnapshot) {
		t.Fatalf("err = %v, want ErrSnapshot", err)
	}
	select {
	case e := <-failed:
		if e.Payload.(eventbus.SnapshotFailed).Reason != ReasonManual {
			t.Fatalf("payload = %+v", e.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot_failed event")
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "s")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	src := New(registryWith(t, 4, 9), st, &nopCron{}, 1, logx.Nop(), nil)
	if err := src.Snapshot(context.Background(), ReasonManual); err != nil {
		t.Fatal(err)
	}

	dst := room.NewRegistry()
	var logs bytes.Buffer
	n, err := New(dst, st, &nopCron{}, 1, logx.NewWriter(&logs, "debug"), nil).Restore(context.Background(), dst.Add)
	if err != nil || n != 2 {
		t.Fatalf("Restore = %d, %v", n, err)
	}
	if !strings.Contains(logs.String(), `"reason":"manual"`) || !strings.Contains(logs.String(), "snapshot history") {
		t.Fatalf("history not logged:\n%s", logs.String())
	}
	r, ok := dst.Get(9)
	if !ok {
		t.Fatal("room 9 missing")
	}
	_ = r.Do(func(s *room.State) error {
		if s.Members[1] == nil || s.Members[1].Score != 9 {
			t.Fatalf("members = %v", s.Members)
		}
		return nil
	})
}

func TestNilStoreIsNoop(t *testing.T) {
	t.Parallel()
	fc := &nopCron{}
	c := New(room.NewRegistry(), nil, fc, 1, logx.Nop(), nil)
	c.Start()
	if len(fc.entries) != 0 {
		t.Fatal("armed without a store")
	}
	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n, err := c.Restore(context.Background(), func(*room.Room) error { return nil }); n != 0 || err != nil {
		t.Fatalf("Restore = %d, %v", n, err)
	}
}
