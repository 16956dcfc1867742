package schedule

import (
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"dankbot/internal/notify"
	"dankbot/internal/room"
	logx "dankbot/pkg/logx"

	"github.com/robfig/cron/v3"
)

type fakeEntry struct {
	sched cron.Schedule
	job   cron.Job
}

// fakeCron records entries and fires them on demand.
type fakeCron struct {
	mu      sync.Mutex
	next    cron.EntryID
	entries map[cron.EntryID]fakeEntry
}

func newFakeCron() *fakeCron { return &fakeCron{entries: map[cron.EntryID]fakeEntry{}} }

func (f *fakeCron) Schedule(s cron.Schedule, j cron.Job) cron.EntryID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.entries[f.next] = fakeEntry{sched: s, job: j}
	return f.next
}

func (f *fakeCron) Remove(id cron.EntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

func (f *fakeCron) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// due returns the jobs whose next activation after at-1s is exactly at.
func (f *fakeCron) due(at time.Time) []cron.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]cron.EntryID, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var out []cron.Job
	for _, id := range ids {
		e := f.entries[id]
		if e.sched.Next(at.Add(-time.Second)).Equal(at) {
			out = append(out, e.job)
		}
	}
	return out
}

func (f *fakeCron) fire(at time.Time) int {
	jobs := f.due(at)
	for _, j := range jobs {
		j.Run()
	}
	return len(jobs)
}

type recorder struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recorder) Notify(n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.got...)
}

func testOptions() Options {
	return Options{
		SlotsPerDay:      3,
		Points:           PointRange{Min: 1, Max: 10},
		Texts:            []string{"dank"},
		LeaderboardDelay: time.Minute,
		Hardcore:         HardcoreOptions{PunishPercent: 10, PunishMin: 2, IdleAfter: 24 * time.Hour},
	}
}

var testDay = time.Date(2024, 5, 1, 0, 0, 0, 0, time.Local)

func at(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newTestEngine(t *testing.T) (*Engine, *fakeCron, *recorder) {
	t.Helper()
	fc := newFakeCron()
	rec := &recorder{}
	eng := NewEngine(room.NewRegistry(), fc, rec, testOptions(), logx.Nop(),
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithClock(func() time.Time { return testDay }),
	)
	return eng, fc, rec
}

func mustSlot(t *testing.T, h, m int, text string, pts int) room.TimeSlot {
	t.Helper()
	ts, err := room.NewTimeSlot(h, m, []string{text}, pts)
	if err != nil {
		t.Fatalf("NewTimeSlot: %v", err)
	}
	return ts
}

// addRoom registers a running room with the given random slots.
func addRoom(t *testing.T, eng *Engine, id int64, random ...room.TimeSlot) *room.Room {
	t.Helper()
	r := room.New(id)
	_ = r.Do(func(st *room.State) error {
		st.RandomSlots = random
		return nil
	})
	if err := eng.AddRoom(r); err != nil {
		t.Fatalf("AddRoom(%d): %v", id, err)
	}
	return r
}

func live(t *testing.T, eng *Engine, id int64, cat Category) int {
	t.Helper()
	n, err := eng.LiveTimers(id, cat)
	if err != nil {
		t.Fatalf("LiveTimers: %v", err)
	}
	return n
}
