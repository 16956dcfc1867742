package schedule

import (
	"testing"
	"time"

	"dankbot/internal/eventbus"
	"dankbot/internal/room"
	logx "dankbot/pkg/logx"

	"github.com/google/go-cmp/cmp"
)

func TestNightlyCycleEndToEnd(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	bus := eventbus.New()
	eng.bus = bus
	done, unsub := bus.Subscribe(4, eventbus.KindNightlyCompleted)
	defer unsub()

	old := []room.TimeSlot{mustSlot(t, 1, 1, "old", 1), mustSlot(t, 2, 2, "old", 1)}
	r := addRoom(t, eng, 1, old...)
	now := at(0, 0)
	if err := eng.SetHardcore(1, true); err != nil {
		t.Fatalf("SetHardcore: %v", err)
	}
	_ = r.Do(func(st *room.State) error {
		st.AlterScore(1, "A", 5, now.Add(-30*time.Hour))
		st.AlterScore(2, "B", 0, now.Add(-time.Hour))
		return nil
	})

	n := NewNightly(eng, newFakeCron(), "0 0 0 * * *", logx.Nop())
	rep := n.RunCycle(now)
	if rep.Rooms != 1 || rep.Failed != 0 || rep.Punished != 1 || rep.Pruned != 1 || rep.RunID == "" {
		t.Fatalf("report = %+v", rep)
	}

	var members map[int64]room.Member
	var slots []room.TimeSlot
	_ = r.Do(func(st *room.State) error {
		members = map[int64]room.Member{}
		for id, m := range st.Members {
			members[id] = *m
		}
		slots = st.RandomSlots
		return nil
	})
	want := map[int64]room.Member{1: {ID: 1, Name: "A", Score: 3, LastScoreChange: now.Add(-30 * time.Hour)}}
	if diff := cmp.Diff(want, members); diff != "" {
		t.Fatalf("members (-want +got):\n%s", diff)
	}
	if len(slots) != testOptions().SlotsPerDay {
		t.Fatalf("random slots = %d, want %d", len(slots), testOptions().SlotsPerDay)
	}
	for _, ts := range slots {
		if ts.HasText("old") {
			t.Fatalf("old slot %s survived", ts)
		}
	}

	var clocks []string
	_ = eng.do(1, func(_ *room.State, tr *TimerRegistry) error {
		clocks = tr.Identities(CategoryRandom)
		return nil
	})
	var wantClocks []string
	for _, ts := range slots {
		if len(wantClocks) == 0 || wantClocks[len(wantClocks)-1] != ts.Clock() {
			wantClocks = append(wantClocks, ts.Clock())
		}
	}
	if diff := cmp.Diff(wantClocks, clocks); diff != "" {
		t.Fatalf("armed timers (-want +got):\n%s", diff)
	}

	select {
	case e := <-done:
		if e.Payload.(eventbus.NightlyCompleted).RunID != rep.RunID {
			t.Fatal("event run id mismatch")
		}
	case <-time.After(time.Second):
		t.Fatal("no nightly_completed event")
	}
}

func TestNightlyIsolatesRoomFailures(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	broken := addRoom(t, eng, 1, mustSlot(t, 1, 0, "a", 1))
	healthy := addRoom(t, eng, 2, mustSlot(t, 1, 0, "a", 1))
	stopped := addRoom(t, eng, 3)
	_ = broken.Do(func(st *room.State) error {
		st.Hardcore = true
		st.Members[9] = nil
		return nil
	})
	_ = healthy.Do(func(st *room.State) error {
		st.AlterScore(1, "z", 0, at(0, 0))
		return nil
	})
	if err := eng.StopRoom(stopped.ID()); err != nil {
		t.Fatal(err)
	}

	rep := NewNightly(eng, newFakeCron(), "0 0 0 * * *", logx.Nop()).RunCycle(at(0, 0))
	if rep.Failed != 1 || rep.Rooms != 1 || rep.Skipped != 1 || rep.Pruned != 1 {
		t.Fatalf("report = %+v", rep)
	}
	// the broken room's lock was released by the panic.
	if _, err := eng.LiveTimers(1, CategoryRandom); err != nil {
		t.Fatal(err)
	}
}

func TestNightlyStartRegistersOnce(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	fc := newFakeCron()
	n := NewNightly(eng, fc, "0 0 0 * * *", logx.Nop())
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	if err := n.Start(); err != nil {
		t.Fatal(err)
	}
	if fc.Len() != 1 {
		t.Fatalf("cron entries = %d, want 1", fc.Len())
	}
	if got := fc.fire(at(24, 0)); got != 1 {
		t.Fatalf("fired %d at midnight", got)
	}
	n.Stop()
	if fc.Len() != 0 {
		t.Fatal("Stop left the entry")
	}
	if err := NewNightly(eng, fc, "not a spec", logx.Nop()).Start(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNightlyNext(t *testing.T) {
	t.Parallel()
	eng, _, _ := newTestEngine(t)
	n := NewNightly(eng, newFakeCron(), "0 30 3 * * *", logx.Nop())
	now := time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)
	next, err := n.Next(now)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2024, 5, 2, 3, 30, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("Next = %s, want %s", next, want)
	}
}
