package room

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestManualSlots(t *testing.T) {
	t.Parallel()
	r := New(1)
	err := r.Do(func(st *State) error {
		if err := st.AddManualSlot(mustSlot(t, 13, 37, []string{"leet"}, 10)); err != nil {
			return err
		}
		if err := st.AddManualSlot(mustSlot(t, 4, 20, []string{"blaze"}, 5)); err != nil {
			return err
		}
		if err := st.AddManualSlot(mustSlot(t, 13, 37, []string{"again"}, 3)); !errors.Is(err, ErrDuplicateSlot) {
			t.Fatalf("duplicate add err = %v, want ErrDuplicateSlot", err)
		}
		if st.ManualSlots[0].Clock() != "04:20" {
			t.Fatalf("manual slots not sorted: %v", st.ManualSlots)
		}
		if err := st.RemoveManualSlot(4, 20); err != nil {
			return err
		}
		if err := st.RemoveManualSlot(4, 20); !errors.Is(err, ErrUnknownSlot) {
			t.Fatalf("second remove err = %v, want ErrUnknownSlot", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestLedger(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New(1)
	_ = r.Do(func(st *State) error {
		st.AlterScore(1, "alice", 10, now)
		st.AlterScore(2, "bob", 10, now)
		st.AlterScore(3, "carol", 3, now)
		st.AlterScore(3, "", -3, now.Add(time.Minute))

		took, err := st.Punish(1, 25)
		if err != nil || took != 10 {
			t.Fatalf("Punish = %d, %v; want 10, nil", took, err)
		}
		if st.Members[1].LastScoreChange != now {
			t.Fatal("Punish must not refresh LastScoreChange")
		}
		if _, err := st.Punish(99, 1); !errors.Is(err, ErrUnknownMember) {
			t.Fatalf("Punish unknown err = %v", err)
		}

		lb := st.Leaderboard()
		if lb[0].Name != "bob" {
			t.Fatalf("leaderboard head = %q, want bob", lb[0].Name)
		}

		removed := st.PruneZeroScores()
		if diff := cmp.Diff([]int64{1, 3}, removed); diff != "" {
			t.Fatalf("pruned (-want +got):\n%s", diff)
		}
		if len(st.Members) != 1 || st.Members[2] == nil {
			t.Fatalf("unexpected members after prune: %v", st.Members)
		}
		return nil
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New(42)
	_ = r.Do(func(st *State) error {
		st.Hardcore = true
		st.RandomSlots = []TimeSlot{mustSlot(t, 22, 2, []string{"2202"}, 7), mustSlot(t, 1, 1, []string{"101"}, 3)}
		_ = st.AddManualSlot(mustSlot(t, 13, 37, []string{"leet"}, 10))
		st.AlterScore(5, "eve", 12, now)
		return nil
	})
	snap := r.Snapshot()
	back := FromSnapshot(snap).Snapshot()
	if diff := cmp.Diff(snap, back); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if back.RandomSlots[0].Clock() != "01:01" {
		t.Fatalf("random slots not sorted on restore: %v", back.RandomSlots)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	t.Parallel()
	r := New(1)
	_ = r.Do(func(st *State) error {
		st.AlterScore(1, "a", 5, time.Now())
		return nil
	})
	snap := r.Snapshot()
	snap.Members[0].Score = 1000
	_ = r.Do(func(st *State) error {
		if st.Members[1].Score != 5 {
			t.Fatal("snapshot shares member storage with the room")
		}
		return nil
	})
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	g := NewRegistry()
	for _, id := range []int64{30, 10, 20} {
		if err := g.Add(New(id)); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
	}
	if err := g.Add(New(10)); !errors.Is(err, ErrDuplicateRoom) {
		t.Fatalf("duplicate Add err = %v", err)
	}
	var ids []int64
	for _, r := range g.Rooms() {
		ids = append(ids, r.ID())
	}
	if diff := cmp.Diff([]int64{10, 20, 30}, ids); diff != "" {
		t.Fatalf("Rooms() order (-want +got):\n%s", diff)
	}
	if _, ok := g.Remove(20); !ok || g.Len() != 2 {
		t.Fatalf("Remove failed, len=%d", g.Len())
	}
	if _, ok := g.Get(20); ok {
		t.Fatal("room 20 still present")
	}
}

func TestDoSerializesPerRoom(t *testing.T) {
	t.Parallel()
	r := New(1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Do(func(st *State) error {
				st.AlterScore(1, "a", 1, time.Now())
				return nil
			})
		}()
	}
	wg.Wait()
	_ = r.Do(func(st *State) error {
		if st.Members[1].Score != 50 {
			t.Fatalf("score = %d, want 50", st.Members[1].Score)
		}
		return nil
	})
}
