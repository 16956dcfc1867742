package room

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustSlot(t *testing.T, h, m int, texts []string, pts int) TimeSlot {
	t.Helper()
	ts, err := NewTimeSlot(h, m, texts, pts)
	if err != nil {
		t.Fatalf("NewTimeSlot(%d,%d,%v,%d): %v", h, m, texts, pts, err)
	}
	return ts
}

func TestNewTimeSlotValidRoundTrip(t *testing.T) {
	t.Parallel()
	for _, h := range []int{0, 12, 23} {
		for _, m := range []int{0, 37, 59} {
			for _, pts := range []int{1, 50, 100} {
				ts := mustSlot(t, h, m, []string{"leet", "1337"}, pts)
				b, err := json.Marshal(ts)
				if err != nil {
					t.Fatalf("marshal: %v", err)
				}
				var back TimeSlot
				if err := json.Unmarshal(b, &back); err != nil {
					t.Fatalf("unmarshal %s: %v", b, err)
				}
				if !back.Equal(ts) {
					t.Fatalf("round trip mismatch: got %v, want %v", back, ts)
				}
			}
		}
	}
}

func TestNewTimeSlotRejectsInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		hour   int
		minute int
		texts  []string
		points int
	}{
		{name: "hour 24", hour: 24, minute: 0, texts: []string{"x"}, points: 1},
		{name: "hour -1", hour: -1, minute: 0, texts: []string{"x"}, points: 1},
		{name: "minute -1", hour: 1, minute: -1, texts: []string{"x"}, points: 1},
		{name: "minute 60", hour: 1, minute: 60, texts: []string{"x"}, points: 1},
		{name: "points 0", hour: 1, minute: 1, texts: []string{"x"}, points: 0},
		{name: "points 101", hour: 1, minute: 1, texts: []string{"x"}, points: 101},
		{name: "no texts", hour: 1, minute: 1, texts: nil, points: 5},
		{name: "blank texts", hour: 1, minute: 1, texts: []string{"  ", ""}, points: 5},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTimeSlot(tt.hour, tt.minute, tt.texts, tt.points)
			if !errors.Is(err, ErrConstruction) {
				t.Fatalf("err = %v, want ErrConstruction", err)
			}
		})
	}
}

func TestUnmarshalRejectsInvalidSlot(t *testing.T) {
	t.Parallel()
	var ts TimeSlot
	err := json.Unmarshal([]byte(`{"hour":24,"minute":0,"texts":["x"],"points":3}`), &ts)
	if !errors.Is(err, ErrConstruction) {
		t.Fatalf("err = %v, want ErrConstruction", err)
	}
}

func TestHasTextIgnoresCase(t *testing.T) {
	t.Parallel()
	ts := mustSlot(t, 13, 37, []string{"Potato"}, 5)
	if !ts.HasText("POTATO") || !ts.HasText("potato") {
		t.Fatal("HasText should be case-insensitive")
	}
	if ts.HasText("tomato") {
		t.Fatal("HasText(tomato) = true")
	}
}

func TestDuplicateTextsCollapse(t *testing.T) {
	t.Parallel()
	ts := mustSlot(t, 4, 20, []string{"Go", "go", "GO"}, 5)
	if got := ts.Texts(); len(got) != 1 || got[0] != "Go" {
		t.Fatalf("Texts() = %v, want [Go]", got)
	}
}

func TestTextsReturnsCopy(t *testing.T) {
	t.Parallel()
	ts := mustSlot(t, 4, 20, []string{"blaze"}, 5)
	ts.Texts()[0] = "mutated"
	if !ts.HasText("blaze") {
		t.Fatal("TimeSlot mutated through Texts()")
	}
}

func TestCompareTimeSlots(t *testing.T) {
	t.Parallel()
	a := mustSlot(t, 9, 5, []string{"a"}, 1)
	b := mustSlot(t, 9, 30, []string{"b"}, 1)
	c := mustSlot(t, 10, 0, []string{"c"}, 1)
	if CompareTimeSlots(a, b) >= 0 || CompareTimeSlots(b, c) >= 0 || CompareTimeSlots(a, c) >= 0 {
		t.Fatal("expected (9,5) < (9,30) < (10,0)")
	}
	if CompareTimeSlots(a, mustSlot(t, 9, 5, []string{"other"}, 7)) != 0 {
		t.Fatal("equal times should compare as 0")
	}
}

func TestSortTimeSlotsKeepsTieOrder(t *testing.T) {
	t.Parallel()
	first := mustSlot(t, 12, 0, []string{"first"}, 1)
	second := mustSlot(t, 12, 0, []string{"second"}, 1)
	early := mustSlot(t, 8, 0, []string{"early"}, 1)
	s := []TimeSlot{first, second, early}
	SortTimeSlots(s)
	if !s[0].HasText("early") || !s[1].HasText("first") || !s[2].HasText("second") {
		t.Fatalf("unexpected order: %v", s)
	}
}
