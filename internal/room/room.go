package room

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Member is one entry of a room's score ledger.
type Member struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Score           int       `json:"score"`
	LastScoreChange time.Time `json:"last_score_change"`
}

// State is the mutable aggregate of a room. It is only reachable inside
// Room.Do, with the room lock held.
type State struct {
	ID               int64
	RandomSlots      []TimeSlot
	ManualSlots      []TimeSlot
	Running          bool
	Hardcore         bool
	AutoLeaderboards bool
	Members          map[int64]*Member
}

// Room owns one State exclusively.
type Room struct {
	id int64

	mu sync.Mutex
	st State
}

// New returns a running room with auto leaderboards enabled and no slots.
func New(id int64) *Room {
	return &Room{id: id, st: State{
		ID:               id,
		Running:          true,
		AutoLeaderboards: true,
		Members:          map[int64]*Member{},
	}}
}

func (r *Room) ID() int64 { return r.id }

// Do runs fn with the room lock held. fn must not retain st.
func (r *Room) Do(fn func(st *State) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(&r.st)
}

// AllSlots returns random and manual slots merged and sorted by time.
func (st *State) AllSlots() []TimeSlot {
	all := make([]TimeSlot, 0, len(st.RandomSlots)+len(st.ManualSlots))
	all = append(all, st.RandomSlots...)
	all = append(all, st.ManualSlots...)
	SortTimeSlots(all)
	return all
}

// AddManualSlot rejects a second manual slot at the same hour:minute.
func (st *State) AddManualSlot(ts TimeSlot) error {
	for _, m := range st.ManualSlots {
		if CompareTimeSlots(m, ts) == 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateSlot, ts.Clock())
		}
	}
	st.ManualSlots = append(st.ManualSlots, ts)
	SortTimeSlots(st.ManualSlots)
	return nil
}

func (st *State) RemoveManualSlot(hour, minute int) error {
	i := slices.IndexFunc(st.ManualSlots, func(t TimeSlot) bool {
		return t.hour == hour && t.minute == minute
	})
	if i < 0 {
		return fmt.Errorf("%w: %02d:%02d", ErrUnknownSlot, hour, minute)
	}
	st.ManualSlots = slices.Delete(st.ManualSlots, i, i+1)
	return nil
}

// AlterScore adds delta to a member's score, creating the member on first
// sight, and stamps the change time.
func (st *State) AlterScore(memberID int64, name string, delta int, at time.Time) *Member {
	if st.Members == nil {
		st.Members = map[int64]*Member{}
	}
	m := st.Members[memberID]
	if m == nil {
		m = &Member{ID: memberID}
		st.Members[memberID] = m
	}
	if name != "" {
		m.Name = name
	}
	m.Score += delta
	m.LastScoreChange = at
	return m
}

// Punish lowers a member's score by up to by points without touching
// LastScoreChange, so an idle member stays idle. It returns the amount
// actually taken.
func (st *State) Punish(memberID int64, by int) (int, error) {
	m := st.Members[memberID]
	if m == nil {
		return 0, fmt.Errorf("%w: %d", ErrUnknownMember, memberID)
	}
	by = min(by, m.Score)
	if by <= 0 {
		return 0, nil
	}
	m.Score -= by
	return by, nil
}

// PruneZeroScores drops members whose score is exactly zero and returns
// their ids in ascending order.
func (st *State) PruneZeroScores() []int64 {
	var removed []int64
	for id, m := range st.Members {
		if m.Score == 0 {
			removed = append(removed, id)
			delete(st.Members, id)
		}
	}
	slices.Sort(removed)
	return removed
}

// Leaderboard returns member copies by score descending, then name, then id.
func (st *State) Leaderboard() []Member {
	out := make([]Member, 0, len(st.Members))
	for _, id := range slices.Sorted(maps.Keys(st.Members)) {
		out = append(out, *st.Members[id])
	}
	slices.SortStableFunc(out, func(a, b Member) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}
