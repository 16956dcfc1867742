package room

import (
	"maps"
	"slices"
)

// Snapshot is a detached, serializable copy of a room's State.
type Snapshot struct {
	ID               int64      `json:"id"`
	Running          bool       `json:"running"`
	Hardcore         bool       `json:"hardcore"`
	AutoLeaderboards bool       `json:"auto_leaderboards"`
	RandomSlots      []TimeSlot `json:"random_slots"`
	ManualSlots      []TimeSlot `json:"manual_slots"`
	Members          []Member   `json:"members"`
}

// Snapshot copies the room state under the room lock.
func (r *Room) Snapshot() Snapshot {
	var snap Snapshot
	_ = r.Do(func(st *State) error {
		snap = st.snapshot()
		return nil
	})
	return snap
}

func (st *State) snapshot() Snapshot {
	members := make([]Member, 0, len(st.Members))
	for _, id := range slices.Sorted(maps.Keys(st.Members)) {
		members = append(members, *st.Members[id])
	}
	return Snapshot{
		ID:               st.ID,
		Running:          st.Running,
		Hardcore:         st.Hardcore,
		AutoLeaderboards: st.AutoLeaderboards,
		RandomSlots:      slices.Clone(st.RandomSlots),
		ManualSlots:      slices.Clone(st.ManualSlots),
		Members:          members,
	}
}

// FromSnapshot rebuilds a Room. Slots are already validated by
// TimeSlot.UnmarshalJSON when the snapshot came from storage.
func FromSnapshot(s Snapshot) *Room {
	r := &Room{id: s.ID, st: State{
		ID:               s.ID,
		RandomSlots:      slices.Clone(s.RandomSlots),
		ManualSlots:      slices.Clone(s.ManualSlots),
		Running:          s.Running,
		Hardcore:         s.Hardcore,
		AutoLeaderboards: s.AutoLeaderboards,
		Members:          make(map[int64]*Member, len(s.Members)),
	}}
	SortTimeSlots(r.st.RandomSlots)
	SortTimeSlots(r.st.ManualSlots)
	for _, m := range s.Members {
		m := m
		r.st.Members[m.ID] = &m
	}
	return r
}
