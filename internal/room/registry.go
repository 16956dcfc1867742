package room

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Registry is the process-wide collection of rooms keyed by id.
//
// The registry lock only guards membership; room contents are guarded by
// each room's own lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: map[int64]*Room{}}
}

func (g *Registry) Add(r *Room) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[r.id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateRoom, r.id)
	}
	g.rooms[r.id] = r
	return nil
}

func (g *Registry) Remove(id int64) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rooms[id]
	if ok {
		delete(g.rooms, id)
	}
	return r, ok
}

func (g *Registry) Get(id int64) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[id]
	return r, ok
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Rooms returns the current rooms ordered by id.
func (g *Registry) Rooms() []*Room {
	g.mu.RLock()
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	g.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Room) int { return cmp.Compare(a.id, b.id) })
	return out
}

// Snapshots copies every room, each under its own lock.
func (g *Registry) Snapshots() []Snapshot {
	rooms := g.Rooms()
	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	return out
}
