package schedule

import (
	"fmt"
	"sort"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/robfig/cron/v3"
)

type Category string

const (
	CategoryRandom      Category = "random-slot"
	CategoryManual      Category = "manual-slot"
	CategoryLeaderboard Category = "leaderboard-post"
)

// Categories lists every category in cancellation order.
var Categories = []Category{CategoryRandom, CategoryManual, CategoryLeaderboard}

// Cron is the part of *cron.Cron the registry needs.
type Cron interface {
	Schedule(schedule cron.Schedule, job cron.Job) cron.EntryID
	Remove(id cron.EntryID)
}

// Handle identifies one registered timer.
type Handle struct {
	ID       string
	RoomID   int64
	Category Category
	Identity string

	gen   uint64
	entry cron.EntryID
}

type timerKey struct {
	cat Category
	id  string
}

// TimerRegistry owns the live timers of one room. It has no lock of its own:
// every call must hold the room lock.
type TimerRegistry struct {
	roomID int64
	cron   Cron
	live   map[timerKey]Handle
	gens   map[Category]uint64
	closed bool
}

func NewTimerRegistry(roomID int64, c Cron) *TimerRegistry {
	return &TimerRegistry{
		roomID: roomID,
		cron:   c,
		live:   map[timerKey]Handle{},
		gens:   map[Category]uint64{},
	}
}

// Register arms a recurring timer. A live timer with the same category and
// identity is left untouched and ErrAlreadyScheduled is returned.
func (r *TimerRegistry) Register(cat Category, identity string, sched cron.Schedule, fire func(Handle)) (Handle, error) {
	if r.closed {
		return Handle{}, fmt.Errorf("%w: %d removed", ErrUnknownRoom, r.roomID)
	}
	k := timerKey{cat, identity}
	if _, ok := r.live[k]; ok {
		return Handle{}, fmt.Errorf("%w: room %d %s %q", ErrAlreadyScheduled, r.roomID, cat, identity)
	}
	id, err := gonanoid.New(12)
	if err != nil {
		return Handle{}, fmt.Errorf("timer id: %w", err)
	}
	h := Handle{
		ID:       id,
		RoomID:   r.roomID,
		Category: cat,
		Identity: identity,
		gen:      r.gens[cat],
	}
	fh := h
	h.entry = r.cron.Schedule(sched, cron.FuncJob(func() { fire(fh) }))
	r.live[k] = h
	return h, nil
}

// Live reports whether h is still the registered timer for its identity and
// its category was not cancelled since.
func (r *TimerRegistry) Live(h Handle) bool {
	if r.gens[h.Category] != h.gen {
		return false
	}
	cur, ok := r.live[timerKey{h.Category, h.Identity}]
	return ok && cur.ID == h.ID
}

// CancelCategory removes every timer of cat and returns how many there were.
// Cancelling an empty category is a no-op.
func (r *TimerRegistry) CancelCategory(cat Category) int {
	n := 0
	for k, h := range r.live {
		if k.cat != cat {
			continue
		}
		r.cron.Remove(h.entry)
		delete(r.live, k)
		n++
	}
	r.gens[cat]++
	return n
}

func (r *TimerRegistry) CancelAll() int {
	n := 0
	for _, cat := range Categories {
		n += r.CancelCategory(cat)
	}
	return n
}

// Close cancels every timer and refuses any later Register.
func (r *TimerRegistry) Close() int {
	n := r.CancelAll()
	r.closed = true
	return n
}

func (r *TimerRegistry) Closed() bool { return r.closed }

func (r *TimerRegistry) Count(cat Category) int {
	n := 0
	for k := range r.live {
		if k.cat == cat {
			n++
		}
	}
	return n
}

func (r *TimerRegistry) Len() int { return len(r.live) }

// Identities returns the live identities of cat, sorted.
func (r *TimerRegistry) Identities(cat Category) []string {
	var out []string
	for k := range r.live {
		if k.cat == cat {
			out = append(out, k.id)
		}
	}
	sort.Strings(out)
	return out
}
