package schedule

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"dankbot/internal/room"
)

// PointRange is inclusive on both ends.
type PointRange struct {
	Min int
	Max int
}

func (p PointRange) Valid() bool {
	return p.Min >= room.MinPoints && p.Max <= room.MaxPoints && p.Min <= p.Max
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) intN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// generate draws count slots uniformly over the day. Equal times are allowed.
func generate(rnd *lockedRand, count int, pr PointRange, texts []string) ([]room.TimeSlot, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", room.ErrConstruction, count)
	}
	if !pr.Valid() {
		return nil, fmt.Errorf("%w: [%d,%d]", ErrPointRange, pr.Min, pr.Max)
	}
	out := make([]room.TimeSlot, 0, count)
	for i := 0; i < count; i++ {
		h := rnd.intN(24)
		m := rnd.intN(60)
		pts := pr.Min + rnd.intN(pr.Max-pr.Min+1)
		text := fmt.Sprintf("%d%02d", h, m)
		if len(texts) > 0 {
			text = texts[rnd.intN(len(texts))]
		}
		ts, err := room.NewTimeSlot(h, m, []string{text}, pts)
		if err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	room.SortTimeSlots(out)
	return out, nil
}
