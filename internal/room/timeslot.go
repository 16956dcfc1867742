package room

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

const (
	MinPoints = 1
	MaxPoints = 100
)

// TimeSlot is one daily opportunity ("dank time"): at hour:minute, saying
// one of the texts earns points. It is immutable once constructed.
type TimeSlot struct {
	hour   int
	minute int
	texts  []string
	points int
}

// NewTimeSlot validates its input; it never clamps. Texts are trimmed and
// deduplicated case-insensitively, keeping the first spelling.
func NewTimeSlot(hour, minute int, texts []string, points int) (TimeSlot, error) {
	if hour < 0 || hour > 23 {
		return TimeSlot{}, fmt.Errorf("%w: hour %d out of range [0,23]", ErrConstruction, hour)
	}
	if minute < 0 || minute > 59 {
		return TimeSlot{}, fmt.Errorf("%w: minute %d out of range [0,59]", ErrConstruction, minute)
	}
	if points < MinPoints || points > MaxPoints {
		return TimeSlot{}, fmt.Errorf("%w: points %d out of range [%d,%d]", ErrConstruction, points, MinPoints, MaxPoints)
	}
	uniq := make([]string, 0, len(texts))
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if slices.ContainsFunc(uniq, func(u string) bool { return strings.EqualFold(u, t) }) {
			continue
		}
		uniq = append(uniq, t)
	}
	if len(uniq) == 0 {
		return TimeSlot{}, fmt.Errorf("%w: at least one trigger text is required", ErrConstruction)
	}
	return TimeSlot{hour: hour, minute: minute, texts: uniq, points: points}, nil
}

func (t TimeSlot) Hour() int   { return t.hour }
func (t TimeSlot) Minute() int { return t.minute }
func (t TimeSlot) Points() int { return t.points }

// Texts returns a copy of the trigger texts.
func (t TimeSlot) Texts() []string { return slices.Clone(t.texts) }

// HasText reports whether q is one of the trigger texts, ignoring case.
func (t TimeSlot) HasText(q string) bool {
	q = strings.TrimSpace(q)
	return slices.ContainsFunc(t.texts, func(s string) bool { return strings.EqualFold(s, q) })
}

// Clock renders the slot time as HH:MM.
func (t TimeSlot) Clock() string { return fmt.Sprintf("%02d:%02d", t.hour, t.minute) }

func (t TimeSlot) String() string {
	return fmt.Sprintf("%s %q (%d pts)", t.Clock(), t.texts, t.points)
}

// Equal compares every attribute; texts compare case-insensitively and
// order-sensitively (construction order is stable).
func (t TimeSlot) Equal(o TimeSlot) bool {
	if t.hour != o.hour || t.minute != o.minute || t.points != o.points || len(t.texts) != len(o.texts) {
		return false
	}
	for i := range t.texts {
		if !strings.EqualFold(t.texts[i], o.texts[i]) {
			return false
		}
	}
	return true
}

// CompareTimeSlots orders by (hour, minute) ascending.
func CompareTimeSlots(a, b TimeSlot) int {
	if c := cmp.Compare(a.hour, b.hour); c != 0 {
		return c
	}
	return cmp.Compare(a.minute, b.minute)
}

// SortTimeSlots sorts in place; equal times keep their relative order.
func SortTimeSlots(s []TimeSlot) {
	slices.SortStableFunc(s, CompareTimeSlots)
}

type timeSlotJSON struct {
	Hour   int      `json:"hour"`
	Minute int      `json:"minute"`
	Texts  []string `json:"texts"`
	Points int      `json:"points"`
}

func (t TimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeSlotJSON{Hour: t.hour, Minute: t.minute, Texts: t.texts, Points: t.points})
}

// UnmarshalJSON re-validates through NewTimeSlot, so stored data can never
// produce a slot the constructor would reject.
func (t *TimeSlot) UnmarshalJSON(b []byte) error {
	var raw timeSlotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := NewTimeSlot(raw.Hour, raw.Minute, raw.Texts, raw.Points)
	if err != nil {
		return err
	}
	*t = ts
	return nil
}
