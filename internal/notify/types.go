package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dankbot/internal/room"
)

var (
	ErrQueueFull    = errors.New("notify queue full")
	ErrStopped      = errors.New("notify stopped")
	ErrNotification = errors.New("notification failed")
)

type Kind uint8

const (
	KindDankTime Kind = iota + 1
	KindLeaderboard
)

// Notification is one message for one room.
type Notification struct {
	RoomID   int64
	Kind     Kind
	Category string
	At       time.Time

	// Slot is set for KindDankTime.
	Slot room.TimeSlot
	// Leaderboard is set for KindLeaderboard, best first.
	Leaderboard []room.Member
}

// Subject is a short label used in logs and events.
func (n Notification) Subject() string {
	switch n.Kind {
	case KindDankTime:
		return n.Slot.Clock()
	case KindLeaderboard:
		return "leaderboard"
	default:
		return "unknown"
	}
}

// Text renders the chat message.
func (n Notification) Text() string {
	switch n.Kind {
	case KindDankTime:
		texts := n.Slot.Texts()
		quoted := make([]string, len(texts))
		for i, t := range texts {
			quoted[i] = "'" + t + "'"
		}
		return fmt.Sprintf("It's dank o'clock %s! Say %s for %d points.",
			n.Slot.Clock(), strings.Join(quoted, " or "), n.Slot.Points())
	case KindLeaderboard:
		if len(n.Leaderboard) == 0 {
			return "Leaderboard\nNobody has scored yet."
		}
		var b strings.Builder
		b.WriteString("Leaderboard")
		for i, m := range n.Leaderboard {
			fmt.Fprintf(&b, "\n%d. %s: %d", i+1, m.Name, m.Score)
		}
		return b.String()
	default:
		return ""
	}
}

// Sink sends a notification to its room.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}
