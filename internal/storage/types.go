package storage

import (
	"errors"
	"time"

	"dankbot/internal/room"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot replaced via tmp+rename, plus a JSON Lines history
//   - "sqlite": SQLite database file, one transaction per snapshot
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is the whole room registry at one instant.
type Snapshot struct {
	ID      string          `json:"id"`
	TakenAt time.Time       `json:"taken_at"`
	Reason  string          `json:"reason"`
	Rooms   []room.Snapshot `json:"rooms"`
}

// HistoryEntry records one saved snapshot without its payload.
type HistoryEntry struct {
	ID      string    `json:"id"`
	TakenAt time.Time `json:"taken_at"`
	Reason  string    `json:"reason"`
	Rooms   int       `json:"rooms"`
}
