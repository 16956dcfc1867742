package eventbus

import "time"

// Kind tags an event. The set is closed: every kind has exactly one payload
// type below.
type Kind uint8

const (
	KindSlotFired Kind = iota + 1
	KindLeaderboardPosted
	KindNotifyFailed
	KindNightlyCompleted
	KindRoomCycleFailed
	KindSnapshotSaved
	KindSnapshotFailed
)

var kindNames = [...]string{
	KindSlotFired:         "slot_fired",
	KindLeaderboardPosted: "leaderboard_posted",
	KindNotifyFailed:      "notify_failed",
	KindNightlyCompleted:  "nightly_completed",
	KindRoomCycleFailed:   "room_cycle_failed",
	KindSnapshotSaved:     "snapshot_saved",
	KindSnapshotFailed:    "snapshot_failed",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Payload is implemented only by the types in this package.
type Payload interface {
	Kind() Kind
	sealed()
}

// SlotFired is published when a dank time of a room goes off.
type SlotFired struct {
	RoomID   int64
	Category string
	Clock    string
	Points   int
}

type LeaderboardPosted struct {
	RoomID  int64
	Entries int
}

// NotifyFailed is published after a notification exhausted its retries.
type NotifyFailed struct {
	RoomID   int64
	Subject  string
	Attempts int
	Err      string
}

type NightlyCompleted struct {
	RunID    string
	Rooms    int
	Failed   int
	Punished int
	Pruned   int
	Took     time.Duration
}

type RoomCycleFailed struct {
	RunID  string
	RoomID int64
	Err    string
}

type SnapshotSaved struct {
	ID     string
	Reason string
	Rooms  int
	Took   time.Duration
}

type SnapshotFailed struct {
	ID     string
	Reason string
	Err    string
}

func (SlotFired) Kind() Kind         { return KindSlotFired }
func (LeaderboardPosted) Kind() Kind { return KindLeaderboardPosted }
func (NotifyFailed) Kind() Kind      { return KindNotifyFailed }
func (NightlyCompleted) Kind() Kind  { return KindNightlyCompleted }
func (RoomCycleFailed) Kind() Kind   { return KindRoomCycleFailed }
func (SnapshotSaved) Kind() Kind     { return KindSnapshotSaved }
func (SnapshotFailed) Kind() Kind    { return KindSnapshotFailed }

func (SlotFired) sealed()         {}
func (LeaderboardPosted) sealed() {}
func (NotifyFailed) sealed()      {}
func (NightlyCompleted) sealed()  {}
func (RoomCycleFailed) sealed()   {}
func (SnapshotSaved) sealed()     {}
func (SnapshotFailed) sealed()    {}
