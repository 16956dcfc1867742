package schedule

import "errors"

var (
	// ErrAlreadyScheduled means the category still has live timers for the room.
	ErrAlreadyScheduled = errors.New("already scheduled")
	ErrUnknownRoom      = errors.New("unknown room")
	ErrPointRange       = errors.New("invalid point range")
)
