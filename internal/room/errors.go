package room

import "errors"

var (
	// ErrConstruction is wrapped by every TimeSlot validation failure.
	ErrConstruction = errors.New("invalid time slot")

	ErrDuplicateSlot = errors.New("time slot already exists")
	ErrUnknownSlot   = errors.New("time slot not found")
	ErrUnknownMember = errors.New("member not found")
	ErrDuplicateRoom = errors.New("room already registered")
)
