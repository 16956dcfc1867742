// Package room holds the room-scoped entities the scheduler manipulates:
// immutable TimeSlots, the per-room State (slots, flags, member ledger) and
// the Registry of rooms.
//
// All access to a room's State goes through Room.Do, which serializes
// callers on that room only; unrelated rooms never contend.
package room
