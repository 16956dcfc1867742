// Package schedule arms and cancels the daily timers of every room.
//
// All timers multiplex on one cron runner. Each room has a TimerRegistry that
// is only touched with the room lock held, so a nightly cycle, a manual reset
// and a firing timer never interleave on the same room. Unrelated rooms do
// not share a lock.
//
// Scheduling a category that still has live timers fails with
// ErrAlreadyScheduled; callers unschedule first. Cancelling bumps a
// per-category generation, and a fire whose handle is stale by the time it
// takes the room lock is dropped.
package schedule
