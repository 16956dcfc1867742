// Package notify delivers dank time and leaderboard announcements.
//
// Notify only enqueues; a worker pool paces sends through a token bucket and
// retries failures. A notification that still fails is logged and published
// as an event, and nothing upstream is cancelled.
package notify
