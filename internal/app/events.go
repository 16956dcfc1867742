package app

import (
	"context"
	"time"

	"dankbot/internal/eventbus"
	"dankbot/internal/persist"
	logx "dankbot/pkg/logx"
)

// logEvents mirrors bus traffic into the log. Failures are already logged
// where they happen, so they stay at debug here.
func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.With(logx.String("comp", "events"))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			fields := eventFields(ev)
			switch p := ev.Payload.(type) {
			case eventbus.NightlyCompleted:
				if next, err := a.nightly.Next(time.Now()); err == nil {
					fields = append(fields, logx.Time("next", next))
				}
				log.Debug(ev.Kind().String(), fields...)
			case eventbus.SnapshotSaved:
				if p.Reason == persist.ReasonPeriodic {
					log.Trace(ev.Kind().String(), fields...)
				} else {
					log.Debug(ev.Kind().String(), fields...)
				}
			default:
				log.Debug(ev.Kind().String(), fields...)
			}
		}
	}
}

func eventFields(ev eventbus.Event) []logx.Field {
	switch p := ev.Payload.(type) {
	case eventbus.SlotFired:
		return []logx.Field{logx.Room(p.RoomID), logx.String("category", p.Category), logx.String("clock", p.Clock), logx.Int("points", p.Points)}
	case eventbus.LeaderboardPosted:
		return []logx.Field{logx.Room(p.RoomID), logx.Int("entries", p.Entries)}
	case eventbus.NotifyFailed:
		return []logx.Field{logx.Room(p.RoomID), logx.String("subject", p.Subject), logx.Int("attempts", p.Attempts), logx.String("err", p.Err)}
	case eventbus.NightlyCompleted:
		return []logx.Field{
			logx.String("run", p.RunID),
			logx.Int("rooms", p.Rooms),
			logx.Int("failed", p.Failed),
			logx.Int("punished", p.Punished),
			logx.Int("pruned", p.Pruned),
			logx.Duration("took", p.Took),
		}
	case eventbus.RoomCycleFailed:
		return []logx.Field{logx.String("run", p.RunID), logx.Room(p.RoomID), logx.String("err", p.Err)}
	case eventbus.SnapshotSaved:
		return []logx.Field{logx.String("id", p.ID), logx.String("reason", p.Reason), logx.Int("rooms", p.Rooms), logx.Duration("took", p.Took)}
	case eventbus.SnapshotFailed:
		return []logx.Field{logx.String("id", p.ID), logx.String("reason", p.Reason), logx.String("err", p.Err)}
	default:
		return nil
	}
}
