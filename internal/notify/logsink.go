package notify

import (
	"context"

	logx "dankbot/pkg/logx"
)

// LogSink writes notifications to the log instead of a chat.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Send(_ context.Context, n Notification) error {
	s.Log.Info("notification",
		logx.Room(n.RoomID),
		logx.String("subject", n.Subject()),
		logx.String("text", n.Text()),
	)
	return nil
}
