package logx

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// CronLogger adapts l to cron.Logger so robfig/cron job wrappers
// (Recover, SkipIfStillRunning) log through the same pipeline.
func CronLogger(l Logger) cron.Logger {
	if l.IsZero() {
		l = Nop()
	}
	return cronLogger{l: l}
}

type cronLogger struct{ l Logger }

// Info is very chatty in robfig/cron (every wake/run), keep it at trace.
func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Trace("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), Err(err))...)
}

func kvFields(kv []interface{}) []Field {
	out := make([]Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
