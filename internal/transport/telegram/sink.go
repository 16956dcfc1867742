// Package telegram sends notifications to Telegram chats.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"dankbot/internal/notify"
	logx "dankbot/pkg/logx"

	tele "gopkg.in/telebot.v4"
)

type Config struct {
	Token string
	// RequestTimeout bounds each Bot API call.
	RequestTimeout time.Duration
	// URL overrides the Bot API endpoint.
	URL string
	// Offline skips the getMe call at construction.
	Offline bool
}

// Sink implements notify.Sink on top of telebot.
type Sink struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Send only: no poller is started, updates are never read.
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{bot: b, log: log}, nil
}

// Send delivers the rendered notification, split into chunks Telegram accepts.
// On a flood error it waits out the retry window before returning the error,
// so the caller's retry lands after it.
func (s *Sink) Send(ctx context.Context, n notify.Notification) error {
	chat := &tele.Chat{ID: n.RoomID}
	opt := &tele.SendOptions{DisableWebPagePreview: true}
	for _, chunk := range splitText(n.Text(), textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.bot.Send(chat, chunk, opt); err != nil {
			var flood tele.FloodError
			if errors.As(err, &flood) && flood.RetryAfter > 0 {
				wait := time.Duration(flood.RetryAfter) * time.Second
				s.log.Warn("telegram flood control", logx.Int64("chat_id", n.RoomID), logx.Duration("retry_after", wait))
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
				case <-t.C:
				}
				t.Stop()
			}
			return err
		}
	}
	return nil
}

const textLimit = 4000

// splitText splits long messages into chunks, preferring newline boundaries.
func splitText(s string, limit int) []string {
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}
	var out []string
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))
		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Avoid extremely small chunks.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}
		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))
		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
