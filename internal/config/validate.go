package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dankbot/internal/room"
	logx "dankbot/pkg/logx"

	"github.com/adhocore/gronx"
)

// Validate checks a defaulted config and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if !logx.ValidLevel(c.Logging.Level) {
		add("logging.level: unknown level %q", c.Logging.Level)
	}
	if _, err := c.Location(); err != nil {
		add("timezone: %w", err)
	}
	if _, err := ParseDurationField("telegram.request_timeout", c.Telegram.RequestTimeout); err != nil {
		errs = append(errs, err)
	}

	d := c.Dank
	if d.RandomSlotsPerDay < 0 {
		add("dank.random_slots_per_day: must be >= 0")
	}
	lo, hi := d.PointRange[0], d.PointRange[1]
	if lo < room.MinPoints || hi > room.MaxPoints || lo > hi {
		add("dank.point_range: [%d,%d] must satisfy %d <= min <= max <= %d", lo, hi, room.MinPoints, room.MaxPoints)
	}
	for i, t := range d.RandomTexts {
		if strings.TrimSpace(t) == "" {
			add("dank.random_texts[%d]: empty text", i)
		}
	}
	if spec, err := c.NightlyCron(); err != nil {
		errs = append(errs, err)
	} else if !gronx.IsValid(spec) {
		add("dank.nightly_fire_time: %q is not a valid schedule", spec)
	}

	if _, err := ParseDurationField("leaderboard.delay", c.Leaderboard.Delay); err != nil {
		errs = append(errs, err)
	}

	h := c.Hardcore
	if h.PunishPercent < 0 || h.PunishPercent > 100 {
		add("hardcore.punish_percent: must be within 0..100")
	}
	if h.PunishMin < 0 {
		add("hardcore.punish_min: must be >= 0")
	}
	if _, err := ParseDurationField("hardcore.idle_after", h.IdleAfter); err != nil {
		errs = append(errs, err)
	}

	n := c.Notifier
	if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
		add("notifier: counts must be >= 0")
	}
	if _, err := ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		errs = append(errs, err)
	}

	s := c.Storage
	switch s.Driver {
	case "file", "sqlite":
		if strings.TrimSpace(s.Path) == "" {
			add("storage.path: required for driver %q", s.Driver)
		}
	case "none":
	default:
		add("storage.driver: unknown driver %q", s.Driver)
	}
	if s.PersistenceIntervalMinutes < 1 {
		add("storage.persistence_interval_minutes: must be >= 1")
	}
	if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves Timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// NightlyCron turns dank.nightly_fire_time into a seconds-first cron spec.
func (c *Config) NightlyCron() (string, error) {
	raw := strings.TrimSpace(c.Dank.NightlyFireTime)
	parts := strings.Split(raw, ":")
	if len(parts) == 2 {
		parts = append(parts, "0")
	}
	if len(parts) != 3 {
		return "", fmt.Errorf("dank.nightly_fire_time: want HH:MM:SS, got %q", raw)
	}
	limits := [3]int{23, 59, 59}
	var v [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > limits[i] {
			return "", fmt.Errorf("dank.nightly_fire_time: want HH:MM:SS, got %q", raw)
		}
		v[i] = n
	}
	return fmt.Sprintf("%d %d %d * * *", v[2], v[1], v[0]), nil
}
