package config

import "strings"

const (
	DefaultSlotsPerDay     = 3
	DefaultNightlyFireTime = "00:00:00"
	DefaultLeaderboard     = "1m"
	DefaultIdleAfter       = "24h"
	DefaultPersistMinutes  = 5
)

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	d := &c.Dank
	if d.RandomSlotsPerDay == 0 {
		d.RandomSlotsPerDay = DefaultSlotsPerDay
	}
	if d.PointRange == [2]int{} {
		d.PointRange = [2]int{1, 10}
	}
	if strings.TrimSpace(d.NightlyFireTime) == "" {
		d.NightlyFireTime = DefaultNightlyFireTime
	}
	if strings.TrimSpace(c.Leaderboard.Delay) == "" {
		c.Leaderboard.Delay = DefaultLeaderboard
	}
	h := &c.Hardcore
	if h.PunishPercent == 0 {
		h.PunishPercent = 10
	}
	if h.PunishMin == 0 {
		h.PunishMin = 1
	}
	if strings.TrimSpace(h.IdleAfter) == "" {
		h.IdleAfter = DefaultIdleAfter
	}
	s := &c.Storage
	if strings.TrimSpace(s.Driver) == "" {
		s.Driver = "file"
	}
	if strings.TrimSpace(s.Path) == "" {
		switch s.Driver {
		case "sqlite":
			s.Path = "./dankbot.db"
		case "file":
			s.Path = "./dankbot_store"
		}
	}
	if s.PersistenceIntervalMinutes == 0 {
		s.PersistenceIntervalMinutes = DefaultPersistMinutes
	}
}
