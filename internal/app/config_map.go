package app

import (
	"fmt"
	"strings"
	"time"

	"dankbot/internal/config"
	"dankbot/internal/notify"
	"dankbot/internal/schedule"
	"dankbot/internal/storage"
	"dankbot/internal/transport/telegram"
	logx "dankbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)
	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
		if err != nil {
			return storage.Config{}, false, err
		}
		if busy <= 0 {
			busy = time.Second
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapEngineOptions(cfg *config.Config) schedule.Options {
	return schedule.Options{
		SlotsPerDay:      cfg.Dank.RandomSlotsPerDay,
		Points:           schedule.PointRange{Min: cfg.Dank.PointRange[0], Max: cfg.Dank.PointRange[1]},
		Texts:            append([]string(nil), cfg.Dank.RandomTexts...),
		LeaderboardDelay: config.MustDuration(cfg.Leaderboard.Delay, time.Minute),
		Hardcore: schedule.HardcoreOptions{
			PunishPercent: cfg.Hardcore.PunishPercent,
			PunishMin:     cfg.Hardcore.PunishMin,
			IdleAfter:     config.MustDuration(cfg.Hardcore.IdleAfter, 24*time.Hour),
		},
	}
}

func mapNotifierConfig(cfg *config.Config) notify.Config {
	nc := cfg.Notifier
	return notify.Config{
		Workers:       nc.Workers,
		QueueSize:     nc.QueueSize,
		RatePerSec:    nc.RatePerSec,
		RetryMax:      nc.RetryMax,
		RetryBase:     config.MustDuration(nc.RetryBase, 0),
		RetryMaxDelay: config.MustDuration(nc.RetryMaxDelay, 0),
	}
}

// newSink picks Telegram when a token is configured, the log otherwise.
func newSink(cfg *config.Config, log logx.Logger) (notify.Sink, error) {
	tok := strings.TrimSpace(cfg.Telegram.Token)
	if tok == "" {
		log.Warn("telegram token not set; notifications go to the log only")
		return notify.LogSink{Log: log}, nil
	}
	s, err := telegram.New(telegram.Config{
		Token:          tok,
		RequestTimeout: config.MustDuration(cfg.Telegram.RequestTimeout, 10*time.Second),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	return s, nil
}
