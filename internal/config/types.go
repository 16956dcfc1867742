package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Timezone for every daily trigger (IANA name). Empty means the host zone.
	Timezone string `json:"timezone,omitempty"`

	Dank        DankConfig        `json:"dank"`
	Leaderboard LeaderboardConfig `json:"leaderboard"`
	Hardcore    HardcoreConfig    `json:"hardcore"`
	Notifier    NotifierConfig    `json:"notifier"`
	Storage     StorageConfig     `json:"storage"`
}

type TelegramConfig struct {
	// Token may be left empty and supplied via DANKBOT_TELEGRAM_TOKEN.
	// Without any token notifications go to the log only.
	Token string `json:"token"`
	// RequestTimeout bounds each Bot API call (Go duration string, e.g. "10s").
	RequestTimeout string `json:"request_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DankConfig controls random slot generation and the nightly cycle.
//
// Example:
//
//	"dank": {
//	  "random_slots_per_day": 3,
//	  "point_range": [1, 10],
//	  "random_texts": ["dank", "blaze"],
//	  "nightly_fire_time": "00:00:00"
//	}
type DankConfig struct {
	RandomSlotsPerDay int      `json:"random_slots_per_day"`
	PointRange        [2]int   `json:"point_range"`
	RandomTexts       []string `json:"random_texts,omitempty"`
	// NightlyFireTime is HH:MM:SS (or HH:MM) in Timezone.
	NightlyFireTime string `json:"nightly_fire_time,omitempty"`
}

type LeaderboardConfig struct {
	// Delay after the last slot of the day (Go duration string).
	Delay string `json:"delay,omitempty"`
}

// HardcoreConfig controls the nightly punishment of idle members.
// The penalty is max(punish_min, score*punish_percent/100), capped at the score.
type HardcoreConfig struct {
	PunishPercent int    `json:"punish_percent"`
	PunishMin     int    `json:"punish_min"`
	IdleAfter     string `json:"idle_after,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
// Durations are Go duration strings (e.g. "500ms", "10s").
type NotifierConfig struct {
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// StorageConfig controls snapshot persistence.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./dankbot_store", "persistence_interval_minutes": 5 }
type StorageConfig struct {
	Driver      string `json:"driver"` // file | sqlite | none
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)

	PersistenceIntervalMinutes int `json:"persistence_interval_minutes"`
}
