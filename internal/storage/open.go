package storage

import (
	"context"
	"fmt"
	"strings"

	logx "dankbot/pkg/logx"
)

// Store persists room snapshots. SaveSnapshot replaces the previous snapshot
// as a whole; a reader never sees a partial write.
type Store interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	// LoadSnapshot returns the last saved snapshot, ok=false if none exists.
	LoadSnapshot(ctx context.Context) (s Snapshot, ok bool, err error)
	// History lists saved snapshots, newest first, at most limit entries.
	History(ctx context.Context, limit int) ([]HistoryEntry, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
