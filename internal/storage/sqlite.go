package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dankbot/internal/room"
	logx "dankbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSnapshot replaces every room row in one transaction.
func (s *sqliteStore) SaveSnapshot(ctx context.Context, snap Snapshot) (err error) {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM rooms`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rooms(id, data) VALUES(?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range snap.Rooms {
		b, jerr := json.Marshal(r)
		if jerr != nil {
			return fmt.Errorf("room %d: %w", r.ID, jerr)
		}
		if _, err = stmt.ExecContext(ctx, r.ID, string(b)); err != nil {
			return err
		}
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots(id, taken_at, reason, rooms) VALUES(?,?,?,?)`,
		snap.ID, snap.TakenAt.UTC().Format(time.RFC3339Nano), snap.Reason, len(snap.Rooms),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadSnapshot(ctx context.Context) (Snapshot, bool, error) {
	if s == nil || s.db == nil {
		return Snapshot{}, false, ErrDisabled
	}
	var snap Snapshot
	var takenAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, taken_at, reason FROM snapshots ORDER BY rowid DESC LIMIT 1`,
	).Scan(&snap.ID, &takenAt, &snap.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	if snap.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
		return Snapshot{}, false, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT data FROM rooms ORDER BY id`)
	if err != nil {
		return Snapshot{}, false, err
	}
	defer rows.Close()
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return Snapshot{}, false, err
		}
		var r room.Snapshot
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return Snapshot{}, false, err
		}
		snap.Rooms = append(snap.Rooms, r)
	}
	return snap, true, rows.Err()
}

func (s *sqliteStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, taken_at, reason, rooms FROM snapshots ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var takenAt string
		if err := rows.Scan(&h.ID, &takenAt, &h.Reason, &h.Rooms); err != nil {
			return nil, err
		}
		if h.TakenAt, err = time.Parse(time.RFC3339Nano, takenAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
