package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "dankbot/pkg/logx"
)

// fileStore keeps everything next to a path prefix.
//
// Files:
//   - <prefix>.snapshot.json  (current snapshot, replaced atomically)
//   - <prefix>.history.jsonl  (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	historyFile  *os.File
	historyPath  string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	historyPath := prefix + ".history.jsonl"
	hf, err := os.OpenFile(historyPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	// A crash between write and rename leaves the tmp file behind.
	_ = os.Remove(prefix + ".snapshot.json.tmp")

	return &fileStore{
		log:          log,
		snapshotPath: prefix + ".snapshot.json",
		historyFile:  hf,
		historyPath:  historyPath,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return nil
	}
	err := s.historyFile.Close()
	s.historyFile = nil
	return err
}

func (s *fileStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.historyFile == nil {
		return errors.New("file store closed")
	}
	if err := writeAtomic(s.snapshotPath, snap); err != nil {
		return err
	}
	h := HistoryEntry{ID: snap.ID, TakenAt: snap.TakenAt, Reason: snap.Reason, Rooms: len(snap.Rooms)}
	if err := json.NewEncoder(s.historyFile).Encode(h); err != nil {
		// the snapshot itself is already durable.
		s.log.Warn("snapshot history append failed", logx.String("id", snap.ID), logx.Err(err))
	}
	return nil
}

// writeAtomic writes v to a sibling tmp file, syncs it and renames it over path.
func writeAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fileStore) LoadSnapshot(ctx context.Context) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.snapshotPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	defer f.Close()
	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

func (s *fileStore) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.historyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var all []HistoryEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var h HistoryEntry
		if err := json.Unmarshal(sc.Bytes(), &h); err != nil || h.ID == "" {
			continue
		}
		all = append(all, h)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(all))
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, all[i])
	}
	return out, nil
}
