package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"dankbot/internal/config"
	"dankbot/internal/schedule"
)

func writeConfig(t *testing.T, dir, driver string) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "telegram": {"token": ""},
  "logging": {"level": "error", "console": true},
  "timezone": "UTC",
  "dank": {"random_slots_per_day": 2, "point_range": [1, 5]},
  "storage": {"driver": %q, "path": %q}
}`, driver, filepath.Join(dir, "store"))
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestAppRestoresRoomsAcrossRestart(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	dir := t.TempDir()
	path := writeConfig(t, dir, "file")

	a, err := NewApp(path, "")
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := a.Engine().CreateRoom(-100); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if n, err := a.Engine().LiveTimers(-100, schedule.CategoryRandom); err != nil || n == 0 {
		t.Fatalf("random timers = %d, %v; want >0", n, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	b, err := NewApp(path, "")
	if err != nil {
		t.Fatalf("NewApp again: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start again: %v", err)
	}
	defer func() { _ = b.Stop(ctx, StopAppStop) }()
	if got := b.Engine().Rooms().Len(); got != 1 {
		t.Fatalf("restored rooms = %d, want 1", got)
	}
	if _, err := b.Engine().CreateRoom(-100); err == nil {
		t.Fatalf("CreateRoom on a restored id should fail")
	}
}

func TestAppWithoutStorage(t *testing.T) {
	t.Setenv(config.EnvToken, "")
	path := writeConfig(t, t.TempDir(), "none")

	a, err := NewApp(path, "")
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if a.store != nil {
		t.Fatalf("store should be disabled")
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("Done should be closed after Stop")
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"dank": {"point_range": [9, 1]}, "unknown": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewApp(path, ""); err == nil {
		t.Fatalf("NewApp should fail")
	}
	if _, err := NewApp(filepath.Join(t.TempDir(), "missing.json"), ""); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing config: err = %v", err)
	}
}

func TestSignalReason(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sig  os.Signal
		want StopReason
	}{
		{os.Interrupt, StopSIGINT},
		{syscall.SIGTERM, StopSIGTERM},
		{syscall.SIGHUP, StopSIGHUP},
		{syscall.SIGQUIT, StopSIGQUIT},
		{syscall.SIGUSR1, StopSignal},
	}
	for _, tt := range tests {
		if got := SignalReason(tt.sig); got != tt.want {
			t.Fatalf("SignalReason(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
	if len(ShutdownSignals) != 4 {
		t.Fatalf("ShutdownSignals = %v", ShutdownSignals)
	}
}
