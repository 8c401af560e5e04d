package log

import (
	"path/filepath"
	"testing"
	"time"

	"dynlights.ai/internal/sim/runner"
)

func TestTickLogger_WriteRotateRead(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return clock }

	if err := l.WriteTick(runner.TickLogEntry{Tick: 1, Rebuilds: [][3]int{{0, 4, 0}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := l.WriteTick(runner.TickLogEntry{Tick: 2, Recomputes: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListTickLogs(filepath.Join(dir, "events"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2 (hourly rotation)", files)
	}
	if filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file=%s", files[0])
	}

	var ticks []uint64
	for _, f := range files {
		if err := ReadTickLog(f, func(e runner.TickLogEntry) error {
			ticks = append(ticks, e.Tick)
			if e.Tick == 1 && (len(e.Rebuilds) != 1 || e.Rebuilds[0] != [3]int{0, 4, 0}) {
				t.Fatalf("tick1 rebuilds=%v", e.Rebuilds)
			}
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(ticks) != 2 || ticks[0] != 1 || ticks[1] != 2 {
		t.Fatalf("ticks=%v", ticks)
	}
}
