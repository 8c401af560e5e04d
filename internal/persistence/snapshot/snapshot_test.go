package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"dynlights.ai/internal/sim/lighting/tracker"
)

func TestWriteReadSnapshot(t *testing.T) {
	dir := t.TempDir()
	snap := SnapshotV1{
		Header:    Header{Version: Version, WorldID: "w1", Tick: 40},
		ChunkSize: 16,
		Mode:      "fancy",
		Lights: []tracker.LightState{{
			ID:                   "p1",
			Luminance:            14,
			LastAppliedLuminance: 14,
			PreviousPosition:     [3]float64{8, 62, 8},
			Tracked:              [][3]int{{0, 4, 0}, {1, 4, 0}},
		}},
	}
	path := PathForTick(dir, 40)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header || got.ChunkSize != 16 || len(got.Lights) != 1 {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
	if got.Lights[0].Tracked[1] != [3]int{1, 4, 0} {
		t.Fatalf("tracked mismatch: %v", got.Lights[0].Tracked)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if Latest(dir) != "" {
		t.Fatalf("empty dir should have no latest")
	}
	for _, tick := range []uint64{9, 120, 33} {
		if err := WriteSnapshot(PathForTick(dir, tick), SnapshotV1{Header: Header{Version: Version, Tick: tick}}); err != nil {
			t.Fatalf("write %d: %v", tick, err)
		}
	}
	if got, want := Latest(dir), filepath.Join(dir, "120.snap.zst"); got != want {
		t.Fatalf("latest=%s want=%s", got, want)
	}
}

func TestWriteSnapshot_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := PathForTick(dir, 7)

	// A truncated file from an interrupted write must be replaced whole.
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := ReadSnapshot(path); err == nil {
		t.Fatalf("garbage snapshot should not decode")
	}

	snap := SnapshotV1{Header: Header{Version: Version, WorldID: "w1", Tick: 7}, ChunkSize: 16}
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header.Tick != 7 || got.ChunkSize != 16 {
		t.Fatalf("got=%+v", got)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: err=%v", err)
	}
	if got, want := Latest(dir), path; got != want {
		t.Fatalf("latest=%s want=%s", got, want)
	}
}
