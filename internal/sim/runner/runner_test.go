package runner

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"dynlights.ai/internal/persistence/snapshot"
	"dynlights.ai/internal/sim/lighting/mode"
	"dynlights.ai/internal/sim/lighting/tracker"
	"dynlights.ai/internal/sim/scenario"
	"dynlights.ai/internal/sim/tuning"
)

type memSink struct{ entries []TickLogEntry }

func (m *memSink) WriteTick(e TickLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func testRunner(t *testing.T, defs []scenario.LightDef, sink *memSink) *Runner {
	t.Helper()
	sc := &scenario.Scenario{Lights: defs}
	tune := tuning.Defaults()
	tune.SnapshotEveryTicks = 0
	now := int64(0)
	return New(Config{
		WorldID: "w1",
		Tuning:  tune,
		Clock:   tracker.ClockFunc(func() int64 { now += 50; return now }),
		Logger:  log.New(io.Discard, "", 0),
		Sinks:   []TickSink{sink},
	}, sc.NewLights())
}

func hasChunk(rebuilds [][3]int, c [3]int) bool {
	for _, r := range rebuilds {
		if r == c {
			return true
		}
	}
	return false
}

func TestStep_MovingLightEmitsUnion(t *testing.T) {
	sink := &memSink{}
	r := testRunner(t, []scenario.LightDef{{
		ID: "p", Kind: "player", Luminance: 14, EyeHeight: 2, Speed: 16,
		Waypoints: [][3]float64{{-8, 62, 8}, {8, 62, 8}, {24, 62, 8}},
	}}, sink)

	e0 := r.Step()
	if e0.Recomputes != 1 || len(e0.Rebuilds) != 8 {
		t.Fatalf("tick0 recomputes=%d rebuilds=%d", e0.Recomputes, len(e0.Rebuilds))
	}
	if !hasChunk(e0.Rebuilds, [3]int{0, 4, 0}) {
		t.Fatalf("tick0 missing origin chunk: %v", e0.Rebuilds)
	}

	e1 := r.Step()
	if len(e1.Rebuilds) != 12 {
		t.Fatalf("tick1 rebuilds=%d want=12 (%v)", len(e1.Rebuilds), e1.Rebuilds)
	}
	if !hasChunk(e1.Rebuilds, [3]int{0, 4, 0}) || !hasChunk(e1.Rebuilds, [3]int{2, 4, 0}) {
		t.Fatalf("tick1 should hold vacated and entered chunks: %v", e1.Rebuilds)
	}

	e2 := r.Step()
	if e2.Recomputes != 0 || len(e2.Rebuilds) != 0 {
		t.Fatalf("resting light should not rebuild: %+v", e2)
	}
	if len(sink.entries) != 3 {
		t.Fatalf("sink entries=%d want=3", len(sink.entries))
	}
}

func TestStep_DespawnReleasesChunks(t *testing.T) {
	sink := &memSink{}
	r := testRunner(t, []scenario.LightDef{{
		ID: "b", Kind: "blaze", EyeHeight: 1.5,
		Waypoints: [][3]float64{{100, 40, -100}}, SpawnTick: 1, DespawnTick: 3,
	}}, sink)

	if e := r.Step(); e.Lights != 0 || len(e.Rebuilds) != 0 {
		t.Fatalf("tick0 before spawn: %+v", e)
	}
	if e := r.Step(); len(e.Rebuilds) != 8 {
		t.Fatalf("tick1 rebuilds=%d want=8", len(e.Rebuilds))
	}
	r.Step()
	e3 := r.Step()
	if len(e3.Removed) != 1 || e3.Removed[0] != "b" || len(e3.Rebuilds) != 8 {
		t.Fatalf("tick3 removal: %+v", e3)
	}
	if r.Registry().Len() != 0 {
		t.Fatalf("registry len=%d want=0", r.Registry().Len())
	}
	if e := r.Step(); len(e.Rebuilds) != 0 || len(e.Removed) != 0 {
		t.Fatalf("tick4 after removal: %+v", e)
	}
}

func TestShutdownAndSnapshotResume(t *testing.T) {
	sink := &memSink{}
	defs := []scenario.LightDef{
		{ID: "a", Kind: "player", Luminance: 10, Waypoints: [][3]float64{{0, 10, 0}}},
		{ID: "gone", Kind: "player", Luminance: 10, Waypoints: [][3]float64{{64, 10, 64}}},
	}
	r := testRunner(t, defs, sink)
	r.Step()
	snap := r.ExportSnapshot()
	if len(snap.Lights) != 2 || snap.Header.Tick != 1 {
		t.Fatalf("snapshot=%+v", snap.Header)
	}

	// Resume with "gone" removed from the scenario.
	sink2 := &memSink{}
	r2 := testRunner(t, defs[:1], sink2)
	if pruned := r2.ImportSnapshot(snap); pruned != 1 {
		t.Fatalf("pruned=%d want=1", pruned)
	}
	// The pruned light's chunks plus the resumed light re-emitting its own.
	e := r2.Step()
	if e.Tick != 1 || len(e.Rebuilds) != 16 {
		t.Fatalf("resume tick=%d rebuilds=%d want 1/16", e.Tick, len(e.Rebuilds))
	}
	if !hasChunk(e.Rebuilds, [3]int{4, 0, 4}) {
		t.Fatalf("released light chunk missing: %v", e.Rebuilds)
	}
	if !hasChunk(e.Rebuilds, [3]int{0, 0, 0}) {
		t.Fatalf("resumed light chunk missing: %v", e.Rebuilds)
	}

	final := r2.Shutdown()
	if !final.Final || len(final.Rebuilds) != 8 {
		t.Fatalf("final=%+v", final)
	}
}

func TestSetModeOff(t *testing.T) {
	sink := &memSink{}
	r := testRunner(t, []scenario.LightDef{{ID: "a", Kind: "player", Luminance: 3, Waypoints: [][3]float64{{1, 1, 1}}}}, sink)
	r.Step()
	r.SetMode(mode.Off)
	if e := r.Step(); len(e.Rebuilds) != 8 {
		t.Fatalf("mode off release: %+v", e)
	}
	if e := r.Step(); len(e.Rebuilds) != 0 {
		t.Fatalf("mode off should stay dark: %+v", e)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	sink := &memSink{}
	r := testRunner(t, []scenario.LightDef{{ID: "a", Kind: "player", Luminance: 3, Waypoints: [][3]float64{{1, 1, 1}}}}, sink)
	var snaps []snapshot.SnapshotV1
	r.cfg.OnSnapshot = func(s snapshot.SnapshotV1) { snaps = append(snaps, s) }

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("run err=%v", err)
	}
	if len(sink.entries) == 0 || !sink.entries[len(sink.entries)-1].Final {
		t.Fatalf("last entry should be final")
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots=%d want=1", len(snaps))
	}
}

func TestMetrics_PublishedAfterStep(t *testing.T) {
	sink := &memSink{}
	r := testRunner(t, []scenario.LightDef{{
		ID: "p", Kind: "player", Luminance: 14, EyeHeight: 2,
		Waypoints: [][3]float64{{8, 62, 8}},
	}}, sink)

	if m := r.Metrics(); m.Tick != 0 || m.Tracked != 0 {
		t.Fatalf("initial metrics=%+v", m)
	}
	r.Step()
	r.Step()
	m := r.Metrics()
	if m.Tick != 1 || m.Lights != 1 || m.Tracked != 1 || m.Mode != "fancy" {
		t.Fatalf("metrics=%+v", m)
	}
	if m.Tracker.Recomputes != 1 || m.Queue.Drained != 8 {
		t.Fatalf("tracker=%+v queue=%+v", m.Tracker, m.Queue)
	}
}
