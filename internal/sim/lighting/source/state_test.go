package source

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"dynlights.ai/internal/sim/lighting/mode"
)

func TestShouldRecompute_Throttle(t *testing.T) {
	s := NewState()
	if !s.ShouldRecompute(1000, mode.Fastest) {
		t.Fatalf("first call should pass")
	}
	if s.ShouldRecompute(1100, mode.Fastest) {
		t.Fatalf("call 100ms later should be throttled")
	}
	if s.LastRecomputeMillis != 1000 {
		t.Fatalf("throttled call mutated state: last=%d want=1000", s.LastRecomputeMillis)
	}
	if !s.ShouldRecompute(1600, mode.Fastest) {
		t.Fatalf("call 600ms later should pass")
	}
	if s.LastRecomputeMillis != 1600 {
		t.Fatalf("last=%d want=1600", s.LastRecomputeMillis)
	}
}

func TestShouldRecompute_DisabledAndNoDelay(t *testing.T) {
	s := NewState()
	if s.ShouldRecompute(0, mode.Off) {
		t.Fatalf("disabled mode should never recompute")
	}
	if !s.ShouldRecompute(5, mode.Fancy) || !s.ShouldRecompute(5, mode.Fancy) {
		t.Fatalf("no delay should always pass")
	}
	if s.LastRecomputeMillis != 5 {
		t.Fatalf("last=%d want=5", s.LastRecomputeMillis)
	}
}

func TestNeedsRecompute_StrictThreshold(t *testing.T) {
	s := NewState()
	s.PreviousPosition = mgl64.Vec3{10, 64, 10}
	s.LastAppliedLuminance = 12

	if s.NeedsRecompute(mgl64.Vec3{10.1, 64, 10}, 12) {
		t.Fatalf("delta of exactly 0.1 must not trigger")
	}
	if !s.NeedsRecompute(mgl64.Vec3{10.1000001, 64, 10}, 12) {
		t.Fatalf("delta above 0.1 must trigger")
	}
	if !s.NeedsRecompute(mgl64.Vec3{10, 63.8, 10}, 12) {
		t.Fatalf("vertical movement must trigger")
	}
	if !s.NeedsRecompute(mgl64.Vec3{10, 64, 10}, 11) {
		t.Fatalf("luminance change must trigger")
	}
	if s.NeedsRecompute(mgl64.Vec3{10, 64, 10}, 12) {
		t.Fatalf("no change must not trigger")
	}
}

func TestComputeLuminance(t *testing.T) {
	if got := ComputeLuminance(true, func() int { return 7 }); got != 15 {
		t.Fatalf("on fire: got=%d want=15", got)
	}
	if got := ComputeLuminance(false, func() int { return 7 }); got != 7 {
		t.Fatalf("got=%d want=7", got)
	}
	if got := ComputeLuminance(false, func() int { return -3 }); got != 0 {
		t.Fatalf("negative must clamp: got=%d", got)
	}
	if got := ComputeLuminance(false, func() int { return 20 }); got != MaxLuminance {
		t.Fatalf("over range: got=%d want=%d", got, MaxLuminance)
	}
	if got := ComputeLuminance(false, nil); got != 0 {
		t.Fatalf("nil fn: got=%d", got)
	}
}
