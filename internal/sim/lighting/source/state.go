package source

import (
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"dynlights.ai/internal/sim/lighting/chunkpos"
	"dynlights.ai/internal/sim/lighting/mode"
)

const (
	// MoveThreshold is the per-axis distance a source must exceed before its chunks are recomputed.
	MoveThreshold = 0.1

	FireLuminance = 15
	MaxLuminance  = 15
)

// State is the per-source tracking record.
type State struct {
	Luminance            int
	LastAppliedLuminance int
	LastRecomputeMillis  int64
	PreviousPosition     mgl64.Vec3

	// Tracked holds the chunks this source currently claims to light.
	Tracked map[chunkpos.Pos]struct{}
}

func NewState() *State {
	return &State{Tracked: map[chunkpos.Pos]struct{}{}}
}

// ShouldRecompute is the mode/delay throttle. Inside the delay window it returns
// false without touching the state; suppressed ticks are not deferred.
func (s *State) ShouldRecompute(nowMillis int64, m mode.Mode) bool {
	if !m.Enabled() {
		return false
	}
	if m.HasDelay() && nowMillis < s.LastRecomputeMillis+m.DelayMillis() {
		return false
	}
	s.LastRecomputeMillis = nowMillis
	return true
}

// NeedsRecompute reports whether the source moved more than MoveThreshold on
// any axis, or its luminance differs from the last applied value.
func (s *State) NeedsRecompute(pos mgl64.Vec3, luminance int) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(pos[i]-s.PreviousPosition[i]) > MoveThreshold {
			return true
		}
	}
	return luminance != s.LastAppliedLuminance
}

// Reset forgets the applied luminance so the next tick with light recomputes.
func (s *State) Reset() {
	s.LastAppliedLuminance = 0
}

// TrackedChunks returns the tracked set sorted by chunkpos.Pos.Less.
func (s *State) TrackedChunks() []chunkpos.Pos {
	out := make([]chunkpos.Pos, 0, len(s.Tracked))
	for p := range s.Tracked {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// ComputeLuminance combines the fire floor with the external luminance function.
// The result is clamped to [0, MaxLuminance].
func ComputeLuminance(onFire bool, external func() int) int {
	lum := 0
	if onFire {
		lum = FireLuminance
	}
	if external != nil {
		if v := external(); v > lum {
			lum = v
		}
	}
	if lum < 0 {
		return 0
	}
	if lum > MaxLuminance {
		return MaxLuminance
	}
	return lum
}
