// Package tracker decides which chunks must be rebuilt when a dynamic light
// source appears, moves, changes brightness or goes away.
package tracker

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"dynlights.ai/internal/sim/lighting/chunkpos"
	"dynlights.ai/internal/sim/lighting/source"
)

// RebuildSink receives chunk rebuild requests. Implementations must accept
// duplicates; a request is fire-and-forget.
type RebuildSink interface {
	ScheduleChunkRebuild(p chunkpos.Pos)
}

// SinkFunc adapts a function to RebuildSink.
type SinkFunc func(p chunkpos.Pos)

func (f SinkFunc) ScheduleChunkRebuild(p chunkpos.Pos) { f(p) }

// WalkLen is the number of chunks a lit source claims.
const WalkLen = 8

// Tracker holds the chunk geometry shared by every source it recomputes.
type Tracker struct {
	chunkSize int
}

func New(chunkSize int) *Tracker {
	if chunkSize <= 0 {
		chunkSize = chunkpos.DefaultChunkSize
	}
	return &Tracker{chunkSize: chunkSize}
}

func (t *Tracker) ChunkSize() int { return t.chunkSize }

// Walk returns the chunks a lit source at (pos.X, eyeY, pos.Z) claims, in visit order:
// origin, X, XZ, Z, then the same four shifted one chunk along the vertical bias.
func Walk(pos mgl64.Vec3, eyeY float64, chunkSize int) [WalkLen]chunkpos.Pos {
	var out [WalkLen]chunkpos.Pos

	p := chunkpos.FromWorld(pos.X(), eyeY, pos.Z(), chunkSize)
	dirX := chunkpos.Bias(pos.X(), chunkSize, chunkpos.West, chunkpos.East)
	dirY := chunkpos.Bias(eyeY, chunkSize, chunkpos.Down, chunkpos.Up)
	dirZ := chunkpos.Bias(pos.Z(), chunkSize, chunkpos.North, chunkpos.South)

	out[0] = p
	for i := 0; i < WalkLen-1; i++ {
		switch i % 4 {
		case 0:
			p = p.Offset(dirX)
		case 1:
			p = p.Offset(dirZ)
		case 2:
			p = p.Offset(dirX.Opposite())
		default:
			p = p.Offset(dirZ.Opposite()).Offset(dirY)
		}
		out[i+1] = p
	}
	return out
}

// Recompute replaces the chunks tracked by st with the ones claimed at the given
// position and luminance. Every newly claimed chunk is emitted as it is visited,
// then every previously tracked chunk that is no longer claimed, so the sink
// always sees the union of the old and new sets. It returns the number of
// requests emitted.
func (t *Tracker) Recompute(pos mgl64.Vec3, eyeY float64, luminance int, st *source.State, sink RebuildSink) int {
	if luminance < 0 {
		luminance = 0
	}
	emitted := 0
	next := make(map[chunkpos.Pos]struct{}, WalkLen)

	if luminance > 0 {
		for _, p := range Walk(pos, eyeY, t.chunkSize) {
			sink.ScheduleChunkRebuild(p)
			emitted++
			next[p] = struct{}{}
		}
	}

	vacated := make([]chunkpos.Pos, 0, len(st.Tracked))
	for p := range st.Tracked {
		if _, ok := next[p]; !ok {
			vacated = append(vacated, p)
		}
	}
	sort.Slice(vacated, func(i, j int) bool { return vacated[i].Less(vacated[j]) })
	for _, p := range vacated {
		sink.ScheduleChunkRebuild(p)
		emitted++
	}

	st.Tracked = next
	st.Luminance = luminance
	st.LastAppliedLuminance = luminance
	st.PreviousPosition = pos
	return emitted
}
