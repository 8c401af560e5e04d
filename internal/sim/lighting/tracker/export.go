package tracker

import (
	"github.com/go-gl/mathgl/mgl64"

	"dynlights.ai/internal/sim/lighting/chunkpos"
	"dynlights.ai/internal/sim/lighting/source"
)

// LightState is the exported form of one side-table entry.
type LightState struct {
	ID                   string     `json:"id"`
	Luminance            int        `json:"luminance"`
	LastAppliedLuminance int        `json:"last_applied_luminance"`
	LastRecomputeMillis  int64      `json:"last_recompute_ms"`
	PreviousPosition     [3]float64 `json:"previous_position"`
	Tracked              [][3]int   `json:"tracked"`
}

// Export returns every tracked source in id order.
func (r *Registry) Export() []LightState {
	out := make([]LightState, 0, len(r.states))
	for _, id := range r.IDs() {
		st := r.states[id]
		ls := LightState{
			ID:                   id,
			Luminance:            st.Luminance,
			LastAppliedLuminance: st.LastAppliedLuminance,
			LastRecomputeMillis:  st.LastRecomputeMillis,
			PreviousPosition:     st.PreviousPosition,
		}
		for _, p := range st.TrackedChunks() {
			ls.Tracked = append(ls.Tracked, p.Array())
		}
		out = append(out, ls)
	}
	return out
}

// Import replaces the side table. Imported states are reset so each source
// re-emits its chunks on its next lit tick. Sources that are gone after a
// resume are released by Prune, on their first Tick with Removed() set, or by
// DisableAll.
func (r *Registry) Import(states []LightState) {
	r.states = make(map[string]*source.State, len(states))
	for _, ls := range states {
		st := source.NewState()
		st.Luminance = ls.Luminance
		st.LastAppliedLuminance = ls.LastAppliedLuminance
		st.LastRecomputeMillis = ls.LastRecomputeMillis
		st.PreviousPosition = mgl64.Vec3(ls.PreviousPosition)
		for _, a := range ls.Tracked {
			st.Tracked[chunkpos.FromArray(a)] = struct{}{}
		}
		st.Reset()
		r.states[ls.ID] = st
	}
}

// Prune releases every tracked source whose id is not in live.
func (r *Registry) Prune(live map[string]bool) int {
	n := 0
	for _, id := range r.IDs() {
		if !live[id] && r.Remove(id) {
			n++
		}
	}
	return n
}
