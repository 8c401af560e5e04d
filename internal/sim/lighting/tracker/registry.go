package tracker

import (
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"dynlights.ai/internal/sim/lighting/chunkpos"
	"dynlights.ai/internal/sim/lighting/handlers"
	"dynlights.ai/internal/sim/lighting/mode"
	"dynlights.ai/internal/sim/lighting/source"
)

// PlayerKind keeps its light when entity light sources are switched off.
const PlayerKind = "player"

// Clock supplies the wall time in milliseconds used by the throttle.
type Clock interface {
	NowMillis() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) NowMillis() int64 { return f() }

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

type Config struct {
	ChunkSize           int
	Mode                mode.Mode
	EntitiesLightSource bool

	Clock    Clock
	Handlers *handlers.Registry
	Sink     RebuildSink
}

type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Recomputes uint64 `json:"recomputes"`
	Throttled  uint64 `json:"throttled"`
	Unchanged  uint64 `json:"unchanged"`
	Removed    uint64 `json:"removed"`
	Requests   uint64 `json:"requests"`
}

// Registry is the side table from source identity to tracking state. It is
// not safe for concurrent use; a host ticking sources in parallel must shard
// registries by source and share a concurrency-safe sink.
type Registry struct {
	tracker *Tracker
	cfg     Config

	states map[string]*source.State
	stats  Stats
}

func NewRegistry(cfg Config) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Handlers == nil {
		cfg.Handlers = handlers.New()
	}
	if cfg.Sink == nil {
		cfg.Sink = SinkFunc(func(chunkpos.Pos) {})
	}
	return &Registry{
		tracker: New(cfg.ChunkSize),
		cfg:     cfg,
		states:  map[string]*source.State{},
	}
}

func (r *Registry) Tracker() *Tracker { return r.tracker }
func (r *Registry) Mode() mode.Mode   { return r.cfg.Mode }
func (r *Registry) Stats() Stats      { return r.stats }
func (r *Registry) Len() int          { return len(r.states) }

// SetMode switches the lighting mode. Switching to Off releases every tracked
// source so the chunks they lit are rebuilt without them.
func (r *Registry) SetMode(m mode.Mode) {
	r.cfg.Mode = m
	if !m.Enabled() {
		r.DisableAll()
	}
}

func (r *Registry) SetEntitiesLightSource(on bool) {
	r.cfg.EntitiesLightSource = on
}

func (r *Registry) State(id string) (*source.State, bool) {
	st, ok := r.states[id]
	return st, ok
}

// IDs returns the tracked source ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Luminance is what src emits this tick after the fire floor and the entity toggle.
func (r *Registry) Luminance(src source.Source) int {
	if !r.cfg.EntitiesLightSource && src.Kind() != PlayerKind {
		return 0
	}
	return source.ComputeLuminance(src.OnFire(), func() int { return r.cfg.Handlers.Luminance(src) })
}

// Tick runs one update for src and reports whether its chunks were recomputed.
// A removed source is released instead.
func (r *Registry) Tick(src source.Source) bool {
	r.stats.Ticks++
	if src.Removed() {
		return r.Remove(src.ID())
	}

	// Nothing is tracked while lighting is off.
	if !r.cfg.Mode.Enabled() {
		r.stats.Throttled++
		return false
	}

	st, ok := r.states[src.ID()]
	if !ok {
		st = source.NewState()
		r.states[src.ID()] = st
	}
	st.Luminance = r.Luminance(src)

	if !st.ShouldRecompute(r.cfg.Clock.NowMillis(), r.cfg.Mode) {
		r.stats.Throttled++
		return false
	}
	pos := src.Position()
	if !st.NeedsRecompute(pos, st.Luminance) {
		r.stats.Unchanged++
		return false
	}
	r.recompute(pos, src.EyeY(), st.Luminance, st)
	return true
}

// Remove forces a final dark recompute for id, bypassing the throttle and the
// change gate, then drops its state. It reports whether id was tracked.
func (r *Registry) Remove(id string) bool {
	st, ok := r.states[id]
	if !ok {
		return false
	}
	r.recompute(st.PreviousPosition, st.PreviousPosition.Y(), 0, st)
	delete(r.states, id)
	r.stats.Removed++
	return true
}

// DisableAll releases every tracked source in id order.
func (r *Registry) DisableAll() int {
	n := 0
	for _, id := range r.IDs() {
		if r.Remove(id) {
			n++
		}
	}
	return n
}

func (r *Registry) recompute(pos mgl64.Vec3, eyeY float64, luminance int, st *source.State) {
	r.stats.Recomputes++
	r.stats.Requests += uint64(r.tracker.Recompute(pos, eyeY, luminance, st, r.cfg.Sink))
}
