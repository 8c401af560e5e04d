// Package runner drives the lighting tracker once per tick over a set of
// scripted light sources and fans the resulting rebuild batches out to sinks.
package runner

import (
	"context"
	"log"
	"sync"
	"time"

	"dynlights.ai/internal/persistence/snapshot"
	"dynlights.ai/internal/sim/lighting/handlers"
	"dynlights.ai/internal/sim/lighting/mode"
	"dynlights.ai/internal/sim/lighting/rebuild"
	"dynlights.ai/internal/sim/lighting/tracker"
	"dynlights.ai/internal/sim/scenario"
	"dynlights.ai/internal/sim/tuning"
)

// TickLogEntry is one line of the tick log.
type TickLogEntry struct {
	Tick       uint64   `json:"tick"`
	Mode       string   `json:"mode"`
	Lights     int      `json:"lights"`
	Recomputes uint64   `json:"recomputes"`
	Throttled  uint64   `json:"throttled,omitempty"`
	Removed    []string `json:"removed,omitempty"`
	Requests   uint64   `json:"requests"`
	Rebuilds   [][3]int `json:"rebuilds"`
	Final      bool     `json:"final,omitempty"`
}

type TickSink interface {
	WriteTick(entry TickLogEntry) error
}

type Config struct {
	WorldID string
	Tuning  tuning.Tuning
	Clock   tracker.Clock
	Logger  *log.Logger

	Sinks []TickSink

	// Control delivers mode switches requested from other goroutines; they are
	// applied between ticks.
	Control <-chan mode.Mode

	// OnSnapshot is called every Tuning.SnapshotEveryTicks ticks and on shutdown.
	OnSnapshot func(snap snapshot.SnapshotV1)
}

// Metrics is a point-in-time view of the runner, safe to read from other goroutines.
type Metrics struct {
	Tick    uint64        `json:"tick"`
	Mode    string        `json:"mode"`
	Lights  int           `json:"lights"`
	Tracked int           `json:"tracked"`
	StepMS  float64       `json:"step_ms"`
	Tracker tracker.Stats `json:"tracker"`
	Queue   rebuild.Stats `json:"queue"`
}

type Runner struct {
	cfg    Config
	logger *log.Logger

	queue    *rebuild.Queue
	registry *tracker.Registry
	lights   []*scenario.Light

	tick uint64

	metricsMu sync.Mutex
	metrics   Metrics
}

func New(cfg Config, lights []*scenario.Light) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[runner] ", log.LstdFlags)
	}
	h := handlers.New()
	handlers.RegisterDefaults(h)

	q := rebuild.NewQueue()
	reg := tracker.NewRegistry(tracker.Config{
		ChunkSize:           cfg.Tuning.ChunkSize,
		Mode:                cfg.Tuning.Mode,
		EntitiesLightSource: cfg.Tuning.EntitiesLightSource,
		Clock:               cfg.Clock,
		Handlers:            h,
		Sink:                q,
	})
	return &Runner{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		registry: reg,
		lights:   lights,
	}
}

func (r *Runner) Registry() *tracker.Registry { return r.registry }
func (r *Runner) Queue() *rebuild.Queue       { return r.queue }
func (r *Runner) CurrentTick() uint64         { return r.tick }

// SetMode switches the lighting mode between ticks.
func (r *Runner) SetMode(m mode.Mode) {
	r.registry.SetMode(m)
	r.cfg.Tuning.Mode = m
}

// Step runs one tick synchronously and returns its log entry.
func (r *Runner) Step() TickLogEntry {
	start := time.Now()
	tick := r.tick
	before := r.registry.Stats()

	var removed []string
	live := 0
	for _, l := range r.lights {
		l.Advance(tick)
		if l.Ended() || !l.Spawned() {
			continue
		}
		if l.Removed() {
			removed = append(removed, l.ID())
		} else {
			live++
		}
		r.registry.Tick(l)
	}

	entry := r.entry(tick, before, live)
	entry.Removed = removed
	r.emit(entry)

	if every := r.cfg.Tuning.SnapshotEveryTicks; every > 0 && tick > 0 && tick%uint64(every) == 0 {
		r.snapshot(tick)
	}
	r.tick++
	r.publish(entry, time.Since(start))
	return entry
}

func (r *Runner) Metrics() Metrics {
	r.metricsMu.Lock()
	defer r.metricsMu.Unlock()
	return r.metrics
}

func (r *Runner) publish(entry TickLogEntry, took time.Duration) {
	m := Metrics{
		Tick:    entry.Tick,
		Mode:    entry.Mode,
		Lights:  entry.Lights,
		Tracked: r.registry.Len(),
		StepMS:  float64(took.Microseconds()) / 1000,
		Tracker: r.registry.Stats(),
		Queue:   r.queue.Stats(),
	}
	r.metricsMu.Lock()
	r.metrics = m
	r.metricsMu.Unlock()
}

// Shutdown releases every tracked light and emits the final rebuild batch.
func (r *Runner) Shutdown() TickLogEntry {
	before := r.registry.Stats()
	n := r.registry.DisableAll()
	entry := r.entry(r.tick, before, 0)
	entry.Final = true
	r.emit(entry)
	r.logger.Printf("shutdown tick=%d released=%d rebuilds=%d", r.tick, n, len(entry.Rebuilds))
	return entry
}

// Run ticks at Tuning.TickRateHz until ctx is done, then shuts down.
func (r *Runner) Run(ctx context.Context) error {
	hz := r.cfg.Tuning.TickRateHz
	if hz <= 0 {
		hz = 20
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Shutdown()
			r.snapshot(r.tick)
			return ctx.Err()
		case m := <-r.cfg.Control:
			if m != r.registry.Mode() {
				r.logger.Printf("mode %s -> %s at tick=%d", r.registry.Mode(), m, r.tick)
				r.SetMode(m)
			}
		case <-ticker.C:
			r.Step()
		}
	}
}

// ExportSnapshot captures the tracking side table at the current tick.
func (r *Runner) ExportSnapshot() snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header:              snapshot.Header{Version: snapshot.Version, WorldID: r.cfg.WorldID, Tick: r.tick},
		ChunkSize:           r.registry.Tracker().ChunkSize(),
		Mode:                r.registry.Mode().String(),
		EntitiesLightSource: r.cfg.Tuning.EntitiesLightSource,
		Lights:              r.registry.Export(),
	}
}

// ImportSnapshot restores tracked state and releases lights the scenario no
// longer has, so their chunks are rebuilt on the next emitted batch.
func (r *Runner) ImportSnapshot(snap snapshot.SnapshotV1) int {
	r.tick = snap.Header.Tick
	r.registry.Import(snap.Lights)
	live := make(map[string]bool, len(r.lights))
	for _, l := range r.lights {
		live[l.ID()] = true
	}
	return r.registry.Prune(live)
}

func (r *Runner) entry(tick uint64, before tracker.Stats, live int) TickLogEntry {
	after := r.registry.Stats()
	chunks := r.queue.Drain()
	rebuilds := make([][3]int, 0, len(chunks))
	for _, p := range chunks {
		rebuilds = append(rebuilds, p.Array())
	}
	return TickLogEntry{
		Tick:       tick,
		Mode:       r.registry.Mode().String(),
		Lights:     live,
		Recomputes: after.Recomputes - before.Recomputes,
		Throttled:  after.Throttled - before.Throttled,
		Requests:   after.Requests - before.Requests,
		Rebuilds:   rebuilds,
	}
}

func (r *Runner) emit(entry TickLogEntry) {
	for _, s := range r.cfg.Sinks {
		if err := s.WriteTick(entry); err != nil {
			r.logger.Printf("tick %d: write: %v", entry.Tick, err)
		}
	}
}

func (r *Runner) snapshot(tick uint64) {
	if r.cfg.OnSnapshot == nil {
		return
	}
	snap := r.ExportSnapshot()
	snap.Header.Tick = tick
	r.cfg.OnSnapshot(snap)
}
