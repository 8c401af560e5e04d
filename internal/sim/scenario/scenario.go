// Package scenario scripts light sources for the headless simulator: each light
// follows a list of waypoints and may despawn at a given tick.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Scenario struct {
	Name   string     `yaml:"name"`
	Lights []LightDef `yaml:"lights" validate:"dive"`
}

type LightDef struct {
	ID          string       `yaml:"id" validate:"required"`
	Kind        string       `yaml:"kind" validate:"required"`
	Luminance   int          `yaml:"luminance" validate:"min=0,max=15"`
	EyeHeight   float64      `yaml:"eye_height" validate:"min=0"`
	OnFire      bool         `yaml:"on_fire"`
	Speed       float64      `yaml:"speed" validate:"min=0"`
	Loop        bool         `yaml:"loop"`
	Waypoints   [][3]float64 `yaml:"waypoints" validate:"min=1"`
	SpawnTick   uint64       `yaml:"spawn_tick"`
	DespawnTick uint64       `yaml:"despawn_tick"`
}

var validate = validator.New()

func Load(path string) (*Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := validate.Struct(&sc); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	seen := map[string]bool{}
	for _, d := range sc.Lights {
		if seen[d.ID] {
			return nil, fmt.Errorf("scenario: duplicate light id %q", d.ID)
		}
		seen[d.ID] = true
		if d.DespawnTick != 0 && d.DespawnTick <= d.SpawnTick {
			return nil, fmt.Errorf("scenario: light %q despawns before it spawns", d.ID)
		}
	}
	return &sc, nil
}

// NewLights builds the runtime lights in id order.
func (sc *Scenario) NewLights() []*Light {
	out := make([]*Light, 0, len(sc.Lights))
	for _, d := range sc.Lights {
		out = append(out, NewLight(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].def.ID < out[j].def.ID })
	return out
}

// Light is a scripted source. It satisfies source.Source and handlers.HeldLuminance.
type Light struct {
	def  LightDef
	path []mgl64.Vec3

	pos     mgl64.Vec3
	leg     int
	removed bool
	spawned bool
	ended   bool
}

func NewLight(d LightDef) *Light {
	l := &Light{def: d}
	for _, w := range d.Waypoints {
		l.path = append(l.path, mgl64.Vec3(w))
	}
	if len(l.path) > 0 {
		l.pos = l.path[0]
	}
	return l
}

func (l *Light) ID() string           { return l.def.ID }
func (l *Light) Kind() string         { return l.def.Kind }
func (l *Light) Position() mgl64.Vec3 { return l.pos }
func (l *Light) EyeY() float64        { return l.pos.Y() + l.def.EyeHeight }
func (l *Light) OnFire() bool         { return l.def.OnFire }
func (l *Light) Removed() bool        { return l.removed }
func (l *Light) HeldLuminance() int   { return l.def.Luminance }

// Spawned reports whether the light exists in the world at the current tick.
func (l *Light) Spawned() bool { return l.spawned }

// Ended reports that the light was removed and its removal was already observed.
func (l *Light) Ended() bool { return l.ended }

// Advance moves the light to where it is at tick. Movement is Speed world units
// per tick along the waypoint polyline.
func (l *Light) Advance(tick uint64) {
	if l.removed {
		l.ended = true
		return
	}
	if tick < l.def.SpawnTick {
		return
	}
	l.spawned = true
	if l.def.DespawnTick != 0 && tick >= l.def.DespawnTick {
		l.removed = true
		return
	}
	budget := l.def.Speed
	for budget > 0 && len(l.path) > 1 {
		next := l.leg + 1
		if next >= len(l.path) {
			if !l.def.Loop {
				return
			}
			next = 0
		}
		target := l.path[next]
		d := target.Sub(l.pos)
		dist := d.Len()
		if dist <= budget {
			l.pos = target
			budget -= dist
			l.leg = next
			continue
		}
		l.pos = l.pos.Add(d.Mul(budget / dist))
		budget = 0
	}
}
