package scenario

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const sample = `
name: corridor
lights:
  - id: torch_bearer
    kind: player
    luminance: 14
    eye_height: 1.62
    speed: 2
    waypoints:
      - [8, 62, 8]
      - [24, 62, 8]
  - id: blaze_1
    kind: blaze
    on_fire: true
    eye_height: 1.5
    waypoints:
      - [-40, 70, -40]
    spawn_tick: 2
    despawn_tick: 5
`

func TestParse_AndLights(t *testing.T) {
	sc, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	lights := sc.NewLights()
	if len(lights) != 2 || lights[0].ID() != "blaze_1" || lights[1].ID() != "torch_bearer" {
		t.Fatalf("lights not sorted by id: %v", lights)
	}
	tb := lights[1]
	if tb.HeldLuminance() != 14 || tb.Kind() != "player" {
		t.Fatalf("torch bearer=%+v", tb.def)
	}
	if math.Abs(tb.EyeY()-63.62) > 1e-9 {
		t.Fatalf("eye=%v want=63.62", tb.EyeY())
	}
}

func TestParse_Rejects(t *testing.T) {
	bad := []string{
		"lights:\n  - id: a\n    kind: player\n    waypoints: []\n",
		"lights:\n  - id: a\n    kind: player\n    luminance: 16\n    waypoints: [[0,0,0]]\n",
		"lights:\n  - id: a\n    kind: x\n    waypoints: [[0,0,0]]\n  - id: a\n    kind: x\n    waypoints: [[0,0,0]]\n",
		"lights:\n  - id: a\n    kind: x\n    waypoints: [[0,0,0]]\n    spawn_tick: 5\n    despawn_tick: 5\n",
	}
	for i, b := range bad {
		if _, err := Parse([]byte(b)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestLight_AdvanceAlongWaypoints(t *testing.T) {
	l := NewLight(LightDef{
		ID: "a", Kind: "player", Speed: 5,
		Waypoints: [][3]float64{{0, 0, 0}, {8, 0, 0}, {8, 0, 8}},
	})
	l.Advance(0)
	if l.Position() != (mgl64.Vec3{5, 0, 0}) {
		t.Fatalf("tick0 pos=%v", l.Position())
	}
	l.Advance(1)
	if l.Position() != (mgl64.Vec3{8, 0, 2}) {
		t.Fatalf("tick1 pos=%v", l.Position())
	}
	l.Advance(2)
	l.Advance(3)
	if l.Position() != (mgl64.Vec3{8, 0, 8}) {
		t.Fatalf("end pos=%v", l.Position())
	}
}

func TestLight_SpawnAndDespawn(t *testing.T) {
	l := NewLight(LightDef{ID: "b", Kind: "blaze", Waypoints: [][3]float64{{1, 2, 3}}, SpawnTick: 2, DespawnTick: 4})
	l.Advance(1)
	if l.Spawned() {
		t.Fatalf("spawned before spawn tick")
	}
	l.Advance(2)
	if !l.Spawned() || l.Removed() {
		t.Fatalf("should be live at tick 2")
	}
	l.Advance(4)
	if !l.Removed() || l.Ended() {
		t.Fatalf("should be removed but not ended at tick 4")
	}
	l.Advance(5)
	if !l.Ended() {
		t.Fatalf("should be ended after removal was observed")
	}
}

func TestLoad_ShippedScenario(t *testing.T) {
	sc, err := Load("../../../configs/scenario.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	lights := sc.NewLights()
	if len(lights) != len(sc.Lights) || len(lights) == 0 {
		t.Fatalf("lights=%d defs=%d", len(lights), len(sc.Lights))
	}
	for i := 1; i < len(lights); i++ {
		if lights[i-1].ID() >= lights[i].ID() {
			t.Fatalf("lights not in id order: %s then %s", lights[i-1].ID(), lights[i].ID())
		}
	}
}
