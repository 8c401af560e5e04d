// Package chunkpos holds chunk-grid coordinates and the axis directions used to
// walk between neighbouring chunks.
package chunkpos

import (
	"fmt"

	"dynlights.ai/internal/sim/lighting/logic/mathx"
)

// DefaultChunkSize is the edge length of a cubic chunk in world units.
const DefaultChunkSize = 16

// Pos identifies a chunk in chunk-grid units. It is comparable and used as a map key.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Pos) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

func (p Pos) Offset(d Direction) Pos {
	dx, dy, dz := d.Vector()
	return Pos{X: p.X + dx, Y: p.Y + dy, Z: p.Z + dz}
}

func (p Pos) Array() [3]int {
	return [3]int{p.X, p.Y, p.Z}
}

func FromArray(a [3]int) Pos {
	return Pos{X: a[0], Y: a[1], Z: a[2]}
}

// Less orders by Y, then Z, then X.
func (p Pos) Less(o Pos) bool {
	if p.Y != o.Y {
		return p.Y < o.Y
	}
	if p.Z != o.Z {
		return p.Z < o.Z
	}
	return p.X < o.X
}

// FromWorld returns the chunk containing the world point. The vertical component
// is taken from y as given (callers pass the eye height).
func FromWorld(x, y, z float64, chunkSize int) Pos {
	return Pos{
		X: mathx.FloorDiv(mathx.FloorInt(x), chunkSize),
		Y: mathx.FloorDiv(mathx.FloorInt(y), chunkSize),
		Z: mathx.FloorDiv(mathx.FloorInt(z), chunkSize),
	}
}

// Bias picks high when v lies in the upper half of its chunk (ties go high), low otherwise.
func Bias(v float64, chunkSize int, low, high Direction) Direction {
	if mathx.Mod(mathx.FloorInt(v), chunkSize) >= chunkSize/2 {
		return high
	}
	return low
}

type Direction uint8

const (
	Down Direction = iota
	Up
	North
	South
	West
	East
)

func (d Direction) Vector() (dx, dy, dz int) {
	switch d {
	case Down:
		return 0, -1, 0
	case Up:
		return 0, 1, 0
	case North:
		return 0, 0, -1
	case South:
		return 0, 0, 1
	case West:
		return -1, 0, 0
	case East:
		return 1, 0, 0
	}
	return 0, 0, 0
}

func (d Direction) Opposite() Direction {
	switch d {
	case Down:
		return Up
	case Up:
		return Down
	case North:
		return South
	case South:
		return North
	case West:
		return East
	default:
		return West
	}
}

func (d Direction) String() string {
	switch d {
	case Down:
		return "down"
	case Up:
		return "up"
	case North:
		return "north"
	case South:
		return "south"
	case West:
		return "west"
	case East:
		return "east"
	}
	return "unknown"
}
