package source

import "github.com/go-gl/mathgl/mgl64"

// Source is anything that can emit dynamic light. Implementations are adapters
// over objects owned by the host world; the tracker only reads through them.
type Source interface {
	// ID is a stable handle for the lifetime of the source.
	ID() string
	Kind() string
	Position() mgl64.Vec3
	EyeY() float64
	OnFire() bool
	Removed() bool
}
