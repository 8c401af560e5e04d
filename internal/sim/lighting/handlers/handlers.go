// Package handlers maps light source kinds to luminance functions.
package handlers

import (
	"sync"

	"dynlights.ai/internal/sim/lighting/source"
)

// Func returns the luminance a source emits this tick. It must not mutate the source.
type Func func(src source.Source) int

// HeldLuminance is implemented by sources that carry their own light (held or
// dropped items, scripted lights). It is consulted when no kind handler is registered.
type HeldLuminance interface {
	HeldLuminance() int
}

type Registry struct {
	mu     sync.RWMutex
	byKind map[string]Func
}

func New() *Registry {
	return &Registry{byKind: map[string]Func{}}
}

// Register replaces any handler already bound to kind.
func (r *Registry) Register(kind string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil {
		delete(r.byKind, kind)
		return
	}
	r.byKind[kind] = fn
}

func (r *Registry) Has(kind string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byKind[kind]
	return ok
}

// Luminance dispatches on the source kind; unknown kinds fall back to
// HeldLuminance, then 0.
func (r *Registry) Luminance(src source.Source) int {
	if r != nil {
		r.mu.RLock()
		fn, ok := r.byKind[src.Kind()]
		r.mu.RUnlock()
		if ok {
			return fn(src)
		}
	}
	if h, ok := src.(HeldLuminance); ok {
		return h.HeldLuminance()
	}
	return 0
}

func Constant(v int) Func {
	return func(source.Source) int { return v }
}

// RegisterDefaults binds the built-in entity kinds that glow on their own.
func RegisterDefaults(r *Registry) {
	r.Register("blaze", Constant(10))
	r.Register("magma_cube", Constant(8))
	r.Register("spectral_arrow", Constant(8))
	r.Register("glow_squid", Constant(8))
	r.Register("fireball", Constant(14))
}
