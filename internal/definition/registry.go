package definition

import (
	"crypto/sha256"
	"encoding/hex"
	"maps"
	"slices"
	"sync/atomic"

	"github.com/pitabwire/callcenter/model"
)

// Registry holds the published screen definitions. Readers never block: a
// publish swaps in a whole new generation, and sessions already mounted keep
// the definition they started with.
type Registry struct {
	gen atomic.Pointer[generation]
}

type generation struct {
	byID     map[string]model.ScreenDefinition
	ids      []string
	checksum string
}

func NewRegistry(defs []model.ScreenDefinition) *Registry {
	r := &Registry{}
	r.Publish(defs)
	return r
}

// Publish replaces the current definitions with defs and reports whether the
// combined checksum changed.
func (r *Registry) Publish(defs []model.ScreenDefinition) (changed bool) {
	g := &generation{byID: make(map[string]model.ScreenDefinition, len(defs))}
	for _, def := range defs {
		g.byID[def.ID] = def
	}
	g.ids = slices.Sorted(maps.Keys(g.byID))

	// Hash id=checksum pairs in id order so the result ignores load order.
	h := sha256.New()
	for _, id := range g.ids {
		h.Write([]byte(id + "=" + g.byID[id].Checksum + "\n"))
	}
	g.checksum = hex.EncodeToString(h.Sum(nil))

	prev := r.gen.Swap(g)
	return prev == nil || prev.checksum != g.checksum
}

// Get returns the definition of screen id.
func (r *Registry) Get(id string) (model.ScreenDefinition, bool) {
	def, ok := r.gen.Load().byID[id]
	return def, ok
}

// IDs lists the published screen IDs in ascending order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.gen.Load().ids)
}

func (r *Registry) Len() int {
	return len(r.gen.Load().byID)
}

// Checksum identifies the published generation.
func (r *Registry) Checksum() string {
	return r.gen.Load().checksum
}
