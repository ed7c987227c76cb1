package dfworld

import (
	"sync"

	"github.com/df-mc/dragonfly/server/world"
)

// Factory creates the handle of a persistable entity at the given spawn
// options. The World adds it to the transaction.
type Factory func(opts world.EntitySpawnOpts) *world.EntityHandle

// typeRegistry maps persist type tags to factories, with lock-free reads.
// Types are registered once at startup and looked up on every scan.
type typeRegistry struct {
	// factories maps a type tag to its Factory
	factories sync.Map // map[string]Factory

	// mu serialises registration
	mu sync.Mutex
}

// register installs f for typeTag, replacing any earlier factory.
func (r *typeRegistry) register(typeTag string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories.Store(typeTag, f)
}

// factory returns the factory of typeTag.
func (r *typeRegistry) factory(typeTag string) (Factory, bool) {
	f, ok := r.factories.Load(typeTag)
	if !ok {
		return nil, false
	}
	return f.(Factory), true
}

// persistable reports whether entities of typeTag take part in persistence.
func (r *typeRegistry) persistable(typeTag string) bool {
	_, ok := r.factories.Load(typeTag)
	return ok
}

// tags returns every registered type tag.
func (r *typeRegistry) tags() []string {
	var out []string
	r.factories.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}
