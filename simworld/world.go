// Package simworld is an in-memory persist.World with level streaming. It
// backs headless servers and tests: entities live in an arena addressed by
// handle, levels are lists of designer placements, and every load spawns
// those placements afresh with empty identity tags, the way an engine
// reload does.
package simworld

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/oriumgames/persist"
)

var (
	// ErrInvalidHandle is returned for handles that do not name a live entity.
	ErrInvalidHandle = errors.New("simworld: invalid handle")

	// ErrUnknownType is returned when instantiating a type that was never
	// declared.
	ErrUnknownType = errors.New("simworld: unknown entity type")

	// ErrUnknownLevel is returned when loading an undefined level.
	ErrUnknownLevel = errors.New("simworld: unknown level")
)

// Placement is an entity authored into a level.
type Placement struct {
	Type    string
	Pose    persist.LocalPose
	Payload map[persist.PayloadKind][]byte
}

// Entity is the live state of one simulated entity.
type Entity struct {
	Type       string
	Space      persist.SpaceID
	Pose       persist.WorldPose
	Tag        persist.IdentityTag
	Physics    persist.PhysicsSample
	Simulating bool
	Payload    map[persist.PayloadKind][]byte
}

// Completer receives streaming completions. *persist.Session implements it.
type Completer interface {
	SpaceLoaded(id persist.SpaceID)
	SpaceUnloaded(id persist.SpaceID)
}

type completion struct {
	space  persist.SpaceID
	loaded bool
}

// World is an in-memory world. It is safe for concurrent use, although the
// persistence core only ever calls it from one goroutine.
type World struct {
	mu sync.RWMutex

	// arena of entities; index 0 is never used so the zero handle is invalid
	arena []*Entity

	types     map[string]struct{}
	levels    map[string][]Placement
	unsettled map[persist.SpaceID]bool
	loaded    map[persist.SpaceID]string
	pending   []completion

	// failLoad, when set, makes Load fail
	failLoad error
}

// New creates an empty world.
func New() *World {
	return &World{
		arena:     []*Entity{nil},
		types:     make(map[string]struct{}),
		levels:    make(map[string][]Placement),
		unsettled: make(map[persist.SpaceID]bool),
		loaded:    make(map[persist.SpaceID]string),
	}
}

// DeclareType allows Instantiate to create entities of the given types.
// Types used by a level are declared implicitly.
func (w *World) DeclareType(types ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range types {
		w.types[t] = struct{}{}
	}
}

// DefineLevel registers the designer placements of a level definition.
func (w *World) DefineLevel(definition string, placements ...Placement) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.levels[definition] = slices.Clone(placements)
	for _, p := range placements {
		w.types[p.Type] = struct{}{}
	}
}

// Spawn places an untagged entity, as a designer placement would be.
func (w *World) Spawn(typeTag string, pose persist.WorldPose, space persist.SpaceID) persist.Handle {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.types[typeTag] = struct{}{}
	return w.spawn(&Entity{Type: typeTag, Space: space, Pose: pose})
}

func (w *World) spawn(e *Entity) persist.Handle {
	w.arena = append(w.arena, e)
	return persist.Handle(len(w.arena) - 1)
}

// entity returns the live entity for h. Callers hold the lock.
func (w *World) entity(h persist.Handle) (*Entity, bool) {
	if h == 0 || int(h) >= len(w.arena) {
		return nil, false
	}
	e := w.arena[h]
	return e, e != nil
}

// Entity returns a copy of the live state of h.
func (w *World) Entity(h persist.Handle) (Entity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entity(h)
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

// Mutate applies fn to the live entity behind h. It reports whether h was
// valid.
func (w *World) Mutate(h persist.Handle, fn func(e *Entity)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entity(h)
	if ok {
		fn(e)
	}
	return ok
}

// Count returns the number of live entities in space.
func (w *World) Count(space persist.SpaceID) int {
	return len(w.Entities(space))
}

// Entities implements persist.World.
func (w *World) Entities(space persist.SpaceID) []persist.Handle {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []persist.Handle
	for i, e := range w.arena {
		if e != nil && e.Space == space {
			out = append(out, persist.Handle(i))
		}
	}
	return out
}

// FindByToken implements persist.World.
func (w *World) FindByToken(space persist.SpaceID, id persist.Token) (persist.Handle, bool) {
	if id.IsZero() {
		return 0, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for i, e := range w.arena {
		if e == nil || e.Tag.ID != id {
			continue
		}
		if e.Space == space || e.Tag.Space == space {
			return persist.Handle(i), true
		}
	}
	return 0, false
}

// Instantiate implements persist.World.
func (w *World) Instantiate(typeTag string, pose persist.WorldPose, space persist.SpaceID) (persist.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.types[typeTag]; !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, typeTag)
	}
	return w.spawn(&Entity{Type: typeTag, Space: space, Pose: pose}), nil
}

// Destroy implements persist.World.
func (w *World) Destroy(h persist.Handle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entity(h); !ok {
		return ErrInvalidHandle
	}
	w.arena[h] = nil
	return nil
}

// Type implements persist.World.
func (w *World) Type(h persist.Handle) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.entity(h); ok {
		return e.Type
	}
	return ""
}

// Tag implements persist.World.
func (w *World) Tag(h persist.Handle) (persist.IdentityTag, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entity(h)
	if !ok {
		return persist.IdentityTag{}, false
	}
	return e.Tag, true
}

// SetTag implements persist.World.
func (w *World) SetTag(h persist.Handle, tag persist.IdentityTag) {
	w.Mutate(h, func(e *Entity) { e.Tag = tag })
}

// Pose implements persist.World.
func (w *World) Pose(h persist.Handle) persist.WorldPose {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.entity(h); ok {
		return e.Pose
	}
	return persist.WorldPose{}
}

// SetPose implements persist.World.
func (w *World) SetPose(h persist.Handle, p persist.WorldPose) {
	w.Mutate(h, func(e *Entity) { e.Pose = p })
}

// Physics implements persist.World.
func (w *World) Physics(h persist.Handle) (persist.PhysicsSample, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if e, ok := w.entity(h); ok {
		return e.Physics, e.Simulating
	}
	return persist.PhysicsSample{}, false
}

// SetPhysics implements persist.World.
func (w *World) SetPhysics(h persist.Handle, sample persist.PhysicsSample) {
	w.Mutate(h, func(e *Entity) { e.Physics = sample })
}

// Settled implements persist.Settler.
func (w *World) Settled(space persist.SpaceID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.unsettled[space]
}

// SetSettled controls what Settled reports for space.
func (w *World) SetSettled(space persist.SpaceID, settled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if settled {
		delete(w.unsettled, space)
	} else {
		w.unsettled[space] = true
	}
}

// Compile-time checks.
var (
	_ persist.World    = (*World)(nil)
	_ persist.Settler  = (*World)(nil)
	_ persist.Streamer = (*World)(nil)
)
