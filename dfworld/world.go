// Package dfworld adapts a Dragonfly world to persist.World.
//
// Dragonfly only exposes entities inside a transaction, so every call into
// the persistence core must run inside Exec:
//
//	w := dfworld.New(srv.World())
//	w.Register(crateType.EncodeEntity(), func(opts world.EntitySpawnOpts) *world.EntityHandle {
//	    return opts.New(crateType, crateConfig)
//	})
//	w.Exec(func() {
//	    sess.Tick(time.Now())
//	})
//
// Only entities of registered types are persisted. Sub-spaces are regions
// of the same Dragonfly world, declared with Region.
package dfworld

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/oriumgames/persist"
)

var (
	// ErrNoTransaction is returned when the World is used outside Exec.
	ErrNoTransaction = errors.New("dfworld: no active transaction")

	// ErrUnknownType is returned when instantiating an unregistered type.
	ErrUnknownType = errors.New("dfworld: unregistered entity type")

	// ErrInvalidHandle is returned for handles that no longer name an entity.
	ErrInvalidHandle = errors.New("dfworld: invalid handle")
)

// slot is one arena entry. Handles are slot indices plus one.
type slot struct {
	handle *world.EntityHandle
	tag    persist.IdentityTag
}

// World implements persist.World over a Dragonfly world.
type World struct {
	w *world.World

	// tx is the transaction bound by Exec
	tx *world.Tx

	types typeRegistry

	mu      sync.Mutex
	arena   []slot
	index   map[*world.EntityHandle]persist.Handle
	regions map[persist.SpaceID]cube.BBox
}

// New creates an adapter over w.
func New(w *world.World) *World {
	return &World{
		w:       w,
		index:   make(map[*world.EntityHandle]persist.Handle),
		regions: make(map[persist.SpaceID]cube.BBox),
	}
}

// Register makes entities of typeTag persistable. typeTag must equal the
// EncodeEntity name of the entity type f creates.
func (d *World) Register(typeTag string, f Factory) {
	d.types.register(typeTag, f)
}

// Types returns the registered type tags, sorted.
func (d *World) Types() []string {
	tags := d.types.tags()
	slices.Sort(tags)
	return tags
}

// Region declares the box a sub-space occupies. Entities inside it belong to
// the space instead of the main world.
func (d *World) Region(space persist.SpaceID, box cube.BBox) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regions[space] = box
}

// RemoveRegion forgets a sub-space region.
func (d *World) RemoveRegion(space persist.SpaceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regions, space)
}

// Exec runs fn inside a transaction of the underlying world and waits for it
// to finish. Every persistence call must happen inside fn.
func (d *World) Exec(fn func()) {
	<-d.w.Exec(func(tx *world.Tx) {
		d.Bind(tx)
		defer d.Bind(nil)
		fn()
	})
}

// Bind sets the transaction used by subsequent calls. Use it when already
// running inside a transaction, such as from a Dragonfly handler.
func (d *World) Bind(tx *world.Tx) {
	d.mu.Lock()
	d.tx = tx
	d.mu.Unlock()
}

func (d *World) txn() *world.Tx {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx
}

// handleOf returns the arena handle of h, adding it on first sight.
func (d *World) handleOf(h *world.EntityHandle) persist.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.index[h]; ok {
		return id
	}
	d.arena = append(d.arena, slot{handle: h})
	id := persist.Handle(len(d.arena))
	d.index[h] = id
	return id
}

// slotOf returns the arena entry of id.
func (d *World) slotOf(id persist.Handle) (*slot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if id == 0 || int(id) > len(d.arena) {
		return nil, false
	}
	s := &d.arena[id-1]
	return s, s.handle != nil
}

// entity resolves id in the bound transaction.
func (d *World) entity(id persist.Handle) (world.Entity, bool) {
	tx := d.txn()
	if tx == nil {
		return nil, false
	}
	s, ok := d.slotOf(id)
	if !ok {
		return nil, false
	}
	return s.handle.Entity(tx)
}

// spaceAt returns the sub-space whose region contains pos, or MainSpace.
func (d *World) spaceAt(pos mgl64.Vec3) persist.SpaceID {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, box := range d.regions {
		if box.Vec3Within(pos) {
			return id
		}
	}
	return persist.MainSpace
}

// typeTag returns the persist type tag of an entity.
func typeTag(e world.Entity) string {
	return e.H().Type().EncodeEntity()
}

// Entities implements persist.World.
func (d *World) Entities(space persist.SpaceID) []persist.Handle {
	tx := d.txn()
	if tx == nil {
		return nil
	}
	var out []persist.Handle
	for e := range tx.Entities() {
		if !d.types.persistable(typeTag(e)) || d.spaceAt(e.Position()) != space {
			continue
		}
		out = append(out, d.handleOf(e.H()))
	}
	return out
}

// FindByToken implements persist.World.
func (d *World) FindByToken(space persist.SpaceID, id persist.Token) (persist.Handle, bool) {
	if id.IsZero() {
		return 0, false
	}
	d.mu.Lock()
	var found []persist.Handle
	for i, s := range d.arena {
		if s.handle != nil && s.tag.ID == id {
			found = append(found, persist.Handle(i+1))
		}
	}
	d.mu.Unlock()

	for _, h := range found {
		e, ok := d.entity(h)
		if !ok {
			continue
		}
		s, _ := d.slotOf(h)
		if s.tag.Space == space || d.spaceAt(e.Position()) == space {
			return h, true
		}
	}
	return 0, false
}

// Instantiate implements persist.World.
func (d *World) Instantiate(typeTag string, pose persist.WorldPose, space persist.SpaceID) (persist.Handle, error) {
	tx := d.txn()
	if tx == nil {
		return 0, ErrNoTransaction
	}
	f, ok := d.types.factory(typeTag)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, typeTag)
	}
	e := tx.AddEntity(f(world.EntitySpawnOpts{
		Position: pose.Position,
		Rotation: rotationOf(pose.Rotation),
	}))
	h := d.handleOf(e.H())
	if s, ok := d.slotOf(h); ok {
		s.tag.Space = space
	}
	return h, nil
}

// Destroy implements persist.World.
func (d *World) Destroy(id persist.Handle) error {
	tx := d.txn()
	if tx == nil {
		return ErrNoTransaction
	}
	e, ok := d.entity(id)
	if !ok {
		return ErrInvalidHandle
	}
	h := tx.RemoveEntity(e)
	d.mu.Lock()
	delete(d.index, h)
	d.arena[id-1] = slot{}
	d.mu.Unlock()
	return h.Close()
}

// Type implements persist.World.
func (d *World) Type(id persist.Handle) string {
	s, ok := d.slotOf(id)
	if !ok {
		return ""
	}
	return s.handle.Type().EncodeEntity()
}

// Tag implements persist.World.
func (d *World) Tag(id persist.Handle) (persist.IdentityTag, bool) {
	if _, ok := d.entity(id); !ok {
		return persist.IdentityTag{}, false
	}
	s, _ := d.slotOf(id)
	d.mu.Lock()
	defer d.mu.Unlock()
	return s.tag, true
}

// SetTag implements persist.World.
func (d *World) SetTag(id persist.Handle, tag persist.IdentityTag) {
	s, ok := d.slotOf(id)
	if !ok {
		return
	}
	d.mu.Lock()
	s.tag = tag
	d.mu.Unlock()
}

// Pose implements persist.World. Dragonfly entities have no roll or scale.
func (d *World) Pose(id persist.Handle) persist.WorldPose {
	e, ok := d.entity(id)
	if !ok {
		return persist.WorldPose{}
	}
	return persist.NewWorldPose(e.Position(), eulerOf(e.Rotation()))
}

// SetPose implements persist.World. Only entities that can be teleported
// are moved.
func (d *World) SetPose(id persist.Handle, p persist.WorldPose) {
	e, ok := d.entity(id)
	if !ok {
		return
	}
	if t, ok := e.(interface{ Teleport(pos mgl64.Vec3) }); ok {
		t.Teleport(p.Position)
	}
}

// Physics implements persist.World. Entities exposing a velocity count as
// simulating. Dragonfly tracks no angular velocity.
func (d *World) Physics(id persist.Handle) (persist.PhysicsSample, bool) {
	e, ok := d.entity(id)
	if !ok {
		return persist.PhysicsSample{}, false
	}
	v, ok := e.(interface{ Velocity() mgl64.Vec3 })
	if !ok {
		return persist.PhysicsSample{}, false
	}
	return persist.PhysicsSample{Linear: v.Velocity()}, true
}

// SetPhysics implements persist.World.
func (d *World) SetPhysics(id persist.Handle, sample persist.PhysicsSample) {
	e, ok := d.entity(id)
	if !ok {
		return
	}
	if v, ok := e.(interface{ SetVelocity(vel mgl64.Vec3) }); ok {
		v.SetVelocity(sample.Linear)
	}
}

// Forget drops arena entries of entities that are no longer in the bound
// transaction's world. Call it after a dimension unload.
func (d *World) Forget() int {
	tx := d.txn()
	if tx == nil {
		return 0
	}
	d.mu.Lock()
	handles := make([]*world.EntityHandle, len(d.arena))
	for i, s := range d.arena {
		handles[i] = s.handle
	}
	d.mu.Unlock()

	n := 0
	for i, h := range handles {
		if h == nil {
			continue
		}
		if _, ok := h.Entity(tx); ok {
			continue
		}
		d.mu.Lock()
		delete(d.index, h)
		d.arena[i] = slot{}
		d.mu.Unlock()
		n++
	}
	return n
}

// rotationOf maps pitch, yaw, roll degrees to a Dragonfly rotation.
func rotationOf(euler mgl64.Vec3) cube.Rotation {
	return cube.Rotation{euler[1], euler[0]}
}

// eulerOf maps a Dragonfly rotation to pitch, yaw, roll degrees.
func eulerOf(r cube.Rotation) mgl64.Vec3 {
	return mgl64.Vec3{r.Pitch(), r.Yaw(), 0}
}

// Compile-time check that World implements persist.World.
var _ persist.World = (*World)(nil)
