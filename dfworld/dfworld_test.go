package dfworld

import (
	"testing"

	"github.com/df-mc/dragonfly/server/block/cube"
	"github.com/df-mc/dragonfly/server/item"
	// Links internal/nbtconv, which item reaches only via go:linkname.
	_ "github.com/df-mc/dragonfly/server/item/creative"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
)

func TestRotationMapping(t *testing.T) {
	euler := mgl64.Vec3{-30, 90, 0}
	r := rotationOf(euler)
	assert.Equal(t, 90.0, r.Yaw())
	assert.Equal(t, -30.0, r.Pitch())
	assert.Equal(t, euler, eulerOf(r))
}

func TestRegistry(t *testing.T) {
	w := New(nil)
	w.Register("crate", func(world.EntitySpawnOpts) *world.EntityHandle { return nil })
	w.Register("barrel", func(world.EntitySpawnOpts) *world.EntityHandle { return nil })

	assert.Equal(t, []string{"barrel", "crate"}, w.Types())
	assert.True(t, w.types.persistable("crate"))
	assert.False(t, w.types.persistable("zombie"))

	_, ok := w.types.factory("zombie")
	assert.False(t, ok)
}

func TestWithoutTransaction(t *testing.T) {
	w := New(nil)
	w.Register("crate", func(world.EntitySpawnOpts) *world.EntityHandle { return nil })

	assert.Empty(t, w.Entities(persist.MainSpace))
	_, err := w.Instantiate("crate", persist.WorldPose{}, persist.MainSpace)
	assert.ErrorIs(t, err, ErrNoTransaction)
	assert.ErrorIs(t, w.Destroy(1), ErrNoTransaction)

	_, ok := w.Tag(1)
	assert.False(t, ok)
	assert.Empty(t, w.Type(1))
}

func TestRegions(t *testing.T) {
	w := New(nil)
	cave := persist.NewSpaceID()
	w.Region(cave, cube.Box(100, 0, 100, 120, 20, 120))

	assert.Equal(t, cave, w.spaceAt(mgl64.Vec3{110, 5, 110}))
	assert.Equal(t, persist.MainSpace, w.spaceAt(mgl64.Vec3{0, 5, 0}))

	w.RemoveRegion(cave)
	assert.Equal(t, persist.MainSpace, w.spaceAt(mgl64.Vec3{110, 5, 110}))
}

func TestStackItemCarriesToken(t *testing.T) {
	it := &StackItem{Stack: item.NewStack(item.Apple{}, 1)}
	tok := persist.NewCrossReferenceToken("cave", mgl64.Vec3{1, 2, 3})

	var c persist.CapsuleCarrier
	_, ok := c.ReadToken(it)
	assert.False(t, ok)

	require.NoError(t, c.WriteToken(it, tok))
	got, ok := c.ReadToken(it)
	require.True(t, ok)
	assert.Equal(t, tok, got)
	assert.Equal(t, 1, it.Stack.Count())
}
