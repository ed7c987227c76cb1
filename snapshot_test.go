package persist_test

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
	"github.com/oriumgames/persist/simworld"
)

func tokenOf(t *testing.T, w *simworld.World, h persist.Handle) persist.Token {
	t.Helper()
	tag, ok := w.Tag(h)
	require.True(t, ok, "handle %d is not live", h)
	return tag.ID
}

func TestSnapshotEstablishesBaselineOnce(t *testing.T) {
	w := simworld.New()
	w.Spawn("crate", at(0, 0, 0), persist.MainSpace)
	w.Spawn("crate", at(5, 0, 0), persist.MainSpace)
	a := w.Spawn("barrel", at(10, 0, 0), persist.MainSpace)

	snap := persist.NewSnapshotter(w)
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")

	first := snap.Snapshot(space)
	assert.True(t, first.BaselineEstablished)
	assert.Equal(t, 3, first.Live)
	assert.Equal(t, 3, first.Tagged)
	assert.Equal(t, 0, first.New)
	baseline := space.Baseline.Tokens()
	require.Len(t, baseline, 3)

	require.NoError(t, w.Destroy(a))
	w.Spawn("crate", at(20, 0, 0), persist.MainSpace)

	for range 3 {
		report := snap.Snapshot(space)
		assert.False(t, report.BaselineEstablished)
		assert.Equal(t, baseline, space.Baseline.Tokens())
	}
}

func TestSnapshotDiff(t *testing.T) {
	w := simworld.New()
	a := w.Spawn("crate", at(0, 0, 0), persist.MainSpace)
	b := w.Spawn("crate", at(5, 0, 0), persist.MainSpace)
	c := w.Spawn("barrel", at(10, 0, 0), persist.MainSpace)

	snap := persist.NewSnapshotter(w)
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	snap.Snapshot(space)

	idA, idB, idC := tokenOf(t, w, a), tokenOf(t, w, b), tokenOf(t, w, c)

	require.NoError(t, w.Destroy(b))
	d := w.Spawn("lantern", at(3, 1, 0), persist.MainSpace)

	report := snap.Snapshot(space)
	idD := tokenOf(t, w, d)
	assert.Equal(t, 3, report.Live)
	assert.Equal(t, 1, report.New)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 0, report.Untraceable)
	require.Len(t, space.Records, 4)

	recA, ok := space.Record(idA)
	require.True(t, ok)
	assert.True(t, recA.Exists)
	assert.False(t, recA.New)

	recC, ok := space.Record(idC)
	require.True(t, ok)
	assert.True(t, recC.Exists)
	assert.False(t, recC.New)

	recD, ok := space.Record(idD)
	require.True(t, ok)
	assert.True(t, recD.Exists)
	assert.True(t, recD.New)
	assert.Equal(t, "lantern", recD.SpawnType)
	assert.Equal(t, localAt(3, 1, 0), recD.Pose)

	recB, ok := space.Record(idB)
	require.True(t, ok)
	assert.False(t, recB.Exists)
	assert.Equal(t, "crate", recB.Type, "removed records keep traceable metadata")
	require.NotNil(t, recB.Origin)
	assert.Equal(t, localAt(5, 0, 0), *recB.Origin)
}

func TestSnapshotRemovedWithoutTrace(t *testing.T) {
	w := simworld.New()
	snap := persist.NewSnapshotter(w)

	gone := persist.NewToken()
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	space.Baseline = persist.NewBaselineSet(gone)

	report := snap.Snapshot(space)
	assert.Equal(t, 1, report.Removed)
	assert.Equal(t, 1, report.Untraceable)
	require.Len(t, space.Records, 1)

	rec := space.Records[0]
	assert.Equal(t, gone, rec.ID)
	assert.False(t, rec.Exists)
	assert.Empty(t, rec.Type, "nothing is invented for untraceable records")
	assert.Nil(t, rec.Origin)
}

func TestSnapshotCapturesOriginalOnce(t *testing.T) {
	w := simworld.New()
	h := w.Spawn("crate", at(1, 2, 3), persist.MainSpace)

	snap := persist.NewSnapshotter(w)
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	snap.Snapshot(space)

	w.SetPose(h, at(4, 2, 3))
	snap.Snapshot(space)

	tag, _ := w.Tag(h)
	assert.True(t, tag.OriginalKnown())
	assert.Equal(t, localAt(1, 2, 3), tag.Original)

	rec, _ := space.Record(tag.ID)
	assert.Equal(t, localAt(4, 2, 3), rec.Pose)
	assert.Equal(t, localAt(1, 2, 3), *rec.Origin)
}

func TestSnapshotReassignsDuplicateTokens(t *testing.T) {
	w := simworld.New()
	a := w.Spawn("crate", at(0, 0, 0), persist.MainSpace)
	b := w.Spawn("crate", at(2, 0, 0), persist.MainSpace)

	shared := persist.NewToken()
	w.SetTag(a, persist.IdentityTag{ID: shared})
	w.SetTag(b, persist.IdentityTag{ID: shared})

	snap := persist.NewSnapshotter(w)
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	report := snap.Snapshot(space)

	assert.Equal(t, 1, report.Tagged)
	assert.Equal(t, shared, tokenOf(t, w, a))
	assert.NotEqual(t, shared, tokenOf(t, w, b))
	assert.Equal(t, 2, space.Baseline.Len())
}

func TestSnapshotPhysicsThreshold(t *testing.T) {
	w := simworld.New()
	still := w.Spawn("ball", at(0, 0, 0), persist.MainSpace)
	moved := w.Spawn("ball", at(5, 0, 0), persist.MainSpace)
	sample := persist.PhysicsSample{Linear: vec(0, -1, 0)}
	for _, h := range []persist.Handle{still, moved} {
		w.Mutate(h, func(e *simworld.Entity) {
			e.Simulating = true
			e.Physics = sample
		})
	}

	snap := persist.NewSnapshotter(w)
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	snap.Snapshot(space)

	w.SetPose(still, at(0.005, 0, 0))
	w.SetPose(moved, at(5.5, 0, 0))
	snap.Snapshot(space)

	recStill, _ := space.Record(tokenOf(t, w, still))
	assert.Nil(t, recStill.Physics, "drift under the threshold is not saved")

	recMoved, _ := space.Record(tokenOf(t, w, moved))
	require.NotNil(t, recMoved.Physics)
	assert.Equal(t, sample, *recMoved.Physics)
}

func TestSnapshotRotationDriftCountsAsPhysics(t *testing.T) {
	w := simworld.New()
	h := w.Spawn("ball", at(0, 0, 0), persist.MainSpace)
	w.Mutate(h, func(e *simworld.Entity) { e.Simulating = true })

	snap := persist.NewSnapshotter(w, persist.WithPhysicsThresholds(0.01, 1, 0.01))
	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	snap.Snapshot(space)

	w.SetPose(h, persist.NewWorldPose(vec(0, 0, 0), mgl64.Vec3{0, 5, 0}))
	snap.Snapshot(space)

	rec, _ := space.Record(tokenOf(t, w, h))
	assert.NotNil(t, rec.Physics)
}

func TestSnapshotPayloadKindOrder(t *testing.T) {
	w := simworld.New()
	chest := w.Spawn("chest", at(0, 0, 0), persist.MainSpace)
	both := w.Spawn("chest", at(3, 0, 0), persist.MainSpace)
	item := w.Spawn("sword", at(6, 0, 0), persist.MainSpace)
	w.Mutate(chest, func(e *simworld.Entity) {
		e.Payload = map[persist.PayloadKind][]byte{persist.PayloadStorage: []byte("apples")}
	})
	w.Mutate(both, func(e *simworld.Entity) {
		e.Payload = map[persist.PayloadKind][]byte{
			persist.PayloadStorage:   []byte("pears"),
			persist.PayloadItemState: []byte("ignored"),
		}
	})
	w.Mutate(item, func(e *simworld.Entity) {
		e.Payload = map[persist.PayloadKind][]byte{persist.PayloadItemState: []byte("sharp")}
	})

	snap := persist.NewSnapshotter(w)
	snap.RegisterPayload(persist.PayloadItemState, w.Codec(persist.PayloadItemState))
	snap.RegisterPayload(persist.PayloadStorage, w.Codec(persist.PayloadStorage))

	space := persist.NewStateSpace(persist.MainSpace, persist.Anchor{}, "")
	snap.Snapshot(space)

	rec, _ := space.Record(tokenOf(t, w, chest))
	assert.Equal(t, persist.Payload{Kind: persist.PayloadStorage, Data: []byte("apples")}, rec.Payload)

	rec, _ = space.Record(tokenOf(t, w, both))
	assert.Equal(t, persist.PayloadStorage, rec.Payload.Kind)
	assert.Equal(t, []byte("pears"), rec.Payload.Data)

	rec, _ = space.Record(tokenOf(t, w, item))
	assert.Equal(t, persist.Payload{Kind: persist.PayloadItemState, Data: []byte("sharp")}, rec.Payload)
}

func TestSnapshotSubSpace(t *testing.T) {
	w := simworld.New()
	id := persist.NewSpaceID()
	other := persist.NewSpaceID()

	inside := w.Spawn("crate", at(101, 0, 0), id)
	foreign := w.Spawn("crate", at(102, 0, 0), id)
	w.SetTag(foreign, persist.IdentityTag{ID: persist.NewToken(), Space: other})

	snap := persist.NewSnapshotter(w)
	space := persist.NewStateSpace(id, persist.Anchor(vec(100, 0, 0)), "cave")
	report := snap.Snapshot(space)

	assert.Equal(t, 1, report.Live)
	tag, _ := w.Tag(inside)
	assert.Equal(t, id, tag.Space, "unclaimed entities are claimed")
	assert.Equal(t, localAt(1, 0, 0), tag.Original)

	rec, ok := space.Record(tag.ID)
	require.True(t, ok)
	assert.Equal(t, localAt(1, 0, 0), rec.Pose)
	assert.Equal(t, []persist.Handle{inside}, space.Handles())

	ftag, _ := w.Tag(foreign)
	assert.Equal(t, other, ftag.Space, "entities of another space are left alone")
}
