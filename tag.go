package persist

// IdentityTag is the persistence identity attached to a live entity.
//
// The World collaborator stores one tag per persistable entity and hands out
// copies; changes are written back with World.SetTag.
type IdentityTag struct {
	// ID is the stable identity. Zero until first observed or restored.
	ID Token

	// Original is the pose the entity had when first observed, in the
	// local frame of its space. It is ground truth for fuzzy matching and
	// is written at most once.
	Original LocalPose

	// HasOriginal is set once Original has been captured. A non-identity
	// Original counts as captured even when the flag is missing.
	HasOriginal bool

	// Space is the StateSpace the entity belongs to. The zero value means
	// main world, or "not yet claimed" for entities inside a sub-space.
	Space SpaceID
}

// HasID reports whether an identity has been assigned.
func (t IdentityTag) HasID() bool {
	return !t.ID.IsZero()
}

// OriginalKnown reports whether the original pose has been captured.
func (t IdentityTag) OriginalKnown() bool {
	return t.HasOriginal || !t.Original.IsIdentity()
}

// CaptureOriginal records p as the original pose unless one is already
// known. It reports whether the tag changed.
func (t *IdentityTag) CaptureOriginal(p LocalPose) bool {
	if t.OriginalKnown() {
		return false
	}
	t.Original = p
	t.HasOriginal = true
	return true
}

// belongsTo reports whether the tag is claimed by space or still unclaimed.
func (t IdentityTag) belongsTo(space SpaceID) bool {
	return t.Space == space || t.Space.IsMain()
}
