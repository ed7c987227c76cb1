package persist

import (
	"context"
	"errors"

	"github.com/go-gl/mathgl/mgl64"
)

// Handle is an opaque reference to a live entity, issued by the World.
// Handles are indices into the World's own storage; the persistence core
// never holds entity pointers.
type Handle uint64

// World is the physical-world collaborator.
//
// Every pose crossing this interface is in world space. All methods are
// called from the simulation tick.
type World interface {
	// Entities returns every live, persistable entity physically inside
	// space, including ones whose tag has not been claimed by the space yet.
	Entities(space SpaceID) []Handle

	// FindByToken looks up a live entity by its identity token.
	FindByToken(space SpaceID, id Token) (Handle, bool)

	// Instantiate creates a new persistable entity of the given type.
	Instantiate(typeTag string, pose WorldPose, space SpaceID) (Handle, error)

	// Destroy removes an entity from the world.
	Destroy(h Handle) error

	// Type returns the type tag of an entity.
	Type(h Handle) string

	// Tag returns the identity tag of an entity. ok is false for handles
	// that are no longer valid.
	Tag(h Handle) (tag IdentityTag, ok bool)

	// SetTag replaces the identity tag of an entity.
	SetTag(h Handle, tag IdentityTag)

	// Pose returns the current world pose of an entity.
	Pose(h Handle) WorldPose

	// SetPose moves an entity.
	SetPose(h Handle, p WorldPose)

	// Physics returns the velocity sample of an entity and whether it is
	// currently simulating physics.
	Physics(h Handle) (sample PhysicsSample, simulating bool)

	// SetPhysics applies a velocity sample.
	SetPhysics(h Handle, sample PhysicsSample)
}

// Settler is optionally implemented by a World that can tell when the
// contents of a freshly streamed space have been positioned.
type Settler interface {
	Settled(space SpaceID) bool
}

// PayloadCodec serializes one kind of sub-container payload.
// Implementations are registered per PayloadKind on the Builder.
type PayloadCodec interface {
	// Serialize returns the payload of h. ok is false when h carries no
	// payload of this kind.
	Serialize(h Handle) (data []byte, ok bool, err error)

	// Deserialize applies a previously serialized payload to h.
	Deserialize(h Handle, data []byte) error
}

// Streamer is the level-streaming collaborator. Both calls only begin the
// work; completion is reported back through Session.SpaceLoaded and
// Session.SpaceUnloaded.
type Streamer interface {
	Load(space SpaceID, anchor mgl64.Vec3, definition string) error
	Unload(space SpaceID) error
}

// Item is a carried object able to hold custom key/value data, such as an
// inventory item.
type Item interface {
	Value(key string) (string, bool)
	SetValue(key, value string)
}

// Carrier reads and writes CrossReferenceTokens on carried items.
type Carrier interface {
	ReadToken(item Item) (CrossReferenceToken, bool)
	WriteToken(item Item, tok CrossReferenceToken) error
}

// Store persists named blobs. Implementations live in the store package.
type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// ErrBlobNotFound must be matched (errors.Is) by the error a Store returns
// for a missing blob. store.ErrNotFound wraps it.
var ErrBlobNotFound = errors.New("persist: blob not found")

// Notifier delivers soft, user-visible messages such as "could not restore
// crate". It must never block play.
type Notifier interface {
	Notify(space SpaceID, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(space SpaceID, message string)

// Notify calls f.
func (f NotifierFunc) Notify(space SpaceID, message string) {
	f(space, message)
}
