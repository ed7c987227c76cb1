package persist

import "fmt"

// PayloadKind selects the collaborator responsible for a payload.
type PayloadKind uint8

const (
	// PayloadNone marks a record without a sub-container payload.
	PayloadNone PayloadKind = iota

	// PayloadStorage is the contents of a storage entity (chests, crates).
	PayloadStorage

	// PayloadItemState is the state of a placed or dropped item.
	PayloadItemState

	// payloadKindCount is the total number of payload kinds.
	payloadKindCount
)

// String returns the string representation of the payload kind.
func (k PayloadKind) String() string {
	switch k {
	case PayloadNone:
		return "none"
	case PayloadStorage:
		return "storage"
	case PayloadItemState:
		return "item"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k PayloadKind) MarshalText() ([]byte, error) {
	if k >= payloadKindCount {
		return nil, fmt.Errorf("persist: invalid payload kind %d", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PayloadKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "none":
		*k = PayloadNone
	case "storage":
		*k = PayloadStorage
	case "item":
		*k = PayloadItemState
	default:
		return fmt.Errorf("persist: unknown payload kind %q", b)
	}
	return nil
}

// Payload is an opaque sub-container serialization tagged with the kind of
// collaborator that produced it. The core never looks inside Data.
type Payload struct {
	Kind PayloadKind `json:"kind"`
	Data []byte      `json:"data,omitempty"`
}

// IsZero reports whether the payload is empty.
func (p Payload) IsZero() bool {
	return p.Kind == PayloadNone
}

// StateRecord is one entity's persisted attributes for one snapshot.
type StateRecord struct {
	// ID is the identity of the entity.
	ID Token `json:"id"`

	// Exists is false for baseline members that have been removed.
	Exists bool `json:"exists"`

	// Type is the entity type tag. Removed records keep it whenever the
	// entity was traceable, since destroying it on load means finding it first.
	Type string `json:"type,omitempty"`

	// Pose is the last observed pose in space-local coordinates.
	Pose LocalPose `json:"pose"`

	// Origin is the pose the entity was first observed at. After a reload
	// the physical world puts baseline entities back here, so it is the
	// matching target when present.
	Origin *LocalPose `json:"origin,omitempty"`

	// New is set for entities that were not part of the baseline.
	New bool `json:"new,omitempty"`

	// SpawnType is the type to instantiate when a new entity has to be
	// recreated. Only set together with New.
	SpawnType string `json:"spawn_type,omitempty"`

	// Physics is present only for simulating entities that moved away from
	// their original pose.
	Physics *PhysicsSample `json:"physics,omitempty"`

	// Payload is the optional sub-container payload.
	Payload Payload `json:"payload,omitzero"`
}

// target returns the pose fuzzy matching should look for.
func (r StateRecord) target() LocalPose {
	if r.Origin != nil {
		return *r.Origin
	}
	return r.Pose
}

// instantiateType returns the type to create when the record must be spawned.
func (r StateRecord) instantiateType() string {
	if r.SpawnType != "" {
		return r.SpawnType
	}
	return r.Type
}

// label is a short human readable description used in logs and notifications.
func (r StateRecord) label() string {
	if r.Type == "" {
		return r.ID.String()
	}
	return r.Type + " " + r.ID.String()
}

// cloneRecords returns a deep enough copy of records for independent mutation
// of the slice and its pointer fields.
func cloneRecords(records []StateRecord) []StateRecord {
	out := make([]StateRecord, len(records))
	for i, r := range records {
		if r.Origin != nil {
			o := *r.Origin
			r.Origin = &o
		}
		if r.Physics != nil {
			p := *r.Physics
			r.Physics = &p
		}
		if r.Payload.Data != nil {
			r.Payload.Data = append([]byte(nil), r.Payload.Data...)
		}
		out[i] = r
	}
	return out
}

