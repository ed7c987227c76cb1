package persist

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a position, rotation and scale triple.
//
// Rotation holds pitch, yaw and roll in degrees, in that order.
// Pose itself carries no coordinate frame; use LocalPose or WorldPose
// wherever a value crosses a boundary.
type Pose struct {
	Position mgl64.Vec3 `json:"position"`
	Rotation mgl64.Vec3 `json:"rotation"`
	Scale    mgl64.Vec3 `json:"scale"`
}

// LocalPose is a pose expressed relative to the anchor of its StateSpace.
// Everything persisted is a LocalPose so saves stay valid when a whole
// space is re-positioned.
type LocalPose Pose

// WorldPose is a pose expressed in world space. Every pose exchanged with
// the World collaborator is a WorldPose.
type WorldPose Pose

// unitScale is the scale of an untransformed entity.
var unitScale = mgl64.Vec3{1, 1, 1}

// NewLocalPose returns a LocalPose at pos with the given rotation and unit scale.
func NewLocalPose(pos, rot mgl64.Vec3) LocalPose {
	return LocalPose{Position: pos, Rotation: rot, Scale: unitScale}
}

// NewWorldPose returns a WorldPose at pos with the given rotation and unit scale.
func NewWorldPose(pos, rot mgl64.Vec3) WorldPose {
	return WorldPose{Position: pos, Rotation: rot, Scale: unitScale}
}

const poseEpsilon = 1e-4

// IsIdentity reports whether the pose is indistinguishable from an
// untouched default: origin, no rotation, and zero or unit scale.
func (p Pose) IsIdentity() bool {
	if !p.Position.ApproxEqualThreshold(mgl64.Vec3{}, poseEpsilon) {
		return false
	}
	if !p.Rotation.ApproxEqualThreshold(mgl64.Vec3{}, poseEpsilon) {
		return false
	}
	return p.Scale.ApproxEqualThreshold(mgl64.Vec3{}, poseEpsilon) ||
		p.Scale.ApproxEqualThreshold(unitScale, poseEpsilon)
}

// IsIdentity reports whether the pose is an untouched default.
func (p LocalPose) IsIdentity() bool { return Pose(p).IsIdentity() }

// Anchor is the world-space origin a StateSpace is placed at. The main
// world uses the zero anchor.
type Anchor mgl64.Vec3

// Local converts a world pose into this anchor's local frame.
func (a Anchor) Local(p WorldPose) LocalPose {
	return LocalPose{
		Position: p.Position.Sub(mgl64.Vec3(a)),
		Rotation: p.Rotation,
		Scale:    p.Scale,
	}
}

// World converts a local pose into world space.
func (a Anchor) World(p LocalPose) WorldPose {
	return WorldPose{
		Position: p.Position.Add(mgl64.Vec3(a)),
		Rotation: p.Rotation,
		Scale:    p.Scale,
	}
}

// PoseDelta is the difference between two poses.
type PoseDelta struct {
	// Position is the euclidean distance between the two positions.
	Position float64
	// Rotation holds the absolute pitch, yaw and roll differences in
	// degrees, each normalised into [0, 180].
	Rotation mgl64.Vec3
	// Scale is the largest per-axis scale difference.
	Scale float64
}

// Delta computes the difference between two local poses.
func Delta(a, b LocalPose) PoseDelta {
	d := PoseDelta{
		Position: a.Position.Sub(b.Position).Len(),
	}
	for i := 0; i < 3; i++ {
		d.Rotation[i] = math.Abs(normalizeAngle(a.Rotation[i] - b.Rotation[i]))
		d.Scale = math.Max(d.Scale, math.Abs(normalizeScale(a.Scale)[i]-normalizeScale(b.Scale)[i]))
	}
	return d
}

// RotationWithin reports whether every rotation axis differs by at most tol degrees.
func (d PoseDelta) RotationWithin(tol float64) bool {
	return d.Rotation[0] <= tol && d.Rotation[1] <= tol && d.Rotation[2] <= tol
}

// maxRotation returns the largest per-axis rotation difference.
func (d PoseDelta) maxRotation() float64 {
	return math.Max(d.Rotation[0], math.Max(d.Rotation[1], d.Rotation[2]))
}

// normalizeAngle wraps an angle in degrees into (-180, 180].
func normalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	switch {
	case deg > 180:
		deg -= 360
	case deg <= -180:
		deg += 360
	}
	return deg
}

// normalizeScale treats an all-zero scale as unit scale, so records written
// without a scale compare equal to untransformed entities.
func normalizeScale(s mgl64.Vec3) mgl64.Vec3 {
	if s == (mgl64.Vec3{}) {
		return unitScale
	}
	return s
}

// PhysicsSample is the velocity state reported by the physics simulation.
type PhysicsSample struct {
	Linear  mgl64.Vec3 `json:"linear"`
	Angular mgl64.Vec3 `json:"angular"`
}
