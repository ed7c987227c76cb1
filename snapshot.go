package persist

import (
	"log/slog"
	"time"
)

// SnapshotReport summarises one Snapshotter pass.
type SnapshotReport struct {
	// Space is the snapshotted space.
	Space SpaceID
	// Live is the number of live entities recorded.
	Live int
	// New is how many of them are not baseline members.
	New int
	// Removed is the number of baseline members no longer present.
	Removed int
	// Tagged is the number of entities that received their first token.
	Tagged int
	// Untraceable counts removed records written without metadata.
	Untraceable int
	// PayloadErrors counts payloads that failed to serialize.
	PayloadErrors int
	// BaselineEstablished is set when this pass defined the baseline.
	BaselineEstablished bool
}

// Snapshotter walks the live entities of a StateSpace and turns them into
// StateRecords. It is the only component that originates identity.
type Snapshotter struct {
	world    World
	payloads *payloadRegistry
	cfg      Config
	log      *slog.Logger
}

// NewSnapshotter creates a Snapshotter over w.
func NewSnapshotter(w World, opts ...Option) *Snapshotter {
	cfg := newConfig(opts...)
	return &Snapshotter{
		world:    w,
		payloads: newPayloadRegistry(),
		cfg:      cfg,
		log:      cfg.logger(),
	}
}

// RegisterPayload registers the codec for a payload kind.
func (s *Snapshotter) RegisterPayload(kind PayloadKind, codec PayloadCodec) {
	s.payloads.register(kind, codec)
}

// Snapshot records the current state of space.
//
// Untagged entities receive a fresh token and their original pose. The
// baseline is established from this pass only if it is still empty; an
// established baseline is never touched. Baseline members missing from the
// live set are emitted as removed records, carrying whatever metadata can
// still be traced. Nothing is invented.
//
// The resulting records replace space.Records.
func (s *Snapshotter) Snapshot(space *StateSpace) SnapshotReport {
	start := time.Now()
	report := SnapshotReport{Space: space.ID}

	previous := make(map[Token]StateRecord, len(space.Records))
	for _, r := range space.Records {
		previous[r.ID] = r
	}

	var (
		records  []StateRecord
		handles  []Handle
		observed []Token
		live     = make(map[Token]struct{})
		traced   = make(map[Token]Handle)
	)

	for _, h := range s.world.Entities(space.ID) {
		tag, ok := s.world.Tag(h)
		if !ok {
			continue
		}
		if tag.HasID() {
			traced[tag.ID] = h
		}

		changed := false
		if tag.Space != space.ID {
			if !tag.Space.IsMain() {
				// Belongs to another space; only useful for tracing.
				continue
			}
			tag.Space = space.ID
			changed = true
		}

		local := space.Anchor.Local(s.world.Pose(h))
		if _, dup := live[tag.ID]; !tag.HasID() || dup {
			if dup {
				s.log.Debug("persist: duplicate token in space, reassigning", "space", space.ID, "token", tag.ID)
			}
			tag.ID = NewToken()
			report.Tagged++
			changed = true
		}
		if tag.CaptureOriginal(local) {
			changed = true
		}
		if changed {
			s.world.SetTag(h, tag)
		}

		origin := tag.Original
		rec := StateRecord{
			ID:     tag.ID,
			Exists: true,
			Type:   s.world.Type(h),
			Pose:   local,
			Origin: &origin,
		}
		if !space.Baseline.Empty() && !space.Baseline.Contains(tag.ID) {
			rec.New = true
			rec.SpawnType = rec.Type
			report.New++
		}
		if sample, simulating := s.world.Physics(h); simulating && s.drifted(tag.Original, local) {
			rec.Physics = &sample
		}
		payload, err := s.payloads.serialize(h)
		if err != nil {
			report.PayloadErrors++
			s.log.Warn("persist: failed to serialize payload", "space", space.ID, "token", tag.ID, "error", err)
		}
		rec.Payload = payload

		live[tag.ID] = struct{}{}
		observed = append(observed, tag.ID)
		records = append(records, rec)
		handles = append(handles, h)
	}
	report.Live = len(records)

	for _, id := range space.Baseline.Tokens() {
		if _, ok := live[id]; ok {
			continue
		}
		rec, traceable := s.removedRecord(space, id, traced, previous)
		if !traceable {
			report.Untraceable++
		}
		records = append(records, rec)
		report.Removed++
	}

	if space.Baseline.Establish(observed) {
		report.BaselineEstablished = true
		s.log.Debug("persist: baseline established", "space", space.ID, "members", space.Baseline.Len())
	}

	space.Records = records
	space.handles = handles

	observeSnapshot(report, time.Since(start))
	return report
}

// removedRecord builds the record of a baseline member that is no longer
// live in space. Metadata comes from the entity itself if it can still be
// found elsewhere, then from the previous snapshot. It reports false when
// neither source exists and the record is left blank.
func (s *Snapshotter) removedRecord(space *StateSpace, id Token, traced map[Token]Handle, previous map[Token]StateRecord) (StateRecord, bool) {
	rec := StateRecord{ID: id}

	h, ok := traced[id]
	if !ok {
		h, ok = s.world.FindByToken(space.ID, id)
	}
	if ok {
		if tag, valid := s.world.Tag(h); valid {
			rec.Type = s.world.Type(h)
			rec.Pose = space.Anchor.Local(s.world.Pose(h))
			if tag.OriginalKnown() {
				origin := tag.Original
				rec.Origin = &origin
			}
			return rec, true
		}
	}

	if prev, found := previous[id]; found {
		rec.Type = prev.Type
		rec.Pose = prev.Pose
		if prev.Origin != nil {
			origin := *prev.Origin
			rec.Origin = &origin
		}
		return rec, true
	}
	return rec, false
}

// drifted reports whether a simulating entity moved far enough from its
// original pose for its velocity to be worth saving.
func (s *Snapshotter) drifted(original, current LocalPose) bool {
	d := Delta(original, current)
	return d.Position > s.cfg.PhysicsPositionThreshold ||
		d.maxRotation() > s.cfg.PhysicsRotationThreshold ||
		d.Scale > s.cfg.PhysicsScaleThreshold
}
