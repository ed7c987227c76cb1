package persist

import (
	"log/slog"
	"time"
)

// ReconcileReport summarises one Reconciler run. A run always completes;
// problems show up here instead of as errors.
type ReconcileReport struct {
	// Space is the reconciled space.
	Space SpaceID
	// Restored counts existing records bound to an entity that was already
	// live, whether found by token, by fuzzy matching or as a duplicate.
	Restored int
	// Spawned counts entities instantiated for new records.
	Spawned int
	// Destroyed counts entities removed for records with Exists=false.
	Destroyed int
	// Unresolved counts existing records that could not be bound to any
	// entity: baseline members not found, and failed spawns.
	Unresolved int
	// Rematched counts baseline members whose identity was recovered by
	// fuzzy matching.
	Rematched int
	// Missing counts removed records for which nothing was found to destroy.
	Missing int
	// PayloadErrors counts payloads that failed to apply.
	PayloadErrors int
	// BaselineEstablished is set when there was no saved state and the run
	// defined the baseline instead.
	BaselineEstablished bool
	// UnresolvedRecords lists the records counted in Unresolved.
	UnresolvedRecords []StateRecord
}

// Reconciler restores live entities to match a saved snapshot.
type Reconciler struct {
	world    World
	snap     *Snapshotter
	payloads *payloadRegistry
	cfg      Config
	log      *slog.Logger
}

// NewReconciler creates a Reconciler sharing the world, payload codecs and
// configuration of snap. The Snapshotter is used to establish a baseline when
// there is no saved state to reconcile against.
func NewReconciler(snap *Snapshotter) *Reconciler {
	return &Reconciler{
		world:    snap.world,
		snap:     snap,
		payloads: snap.payloads,
		cfg:      snap.cfg,
		log:      snap.log,
	}
}

// Reconcile makes the live entities of space match baseline and records.
//
// The passes run in a fixed order, sharing one matched-exclusion set so no
// entity is bound twice:
//
//  1. destroy entities of removed records, never spawning for them;
//  2. recover the identity of baseline members, by token or fuzzy match;
//  3. bind or create the remaining existing records, suppressing duplicates
//     of new entities and skipping baseline members that cannot be found;
//  4. apply pose, physics and payload to everything resolved.
//
// With no saved state at all the space is snapshotted instead, which
// establishes its baseline.
func (r *Reconciler) Reconcile(space *StateSpace, baseline BaselineSet, records []StateRecord) ReconcileReport {
	start := time.Now()
	report := ReconcileReport{Space: space.ID}

	if baseline.Empty() && len(records) == 0 {
		snap := r.snap.Snapshot(space)
		report.BaselineEstablished = snap.BaselineEstablished
		observeReconcile(report, time.Since(start))
		return report
	}
	space.Baseline.Establish(baseline.Tokens())

	pool := newCandidatePool(r.world, space, recordedTokens(baseline, records))
	resolved := make([]Handle, len(records))
	bound := make([]bool, len(records))

	// Destroy pass.
	for _, rec := range records {
		if rec.Exists {
			continue
		}
		h, ok := r.lookup(pool, space, rec.ID)
		if !ok {
			h, ok = pool.match(r.query(rec, rec.Type, r.cfg.RemovalTolerance))
		}
		if !ok {
			report.Missing++
			continue
		}
		pool.claim(h)
		if err := r.world.Destroy(h); err != nil {
			r.log.Warn("persist: failed to destroy removed entity", "space", space.ID, "record", rec.label(), "error", err)
			continue
		}
		report.Destroyed++
	}

	// Early identity restoration for baseline members.
	for i, rec := range records {
		if !rec.Exists || rec.New {
			continue
		}
		if h, ok := r.lookup(pool, space, rec.ID); ok {
			pool.claim(h)
			resolved[i], bound[i] = h, true
			continue
		}
		if h, ok := pool.match(r.query(rec, rec.Type, r.cfg.MatchTolerance)); ok {
			pool.claim(h)
			r.reidentify(space, h, rec)
			resolved[i], bound[i] = h, true
			report.Rematched++
		}
	}

	// Create-or-find.
	for i, rec := range records {
		if !rec.Exists {
			continue
		}
		if bound[i] {
			report.Restored++
			continue
		}
		if !rec.New {
			r.log.Warn("persist: baseline entity could not be located", "space", space.ID, "record", rec.label())
			report.Unresolved++
			report.UnresolvedRecords = append(report.UnresolvedRecords, rec)
			continue
		}
		if h, ok := r.lookup(pool, space, rec.ID); ok {
			pool.claim(h)
			resolved[i], bound[i] = h, true
			report.Restored++
			continue
		}
		q := r.query(rec, rec.instantiateType(), r.cfg.DuplicateTolerance)
		q.alt = rec.Type
		if h, ok := pool.match(q); ok {
			pool.claim(h)
			r.reidentify(space, h, rec)
			resolved[i], bound[i] = h, true
			report.Restored++
			continue
		}
		h, err := r.world.Instantiate(rec.instantiateType(), space.Anchor.World(rec.Pose), space.ID)
		if err != nil {
			r.log.Warn("persist: failed to spawn entity", "space", space.ID, "record", rec.label(), "error", err)
			report.Unresolved++
			report.UnresolvedRecords = append(report.UnresolvedRecords, rec)
			continue
		}
		pool.claim(h)
		r.reidentify(space, h, rec)
		resolved[i], bound[i] = h, true
		report.Spawned++
	}

	// Payload apply.
	handles := make([]Handle, 0, len(records))
	for i, rec := range records {
		if !bound[i] {
			continue
		}
		h := resolved[i]
		if tag, ok := r.world.Tag(h); ok && tag.Space != space.ID {
			tag.Space = space.ID
			r.world.SetTag(h, tag)
		}
		r.world.SetPose(h, space.Anchor.World(rec.Pose))
		if rec.Physics != nil {
			r.world.SetPhysics(h, *rec.Physics)
		}
		if err := r.payloads.apply(h, rec.Payload); err != nil {
			report.PayloadErrors++
			r.log.Warn("persist: failed to restore payload", "space", space.ID, "record", rec.label(), "error", err)
		}
		handles = append(handles, h)
	}

	space.Records = cloneRecords(records)
	space.handles = handles

	observeReconcile(report, time.Since(start))
	return report
}

// recordedTokens returns the tokens of the baseline and of every record.
func recordedTokens(baseline BaselineSet, records []StateRecord) map[Token]struct{} {
	out := make(map[Token]struct{}, baseline.Len()+len(records))
	for _, id := range baseline.Tokens() {
		out[id] = struct{}{}
	}
	for _, rec := range records {
		if !rec.ID.IsZero() {
			out[rec.ID] = struct{}{}
		}
	}
	return out
}

// lookup finds an unmatched entity by token, provided it belongs to space.
func (r *Reconciler) lookup(pool *candidatePool, space *StateSpace, id Token) (Handle, bool) {
	h, ok := pool.lookup(id)
	if !ok {
		return 0, false
	}
	tag, valid := r.world.Tag(h)
	if !valid || !tag.belongsTo(space.ID) {
		return 0, false
	}
	return h, true
}

// query builds a fuzzy match query for rec.
func (r *Reconciler) query(rec StateRecord, typeTag string, tolerance float64) matchQuery {
	return matchQuery{
		typeTag:  typeTag,
		id:       rec.ID,
		target:   rec.target(),
		position: tolerance,
		rotation: r.cfg.RotationTolerance,
	}
}

// reidentify binds h to rec: it receives the saved token, the space and the
// saved original pose.
func (r *Reconciler) reidentify(space *StateSpace, h Handle, rec StateRecord) {
	tag, _ := r.world.Tag(h)
	tag.ID = rec.ID
	tag.Space = space.ID
	if rec.Origin != nil {
		tag.Original = *rec.Origin
		tag.HasOriginal = true
	} else {
		tag.CaptureOriginal(rec.Pose)
	}
	r.world.SetTag(h, tag)
}
