package persist

// StateSpace is one persistence namespace: the main world, or a dynamically
// loaded sub-world.
//
// A StateSpace never points back at entities. It keeps the Handles resolved
// by the last Snapshotter or Reconciler pass, which are indices into the
// World collaborator.
type StateSpace struct {
	// ID names the space.
	ID SpaceID

	// Anchor is where the space currently sits in the world.
	Anchor Anchor

	// Definition identifies what to stream in for this space. It is opaque
	// to the persistence core and handed to the Streamer verbatim.
	Definition string

	// Baseline is the write-once set of tokens first observed here.
	Baseline BaselineSet

	// Records is the latest snapshot of the space.
	Records []StateRecord

	state   SpaceState
	handles []Handle
}

// NewStateSpace creates an empty, unopened space.
func NewStateSpace(id SpaceID, anchor Anchor, definition string) *StateSpace {
	s := &StateSpace{ID: id, Anchor: anchor, Definition: definition}
	if id.IsMain() {
		s.state = Open
	}
	return s
}

// State returns the lifecycle state.
func (s *StateSpace) State() SpaceState {
	return s.state
}

// Handles returns the entity handles resolved by the last pass.
func (s *StateSpace) Handles() []Handle {
	return s.handles
}

// Record returns the record for id from the latest snapshot.
func (s *StateSpace) Record(id Token) (StateRecord, bool) {
	for _, r := range s.Records {
		if r.ID == id {
			return r, true
		}
	}
	return StateRecord{}, false
}

// snapshot returns the persisted form of the space.
func (s *StateSpace) snapshot() SpaceSnapshot {
	return SpaceSnapshot{
		ID:         s.ID,
		Anchor:     s.Anchor,
		Definition: s.Definition,
		Baseline:   s.Baseline.Clone(),
		Records:    cloneRecords(s.Records),
	}
}

// restore loads persisted state into an empty space. The live anchor is
// kept, since a space can be re-entered somewhere else.
func (s *StateSpace) restore(snap SpaceSnapshot) {
	s.Baseline = snap.Baseline.Clone()
	s.Records = cloneRecords(snap.Records)
	if s.Definition == "" {
		s.Definition = snap.Definition
	}
}
