package persist

// candidatePool is the set of live entities a reconciliation run may bind
// records to, together with the matched-exclusion set threaded through
// every pass. Each entity is matched at most once per run.
type candidatePool struct {
	world   World
	space   *StateSpace
	handles []Handle
	index   map[Handle]int
	matched Bitmask

	// recorded holds every token the saved state knows about. Candidates
	// carrying one of them are only bound to that token's record.
	recorded map[Token]struct{}
}

// newCandidatePool enumerates the live entities of space. recorded is the
// set of tokens present in the baseline and records being reconciled.
func newCandidatePool(w World, space *StateSpace, recorded map[Token]struct{}) *candidatePool {
	p := &candidatePool{
		world:    w,
		space:    space,
		index:    make(map[Handle]int),
		recorded: recorded,
	}
	for _, h := range w.Entities(space.ID) {
		p.add(h)
	}
	return p
}

// add registers h as a candidate and returns its position.
func (p *candidatePool) add(h Handle) int {
	if i, ok := p.index[h]; ok {
		return i
	}
	i := len(p.handles)
	p.handles = append(p.handles, h)
	p.index[h] = i
	return i
}

// claim marks h as matched. It returns false if h was already matched.
func (p *candidatePool) claim(h Handle) bool {
	i := p.add(h)
	if p.matched.Has(i) {
		return false
	}
	p.matched.Set(i)
	return true
}

// isMatched reports whether h has been matched in this run.
func (p *candidatePool) isMatched(h Handle) bool {
	i, ok := p.index[h]
	return ok && p.matched.Has(i)
}

// isRecorded reports whether id names a saved entity. Tokens the saved
// state never saw come from regenerated identities and may be matched.
func (p *candidatePool) isRecorded(id Token) bool {
	_, ok := p.recorded[id]
	return ok
}

// lookup finds the entity carrying id, provided it is not matched yet.
func (p *candidatePool) lookup(id Token) (Handle, bool) {
	h, ok := p.world.FindByToken(p.space.ID, id)
	if !ok || p.isMatched(h) {
		return 0, false
	}
	return h, true
}

// matchQuery describes what fuzzy matching looks for.
type matchQuery struct {
	typeTag  string
	alt      string
	id       Token
	target   LocalPose
	position float64
	rotation float64
}

// accepts reports whether typeTag satisfies the query.
func (q matchQuery) accepts(typeTag string) bool {
	return typeTag == q.typeTag || (q.alt != "" && typeTag == q.alt)
}

// match returns the first unmatched candidate satisfying q, in enumeration
// order. It is first-fit, not a globally optimal assignment.
func (p *candidatePool) match(q matchQuery) (Handle, bool) {
	if q.typeTag == "" && q.alt == "" {
		return 0, false
	}
	for i, h := range p.handles {
		if p.matched.Has(i) {
			continue
		}
		tag, ok := p.world.Tag(h)
		if !ok || !tag.belongsTo(p.space.ID) {
			continue
		}
		if !q.accepts(p.world.Type(h)) {
			continue
		}
		if tag.HasID() && tag.ID != q.id && p.isRecorded(tag.ID) {
			continue
		}
		d := p.comparisonDelta(h, tag, q.target)
		if d.Position <= q.position && d.RotationWithin(q.rotation) {
			return h, true
		}
	}
	return 0, false
}

// comparisonDelta measures a candidate against target. The candidate's own
// original pose wins when known. Otherwise its current pose is tried both as
// already space-local and as world space needing conversion, and the smaller
// delta is kept, since identity can be lost on either side of the
// conversion.
func (p *candidatePool) comparisonDelta(h Handle, tag IdentityTag, target LocalPose) PoseDelta {
	if tag.OriginalKnown() {
		return Delta(tag.Original, target)
	}
	cur := p.world.Pose(h)
	asLocal := Delta(LocalPose(cur), target)
	if p.space.ID.IsMain() {
		return asLocal
	}
	asWorld := Delta(p.space.Anchor.Local(cur), target)
	if asWorld.Position < asLocal.Position {
		return asWorld
	}
	return asLocal
}
