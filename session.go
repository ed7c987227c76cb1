package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNoWorld is returned when an operation needs the physical world and
	// none was configured.
	ErrNoWorld = errors.New("persist: no world configured")

	// ErrNoStore is returned when an operation needs blob storage and none
	// was configured.
	ErrNoStore = errors.New("persist: no store configured")

	// ErrMainSpace is returned when the main world is opened or closed
	// explicitly. It is always open.
	ErrMainSpace = errors.New("persist: the main space is always open")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("persist: session closed")
)

// openRequest is a queued request to open a sub-space.
type openRequest struct {
	space      SpaceID
	anchor     Anchor
	definition string
}

// Session is a persistence session: the explicit owner of one save slot's
// state for as long as the game runs it. It replaces any process-wide
// "current save"; the game loop owns the Session and drives it with Tick.
//
// A Session holds the always-open main space and at most one sub-space that
// is Opening, Open or Closing. All methods must be called from the
// simulation tick.
//
// Usage:
//
//	sess, err := mngr.NewGame(ctx, "My World")
//	sess.RestoreMain()
//	sess.Enter(item, anchor, "dimensions/cave")
//	for now := range ticker.C {
//	    sess.Tick(now)
//	}
//	sess.Save(ctx)
type Session struct {
	slot SlotInfo
	data *SaveData

	// manager owns the collaborators shared by every session
	manager *Manager
	sched   *Scheduler
	snap    *Snapshotter
	rec     *Reconciler
	log     *slog.Logger

	// main is the always-open main-world space
	main *StateSpace

	// active is the single sub-space slot
	active *StateSpace

	// gen invalidates deferred callbacks of an earlier open
	gen uint64

	// settle is the running settle poll of the opening space
	settle *Poller

	// pending is an open request waiting for the active space to close
	pending *openRequest

	// closeRequested defers a close issued while the space was Opening
	closeRequested bool

	// entering maps a space to the item that opened it, for write-back
	entering map[SpaceID]Item

	// closingReport is the snapshot taken when the active space started closing
	closingReport SnapshotReport

	// mainRestored is set once RestoreMain has run
	mainRestored bool

	// closed indicates if the session has been closed
	closed atomic.Bool
}

// newSession creates a session for slot over data.
func newSession(m *Manager, slot SlotInfo, data *SaveData) *Session {
	s := &Session{
		slot:     slot,
		data:     data,
		manager:  m,
		snap:     m.snap,
		rec:      m.rec,
		log:      m.log.With("slot", slot.ID.String()),
		main:     NewStateSpace(MainSpace, Anchor{}, ""),
		entering: make(map[SpaceID]Item),
	}
	s.sched = NewScheduler(m.now(), s.log)
	s.main.restore(data.Main)
	return s
}

// Slot returns the save slot of the session.
func (s *Session) Slot() SlotInfo {
	return s.slot
}

// Data returns the save data. It reflects the last Save, close or
// reconciliation, not the live world.
func (s *Session) Data() *SaveData {
	return s.data
}

// Scheduler returns the scheduler driven by Tick.
func (s *Session) Scheduler() *Scheduler {
	return s.sched
}

// Main returns the main-world space.
func (s *Session) Main() *StateSpace {
	return s.main
}

// Active returns the sub-space currently Opening, Open or Closing.
func (s *Session) Active() (*StateSpace, bool) {
	return s.active, s.active != nil
}

// Space returns the live space for id, if it is the main space or the
// active sub-space.
func (s *Session) Space(id SpaceID) (*StateSpace, bool) {
	if id.IsMain() {
		return s.main, true
	}
	if s.active != nil && s.active.ID == id {
		return s.active, true
	}
	return nil, false
}

// State returns the lifecycle state of a space.
func (s *Session) State(id SpaceID) SpaceState {
	if sp, ok := s.Space(id); ok {
		return sp.state
	}
	return Unopened
}

// Closed reports whether the session has been closed.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// String returns a string representation of the session.
func (s *Session) String() string {
	return fmt.Sprintf("Session{slot=%s, name=%q}", s.slot.ID, s.slot.Name)
}

// Tick advances the session's scheduler. Call it once per simulation tick.
func (s *Session) Tick(now time.Time) {
	s.sched.Tick(now)
}

// RestoreMain reconciles the main world against the save data and, if a
// sub-space was open when the game was saved, starts opening it again.
// It runs at most once per session; later calls return a zero report.
func (s *Session) RestoreMain() (ReconcileReport, error) {
	if s.closed.Load() {
		return ReconcileReport{}, ErrSessionClosed
	}
	if s.manager.world == nil {
		return ReconcileReport{}, ErrNoWorld
	}
	if s.mainRestored {
		return ReconcileReport{Space: MainSpace}, nil
	}
	s.mainRestored = true

	report := s.rec.Reconcile(s.main, s.data.Main.Baseline, s.data.Main.Records)
	s.reportUnresolved(report)
	s.log.Info("persist: main world restored",
		"restored", report.Restored, "spawned", report.Spawned,
		"destroyed", report.Destroyed, "unresolved", report.Unresolved)

	if open := s.data.OpenSpace; !open.IsMain() {
		tok, _ := s.data.Token(open)
		snap, _ := s.data.Space(open)
		anchor := Anchor(tok.Anchor)
		if !tok.Valid() {
			anchor = snap.Anchor
		}
		def := tok.Definition
		if def == "" {
			def = snap.Definition
		}
		if err := s.OpenSpace(open, anchor, def); err != nil {
			return report, fmt.Errorf("persist: reopen space %s: %w", open, err)
		}
	}
	return report, nil
}

// OpenSpace starts opening a sub-space at anchor.
//
// Only one sub-space can be active. An Open one is force-closed first,
// which snapshots it. An Opening one cannot be aborted: the request waits
// until it is Open, closes it, and then proceeds. Opening the space that is
// already active is a no-op.
func (s *Session) OpenSpace(id SpaceID, anchor Anchor, definition string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if id.IsMain() {
		return ErrMainSpace
	}
	if s.manager.world == nil {
		return ErrNoWorld
	}
	req := &openRequest{space: id, anchor: anchor, definition: definition}

	if s.active == nil {
		return s.beginOpen(req)
	}
	if s.active.ID == id && s.active.state.Active() {
		return nil
	}

	s.pending = req
	switch s.active.state {
	case Opening:
		s.log.Debug("persist: open queued behind opening space", "space", id, "active", s.active.ID)
		s.closeRequested = true
	case Open:
		s.log.Debug("persist: force closing active space", "space", id, "active", s.active.ID)
		return s.closeActive()
	}
	return nil
}

// beginOpen moves a space into Opening and asks the streamer to load it.
func (s *Session) beginOpen(req *openRequest) error {
	space := NewStateSpace(req.space, req.anchor, req.definition)
	if snap, ok := s.data.Space(req.space); ok && space.Definition == "" {
		space.Definition = snap.Definition
	}
	space.state = Opening
	s.active = space
	s.gen++
	openSpacesGauge.Inc()

	s.log.Debug("persist: opening space", "space", space.ID, "definition", space.Definition)
	if st := s.manager.streamer; st != nil {
		if err := st.Load(space.ID, mgl64.Vec3(space.Anchor), space.Definition); err != nil {
			s.active = nil
			openSpacesGauge.Dec()
			return fmt.Errorf("persist: load space %s: %w", space.ID, err)
		}
		return nil
	}
	s.SpaceLoaded(space.ID)
	return nil
}

// SpaceLoaded reports that the streamer finished loading a space. The space
// is reconciled once its contents have settled, or once the settle retries
// run out. Reports for spaces that are not Opening are ignored.
func (s *Session) SpaceLoaded(id SpaceID) {
	space := s.active
	if space == nil || space.ID != id || space.state != Opening {
		s.log.Debug("persist: ignoring load completion", "space", id)
		return
	}
	if s.settle != nil && s.settle.Result() == PollPending {
		return
	}
	gen := s.gen
	cfg := s.manager.cfg
	s.settle = s.sched.Poll(PollSpec{
		Delay:    cfg.SettleDelay,
		Interval: cfg.SettleDelay,
		Attempts: 1 + cfg.SettleRetries,
	}, func() bool {
		return s.settled(space)
	}, func(r PollResult) {
		s.finishOpen(space, gen, r)
	})
}

// settled reports whether the contents of space have been positioned.
// Without a Settler, a space counts as settled unless every entity still
// sits at the world origin.
func (s *Session) settled(space *StateSpace) bool {
	w := s.manager.world
	if st, ok := w.(Settler); ok {
		return st.Settled(space.ID)
	}
	handles := w.Entities(space.ID)
	if len(handles) == 0 {
		return true
	}
	for _, h := range handles {
		if !w.Pose(h).Position.ApproxEqualThreshold(mgl64.Vec3{}, poseEpsilon) {
			return true
		}
	}
	return false
}

// finishOpen claims the space's entities, reconciles it and moves it to
// Open. Stale or repeated calls are ignored.
func (s *Session) finishOpen(space *StateSpace, gen uint64, settled PollResult) {
	if s.active != space || space.state != Opening || gen != s.gen {
		return
	}
	s.settle = nil
	if settled == PollTimedOut {
		s.log.Warn("persist: space did not settle, reconciling anyway", "space", space.ID)
	}

	s.claim(space)
	snap, _ := s.data.Space(space.ID)
	report := s.rec.Reconcile(space, snap.Baseline, snap.Records)
	space.state = Open

	if _, ok := s.data.Token(space.ID); !ok {
		tok := CrossReferenceToken{
			Space:      space.ID,
			Container:  NewToken(),
			Anchor:     mgl64.Vec3(space.Anchor),
			Stability:  DefaultStability,
			Definition: space.Definition,
		}
		s.data.PutToken(tok)
	}

	s.log.Info("persist: space open",
		"space", space.ID, "restored", report.Restored, "spawned", report.Spawned,
		"destroyed", report.Destroyed, "unresolved", report.Unresolved,
		"baseline_established", report.BaselineEstablished)
	s.reportUnresolved(report)
	s.manager.handler.HandleSpaceOpened(&EventSpaceOpened{Space: space, Report: report, Settled: settled})

	if s.closeRequested {
		s.closeRequested = false
		if err := s.closeActive(); err != nil {
			s.log.Warn("persist: deferred close failed", "space", space.ID, "error", err)
		}
	}
}

// claim assigns unclaimed entities physically inside space to it.
func (s *Session) claim(space *StateSpace) {
	w := s.manager.world
	for _, h := range w.Entities(space.ID) {
		tag, ok := w.Tag(h)
		if !ok || !tag.Space.IsMain() {
			continue
		}
		tag.Space = space.ID
		w.SetTag(h, tag)
	}
}

// reportUnresolved turns unresolved records into soft notifications.
func (s *Session) reportUnresolved(report ReconcileReport) {
	for _, rec := range report.UnresolvedRecords {
		s.manager.notifier.Notify(report.Space, "could not restore "+rec.label())
		s.manager.handler.HandleUnresolved(&EventUnresolved{Space: report.Space, Record: rec})
	}
}

// CloseSpace closes a sub-space: it is snapshotted exactly once and then
// torn down. A close issued while the space is still Opening takes effect
// as soon as it is Open. Closing a space that is not active is a no-op.
func (s *Session) CloseSpace(id SpaceID) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if id.IsMain() {
		return ErrMainSpace
	}
	if s.active == nil || s.active.ID != id {
		return nil
	}
	switch s.active.state {
	case Opening:
		s.closeRequested = true
		return nil
	case Open:
		return s.closeActive()
	}
	return nil
}

// closeActive snapshots the active space into the save data and asks the
// streamer to tear it down.
func (s *Session) closeActive() error {
	space := s.active
	space.state = Closing
	if s.settle != nil {
		s.settle.Cancel()
		s.settle = nil
	}

	s.closingReport = s.snap.Snapshot(space)
	s.data.PutSpace(space.snapshot())
	if s.data.OpenSpace == space.ID {
		s.data.OpenSpace = MainSpace
	}
	s.updateToken(space)

	if st := s.manager.streamer; st != nil {
		if err := st.Unload(space.ID); err != nil {
			// The snapshot is committed; drop the space so the slot frees up.
			s.SpaceUnloaded(space.ID)
			return fmt.Errorf("persist: unload space %s: %w", space.ID, err)
		}
		return nil
	}
	s.SpaceUnloaded(space.ID)
	return nil
}

// updateToken records the latest anchor of space in its cross reference
// and writes it back to the item that opened it, if any.
func (s *Session) updateToken(space *StateSpace) {
	tok, ok := s.data.Token(space.ID)
	if !ok {
		tok = CrossReferenceToken{Space: space.ID, Container: NewToken(), Stability: DefaultStability}
	}
	tok.Anchor = mgl64.Vec3(space.Anchor)
	if tok.Definition == "" {
		tok.Definition = space.Definition
	}
	s.data.PutToken(tok)

	if item, ok := s.entering[space.ID]; ok {
		if err := s.manager.carrier.WriteToken(item, tok); err != nil {
			s.log.Warn("persist: failed to update carried token", "space", space.ID, "error", err)
		}
		delete(s.entering, space.ID)
	}
}

// SpaceUnloaded reports that the streamer finished tearing a space down.
// The in-memory space is dropped; its snapshot stays in the save data. A
// queued open proceeds from here.
func (s *Session) SpaceUnloaded(id SpaceID) {
	space := s.active
	if space == nil || space.ID != id || space.state != Closing {
		s.log.Debug("persist: ignoring unload completion", "space", id)
		return
	}
	space.state = Unopened
	space.handles = nil
	s.active = nil
	openSpacesGauge.Dec()

	report := s.closingReport
	s.closingReport = SnapshotReport{}
	s.log.Info("persist: space closed", "space", id, "live", report.Live, "new", report.New, "removed", report.Removed)
	s.manager.handler.HandleSpaceClosed(&EventSpaceClosed{Space: id, Report: report})

	if req := s.pending; req != nil {
		s.pending = nil
		if err := s.beginOpen(req); err != nil {
			s.log.Warn("persist: queued open failed", "space", req.space, "error", err)
		}
	}
}

// Enter opens the space named by the cross reference carried by item, at
// anchor. An item without a token gets a new space, and the token is written
// to it. Entering the space that is already active does nothing.
func (s *Session) Enter(item Item, anchor mgl64.Vec3, definition string) (CrossReferenceToken, error) {
	if s.closed.Load() {
		return CrossReferenceToken{}, ErrSessionClosed
	}
	carrier := s.manager.carrier
	tok, ok := carrier.ReadToken(item)
	if !ok || !tok.Valid() {
		tok = NewCrossReferenceToken(definition, anchor)
	} else if known, found := s.data.Token(tok.Space); found && tok.Definition == "" {
		tok.Definition = known.Definition
	}
	if tok.Definition == "" {
		tok.Definition = definition
	}

	if s.active != nil && s.active.ID == tok.Space && s.active.state.Active() {
		return tok, nil
	}

	tok.Anchor = anchor
	s.data.PutToken(tok)
	if err := carrier.WriteToken(item, tok); err != nil {
		return tok, fmt.Errorf("persist: write token: %w", err)
	}
	s.entering[tok.Space] = item
	return tok, s.OpenSpace(tok.Space, Anchor(anchor), tok.Definition)
}

// Token returns the cross reference of a space.
func (s *Session) Token(space SpaceID) (CrossReferenceToken, bool) {
	return s.data.Token(space)
}

// Tokens returns every known cross reference.
func (s *Session) Tokens() []CrossReferenceToken {
	return append([]CrossReferenceToken(nil), s.data.Tokens...)
}

// AwaitOpen calls fn once space is Open, checking every tick. After timeout
// (the configured OpenTimeout when zero) it gives up, logs, and calls fn
// with PollTimedOut so the caller can proceed anyway.
func (s *Session) AwaitOpen(space SpaceID, timeout time.Duration, fn func(PollResult)) *Poller {
	if timeout <= 0 {
		timeout = s.manager.cfg.OpenTimeout
	}
	start := s.sched.Now()
	return s.sched.Poll(PollSpec{Timeout: timeout}, func() bool {
		return s.State(space) == Open
	}, func(r PollResult) {
		if r == PollTimedOut {
			waited := s.sched.Now().Sub(start)
			s.log.Warn("persist: timed out waiting for space to open", "space", space, "waited", waited)
			openTimeoutsTotal.Inc()
			s.manager.handler.HandleOpenTimeout(&EventOpenTimeout{Space: space, Waited: waited})
		}
		if fn != nil {
			fn(r)
		}
	})
}

// Save snapshots the main space and the open sub-space, without closing
// it, and writes the save data to the slot. A resumed main world is only
// snapshotted once RestoreMain has run.
func (s *Session) Save(ctx context.Context) (err error) {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.save(ctx)
}

func (s *Session) save(ctx context.Context) (err error) {
	ctx, span := otel.Tracer("persist").Start(ctx, "persist.Session.Save",
		trace.WithAttributes(attribute.String("slot", s.slot.ID.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s.manager.store == nil {
		return ErrNoStore
	}
	if s.manager.world != nil {
		// before RestoreMain the live main world is untagged; keep the committed snapshot
		if s.mainRestored || s.data.Main.Baseline.Empty() {
			s.snap.Snapshot(s.main)
			s.data.PutSpace(s.main.snapshot())
		}

		if sp := s.active; sp != nil {
			switch sp.state {
			case Open:
				s.snap.Snapshot(sp)
				s.data.PutSpace(sp.snapshot())
				s.data.OpenSpace = sp.ID
				s.updateToken(sp)
			case Opening:
				// Not reconciled yet; its stored snapshot is still current.
				s.data.OpenSpace = sp.ID
			}
		}
	}

	s.data.Slot = s.slot.ID.String()
	s.data.Name = s.slot.Name
	s.data.Timestamp = s.manager.now().UTC()
	s.slot.Timestamp = s.data.Timestamp

	blob, err := EncodeSaveData(s.data)
	if err != nil {
		return err
	}
	if err := s.manager.store.Write(ctx, s.slot.blobName(), blob); err != nil {
		return fmt.Errorf("persist: write slot %s: %w", s.slot.ID, err)
	}
	blobBytes.WithLabelValues("write").Observe(float64(len(blob)))
	span.SetAttributes(attribute.Int("bytes", len(blob)))
	s.log.Debug("persist: saved", "bytes", len(blob))
	return nil
}

// close marks the session closed and cancels its pending callbacks. It is
// idempotent. The session is not saved.
func (s *Session) close() {
	if s.closed.Swap(true) {
		return
	}
	if s.settle != nil {
		s.settle.Cancel()
	}
	if s.active != nil {
		openSpacesGauge.Dec()
	}
	s.sched.queue.Clear()
}
