package persist

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnknownSlot is returned when a save slot does not exist.
var ErrUnknownSlot = errors.New("persist: unknown save slot")

// Manager is the central persistence coordinator.
// It owns the collaborators shared by every session and manages save slots.
// Multiple Manager instances can coexist in the same process.
type Manager struct {
	world    World
	streamer Streamer
	store    Store
	carrier  Carrier
	handler  Handler
	notifier Notifier

	cfg   Config
	log   *slog.Logger
	clock func() time.Time

	// snap and rec are shared by every session; they hold no session state
	snap *Snapshotter
	rec  *Reconciler

	// sessions holds all live sessions by slot id
	sessions   map[ulid.ULID]*Session
	sessionsMu sync.RWMutex
}

// newManager creates a new manager.
func newManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		log:      cfg.logger(),
		clock:    time.Now,
		handler:  NopHandler{},
		carrier:  CapsuleCarrier{},
		sessions: make(map[ulid.ULID]*Session),
	}
}

// now returns the manager's current time.
func (m *Manager) now() time.Time {
	return m.clock()
}

// Config returns the engine configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Snapshotter returns the shared Snapshotter.
func (m *Manager) Snapshotter() *Snapshotter {
	return m.snap
}

// Reconciler returns the shared Reconciler.
func (m *Manager) Reconciler() *Reconciler {
	return m.rec
}

// addSession registers a session with the manager.
func (m *Manager) addSession(s *Session) {
	m.sessionsMu.Lock()
	m.sessions[s.slot.ID] = s
	m.sessionsMu.Unlock()
}

// removeSession unregisters a session from the manager.
func (m *Manager) removeSession(s *Session) {
	m.sessionsMu.Lock()
	if m.sessions[s.slot.ID] == s {
		delete(m.sessions, s.slot.ID)
	}
	m.sessionsMu.Unlock()
}

// Session returns the live session of a slot.
func (m *Manager) Session(id ulid.ULID) (*Session, bool) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Sessions returns all live sessions, oldest slot first.
func (m *Manager) Sessions() []*Session {
	m.sessionsMu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.sessionsMu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return a.slot.ID.Compare(b.slot.ID)
	})
	return out
}

// NewGame creates a save slot named name with empty save data, writes it,
// and returns its session.
func (m *Manager) NewGame(ctx context.Context, name string) (*Session, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	now := m.now()
	slot := SlotInfo{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()),
		Name:      name,
		Timestamp: now.UTC(),
	}
	data := &SaveData{
		Version:   BlobVersion,
		Slot:      slot.ID.String(),
		Name:      name,
		Timestamp: slot.Timestamp,
	}
	s := newSession(m, slot, data)
	if err := s.save(ctx); err != nil {
		return nil, err
	}
	m.addSession(s)
	m.log.Info("persist: new game", "slot", slot.ID.String(), "name", name)
	return s, nil
}

// Resume loads a save slot and returns its session. A session already live
// for the slot is returned as is.
//
// Save data that cannot be parsed is not an error: the session starts from
// empty data, so every space takes the fresh-baseline path.
func (m *Manager) Resume(ctx context.Context, id ulid.ULID) (_ *Session, err error) {
	ctx, span := otel.Tracer("persist").Start(ctx, "persist.Manager.Resume",
		trace.WithAttributes(attribute.String("slot", id.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if s, ok := m.Session(id); ok {
		return s, nil
	}
	if m.store == nil {
		return nil, ErrNoStore
	}
	slot, name, err := m.findSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	blob, err := m.store.Read(ctx, name)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSlot, id)
		}
		return nil, fmt.Errorf("persist: read slot %s: %w", id, err)
	}
	blobBytes.WithLabelValues("read").Observe(float64(len(blob)))

	data, err := DecodeSaveData(blob, m.log)
	if err != nil {
		m.log.Warn("persist: save data unreadable, starting fresh", "slot", id.String(), "error", err)
	}
	if data.Name != "" {
		slot.Name = data.Name
	}
	slot.Timestamp = data.Timestamp

	s := newSession(m, slot, data)
	m.addSession(s)
	return s, nil
}

// ResumeLatest resumes the most recently saved slot.
func (m *Manager) ResumeLatest(ctx context.Context) (*Session, error) {
	slots, err := m.Slots(ctx)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, ErrUnknownSlot
	}
	return m.Resume(ctx, slots[0].ID)
}

// Slots lists the save slots in the store, most recently saved first.
func (m *Manager) Slots(ctx context.Context) ([]SlotInfo, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	names, err := m.store.List(ctx, slotPrefix)
	if err != nil {
		return nil, fmt.Errorf("persist: list slots: %w", err)
	}

	slots := make([]SlotInfo, 0, len(names))
	for _, name := range names {
		slot, ok := parseBlobName(name)
		if !ok {
			continue
		}
		blob, err := m.store.Read(ctx, name)
		if err != nil {
			m.log.Warn("persist: failed to read slot", "blob", name, "error", err)
			continue
		}
		if h, err := readHeader(blob); err == nil {
			if h.Name != "" {
				slot.Name = h.Name
			}
			slot.Timestamp = h.Timestamp
		} else {
			m.log.Warn("persist: unreadable slot header", "blob", name, "error", err)
		}
		slots = append(slots, slot)
	}

	slices.SortFunc(slots, func(a, b SlotInfo) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	return slots, nil
}

// DeleteSlot removes a save slot. A live session for the slot is closed
// without saving.
func (m *Manager) DeleteSlot(ctx context.Context, id ulid.ULID) error {
	if m.store == nil {
		return ErrNoStore
	}
	_, name, err := m.findSlot(ctx, id)
	if err != nil {
		return err
	}
	if err := m.store.Delete(ctx, name); err != nil {
		return fmt.Errorf("persist: delete slot %s: %w", id, err)
	}
	if s, ok := m.Session(id); ok {
		s.close()
		m.removeSession(s)
	}
	m.log.Info("persist: slot deleted", "slot", id.String())
	return nil
}

// ReadSlot returns the raw save blob of a slot without resuming it.
func (m *Manager) ReadSlot(ctx context.Context, id ulid.ULID) ([]byte, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	_, name, err := m.findSlot(ctx, id)
	if err != nil {
		return nil, err
	}
	blob, err := m.store.Read(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("persist: read slot %s: %w", id, err)
	}
	return blob, nil
}

// findSlot locates the blob of a slot.
func (m *Manager) findSlot(ctx context.Context, id ulid.ULID) (SlotInfo, string, error) {
	names, err := m.store.List(ctx, slotPrefix+id.String())
	if err != nil {
		return SlotInfo{}, "", fmt.Errorf("persist: list slots: %w", err)
	}
	for _, name := range names {
		if slot, ok := parseBlobName(name); ok && slot.ID == id {
			return slot, name, nil
		}
	}
	return SlotInfo{}, "", fmt.Errorf("%w: %s", ErrUnknownSlot, id)
}

// CloseSession saves a session and releases it.
func (m *Manager) CloseSession(ctx context.Context, s *Session) error {
	if s.Closed() {
		return nil
	}
	err := s.save(ctx)
	s.close()
	m.removeSession(s)
	return err
}

// Close saves and releases every live session.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	for _, s := range m.Sessions() {
		if err := m.CloseSession(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
