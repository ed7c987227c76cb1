package persist_test

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
	"github.com/oriumgames/persist/simworld"
	"github.com/oriumgames/persist/store"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func vec(x, y, z float64) mgl64.Vec3 {
	return mgl64.Vec3{x, y, z}
}

func at(x, y, z float64) persist.WorldPose {
	return persist.NewWorldPose(vec(x, y, z), mgl64.Vec3{})
}

func localAt(x, y, z float64) persist.LocalPose {
	return persist.NewLocalPose(vec(x, y, z), mgl64.Vec3{})
}

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: epoch}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// recorder is a Handler keeping every event it receives.
type recorder struct {
	persist.NopHandler
	opened     []*persist.EventSpaceOpened
	closed     []*persist.EventSpaceClosed
	unresolved []*persist.EventUnresolved
	timeouts   []*persist.EventOpenTimeout
}

func (r *recorder) HandleSpaceOpened(e *persist.EventSpaceOpened) { r.opened = append(r.opened, e) }
func (r *recorder) HandleSpaceClosed(e *persist.EventSpaceClosed) { r.closed = append(r.closed, e) }
func (r *recorder) HandleUnresolved(e *persist.EventUnresolved) { r.unresolved = append(r.unresolved, e) }
func (r *recorder) HandleOpenTimeout(e *persist.EventOpenTimeout) { r.timeouts = append(r.timeouts, e) }

// logBuffer returns a debug logger writing text records to a buffer.
func logBuffer() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), &buf
}

// harness wires a Manager over a simulated world and an in-memory store.
type harness struct {
	world    *simworld.World
	store    *store.Memory
	clock    *clock
	events   *recorder
	notices  []string
	log      *bytes.Buffer
	manager  *persist.Manager
	streamed bool
}

type harnessOption func(h *harness, b *persist.Builder)

// withoutStreamer leaves sub-space loading to complete immediately.
func withoutStreamer() harnessOption {
	return func(h *harness, b *persist.Builder) {
		h.streamed = false
		b.Streamer(nil)
	}
}

// withStore shares a store between managers, as two process runs would.
func withStore(s *store.Memory) harnessOption {
	return func(h *harness, b *persist.Builder) {
		h.store = s
		b.Store(s)
	}
}

func withOptions(opts ...persist.Option) harnessOption {
	return func(_ *harness, b *persist.Builder) {
		b.Options(opts...)
	}
}

func newHarness(t *testing.T, w *simworld.World, opts ...harnessOption) *harness {
	t.Helper()
	logger, buf := logBuffer()
	h := &harness{
		world:    w,
		store:    store.NewMemory(),
		clock:    newClock(),
		events:   &recorder{},
		log:      buf,
		streamed: true,
	}
	b := persist.NewBuilder().
		World(w).
		Streamer(w).
		Store(h.store).
		Payload(persist.PayloadStorage, w.Codec(persist.PayloadStorage)).
		Payload(persist.PayloadItemState, w.Codec(persist.PayloadItemState)).
		Handler(h.events).
		Notifier(persist.NotifierFunc(func(_ persist.SpaceID, msg string) {
			h.notices = append(h.notices, msg)
		})).
		Clock(h.clock.Now).
		Options(persist.WithLogger(logger))
	for _, opt := range opts {
		opt(h, b)
	}
	m, err := b.Init()
	require.NoError(t, err)
	h.manager = m
	return h
}

// pump delivers streaming completions and ticks the session forward by d,
// repeating n times.
func (h *harness) pump(s *persist.Session, d time.Duration, n int) {
	for range n {
		if h.streamed {
			h.world.Complete(s)
		}
		s.Tick(h.clock.Advance(d))
	}
	if h.streamed {
		h.world.Complete(s)
	}
}

// tokens returns the identity token of every live entity in space, by type.
func tokensByType(w *simworld.World, space persist.SpaceID) map[string][]persist.Token {
	out := make(map[string][]persist.Token)
	for _, h := range w.Entities(space) {
		tag, _ := w.Tag(h)
		out[w.Type(h)] = append(out[w.Type(h)], tag.ID)
	}
	return out
}
