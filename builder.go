package persist

import (
	"time"
)

// Builder configures persistence before initialization.
// Use NewBuilder() to create a builder and chain configuration methods.
type Builder struct {
	world    World
	streamer Streamer
	store    Store
	carrier  Carrier
	handler  Handler
	notifier Notifier
	clock    func() time.Time
	payloads []payloadRegistration
	options  []Option
}

type payloadRegistration struct {
	kind  PayloadKind
	codec PayloadCodec
}

// NewBuilder creates a new persistence builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// World sets the physical-world collaborator. Required.
func (b *Builder) World(w World) *Builder {
	b.world = w
	return b
}

// Streamer sets the level-streaming collaborator. Without one, sub-spaces
// count as loaded and unloaded as soon as they are requested.
func (b *Builder) Streamer(s Streamer) *Builder {
	b.streamer = s
	return b
}

// Store sets the blob store save slots are written to. Required.
func (b *Builder) Store(s Store) *Builder {
	b.store = s
	return b
}

// Payload registers the codec for one payload kind.
//
// Example:
//
//	builder.Payload(persist.PayloadStorage, &ChestCodec{...})
func (b *Builder) Payload(kind PayloadKind, codec PayloadCodec) *Builder {
	b.payloads = append(b.payloads, payloadRegistration{kind, codec})
	return b
}

// Carrier sets how cross references are stored on items.
// Default: CapsuleCarrier.
func (b *Builder) Carrier(c Carrier) *Builder {
	b.carrier = c
	return b
}

// Handler sets the lifecycle event handler.
// Default: NopHandler.
func (b *Builder) Handler(h Handler) *Builder {
	b.handler = h
	return b
}

// Notifier sets where soft, user-visible messages go.
// Default: the configured logger.
func (b *Builder) Notifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// Clock sets the time source used for slot ids, save timestamps and the
// starting time of session schedulers.
// Default: time.Now.
func (b *Builder) Clock(fn func() time.Time) *Builder {
	b.clock = fn
	return b
}

// Options applies engine options.
//
// Example:
//
//	builder.Options(persist.WithMatchTolerance(1.5), persist.WithLogger(logger))
func (b *Builder) Options(opts ...Option) *Builder {
	b.options = append(b.options, opts...)
	return b
}

// Init validates the configuration and returns the Manager.
// It fails if the World or the Store is missing.
func (b *Builder) Init() (*Manager, error) {
	if b.world == nil {
		return nil, ErrNoWorld
	}
	if b.store == nil {
		return nil, ErrNoStore
	}

	m := newManager(newConfig(b.options...))
	m.world = b.world
	m.streamer = b.streamer
	m.store = b.store
	if b.carrier != nil {
		m.carrier = b.carrier
	}
	if b.handler != nil {
		m.handler = b.handler
	}
	if b.clock != nil {
		m.clock = b.clock
	}
	m.notifier = b.notifier
	if m.notifier == nil {
		log := m.log
		m.notifier = NotifierFunc(func(space SpaceID, message string) {
			log.Info("persist: notice", "space", space, "message", message)
		})
	}

	m.snap = NewSnapshotter(m.world, b.options...)
	for _, reg := range b.payloads {
		m.snap.RegisterPayload(reg.kind, reg.codec)
	}
	m.rec = NewReconciler(m.snap)
	return m, nil
}
