package simworld

import (
	"slices"

	"github.com/oriumgames/persist"
)

// Codec returns a persist.PayloadCodec that reads and writes the payload of
// the given kind held by each entity.
func (w *World) Codec(kind persist.PayloadKind) persist.PayloadCodec {
	return codec{w: w, kind: kind}
}

type codec struct {
	w    *World
	kind persist.PayloadKind
}

// Serialize implements persist.PayloadCodec.
func (c codec) Serialize(h persist.Handle) ([]byte, bool, error) {
	c.w.mu.RLock()
	defer c.w.mu.RUnlock()
	e, ok := c.w.entity(h)
	if !ok {
		return nil, false, ErrInvalidHandle
	}
	data, ok := e.Payload[c.kind]
	return slices.Clone(data), ok, nil
}

// Deserialize implements persist.PayloadCodec.
func (c codec) Deserialize(h persist.Handle, data []byte) error {
	ok := c.w.Mutate(h, func(e *Entity) {
		if e.Payload == nil {
			e.Payload = make(map[persist.PayloadKind][]byte)
		}
		e.Payload[c.kind] = slices.Clone(data)
	})
	if !ok {
		return ErrInvalidHandle
	}
	return nil
}

// Item is a carried object backed by a map, such as an inventory item.
type Item map[string]string

// Value implements persist.Item.
func (i Item) Value(key string) (string, bool) {
	v, ok := i[key]
	return v, ok
}

// SetValue implements persist.Item.
func (i Item) SetValue(key, value string) {
	i[key] = value
}

var _ persist.Item = Item(nil)
