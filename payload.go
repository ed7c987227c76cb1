package persist

import (
	"fmt"
)

// payloadRegistry routes payload bytes to the codec registered for their kind.
type payloadRegistry struct {
	codecs [payloadKindCount]PayloadCodec
}

func newPayloadRegistry() *payloadRegistry {
	return &payloadRegistry{}
}

// register installs codec for kind. PayloadNone cannot carry a codec.
func (r *payloadRegistry) register(kind PayloadKind, codec PayloadCodec) {
	if kind == PayloadNone || kind >= payloadKindCount {
		panic(fmt.Sprintf("persist: cannot register codec for payload kind %v", kind))
	}
	r.codecs[kind] = codec
}

// serialize asks each codec in kind order whether h carries its payload.
// The first one that does wins.
func (r *payloadRegistry) serialize(h Handle) (Payload, error) {
	for kind := PayloadNone + 1; kind < payloadKindCount; kind++ {
		codec := r.codecs[kind]
		if codec == nil {
			continue
		}
		data, ok, err := codec.Serialize(h)
		if err != nil {
			return Payload{}, fmt.Errorf("serialize %s payload: %w", kind, err)
		}
		if ok {
			return Payload{Kind: kind, Data: data}, nil
		}
	}
	return Payload{}, nil
}

// apply hands p to the codec registered for its kind.
func (r *payloadRegistry) apply(h Handle, p Payload) error {
	if p.IsZero() {
		return nil
	}
	if p.Kind >= payloadKindCount || r.codecs[p.Kind] == nil {
		return fmt.Errorf("no codec registered for %s payload", p.Kind)
	}
	if err := r.codecs[p.Kind].Deserialize(h, p.Data); err != nil {
		return fmt.Errorf("deserialize %s payload: %w", p.Kind, err)
	}
	return nil
}
