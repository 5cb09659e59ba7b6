// Package serial turns packets into payloads and back.
//
// A payload is the int32 identity of the packet type followed by its
// fields, encoded in ascending field order. The codec of each field is
// resolved from its declared type against an ordered list of codecs;
// the first one supporting the type wins. Types no codec supports are
// skipped on both ends and keep their default value.
//
// Composites are encoded recursively with no depth limit.
// Packets must not contain reference cycles.
package serial

import (
	"neptunium/protocol"
	"neptunium/protocol/field"
	"neptunium/protocol/packet"
	"neptunium/protocol/wire"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

type Options struct {
	// Override is tried before every standard codec.
	Override []Codec
	// Extra is tried after the specific standard codecs
	// but before the composite fallback.
	Extra []Codec
}

type Serializer struct {
	reg    *packet.Registry
	codecs []Codec

	resolved sync.Map // reflect.Type -> resolution
}

type resolution struct {
	codec Codec // nil if unsupported.
}

func New(reg *packet.Registry, opts Options) *Serializer {
	std := StandardCodecs()
	fallback := std[len(std)-1]

	codecs := make([]Codec, 0, len(opts.Override)+len(std)+len(opts.Extra))
	codecs = append(codecs, opts.Override...)
	codecs = append(codecs, std[:len(std)-1]...)
	codecs = append(codecs, opts.Extra...)
	codecs = append(codecs, fallback)

	return &Serializer{reg: reg, codecs: codecs}
}

func (s *Serializer) Registry() *packet.Registry { return s.reg }

// Marshal encodes p into a payload.
// It fails with [protocol.ErrProtocolViolation] if the type of p is not registered.
func (s *Serializer) Marshal(p packet.Packet) ([]byte, error) {
	id, ok := s.reg.IdentityOf(p)
	if !ok {
		return nil, errors.Wrapf(protocol.ErrProtocolViolation, "packet type %T is not registered", p)
	}

	e := wire.NewEncoder(64)
	e.WriteInt32(id)
	if err := s.encodeFields(e, p); err != nil {
		return nil, errors.Wrapf(err, "encoding %T", p)
	}

	if e.Len() > protocol.MaxPayloadSize {
		return nil, errors.Wrapf(protocol.ErrProtocolViolation,
			"payload of %T is %d bytes, limit is %d", p, e.Len(), protocol.MaxPayloadSize)
	}

	return e.Bytes(), nil
}

// Unmarshal decodes a payload.
//
// An unregistered identity yields [protocol.ErrUnknownPacket] and a broken
// field stream yields [protocol.ErrMalformedPacket]. Both only concern
// the payload at hand.
func (s *Serializer) Unmarshal(payload []byte) (packet.Packet, error) {
	d := wire.NewDecoder(payload)

	id, err := d.ReadInt32()
	if err != nil {
		return nil, errors.Wrap(protocol.ErrMalformedPacket, "reading identity")
	}

	p, ok := s.reg.New(id)
	if !ok {
		return nil, errors.Wrapf(protocol.ErrUnknownPacket, "identity %d", id)
	}

	if err := s.decodeFields(d, p); err != nil {
		return nil, protocol.Wrap(protocol.ErrMalformedPacket, errors.WithMessagef(err, "decoding %T", p))
	}

	return p, nil
}

// EncodeValue writes v with the codec resolved for its type.
// Nil pointers and interfaces write nothing.
func (s *Serializer) EncodeValue(e *wire.Encoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
	}

	c := s.resolve(v.Type())
	if c == nil {
		return nil
	}
	return c.Encode(s, e, v)
}

// DecodeValue reads into the settable v with the codec resolved for its type.
func (s *Serializer) DecodeValue(d *wire.Decoder, v reflect.Value) error {
	c := s.resolve(v.Type())
	if c == nil {
		return nil
	}
	return c.Decode(s, d, v)
}

func (s *Serializer) encodeFields(e *wire.Encoder, schema field.Schema) error {
	for _, f := range field.Ordered(schema) {
		if err := s.EncodeValue(e, f.Value()); err != nil {
			return errors.Wrapf(err, "field %d", f.Order)
		}
	}
	return nil
}

// decodeFields stops quietly when the payload runs out,
// leaving the remaining fields at their default.
func (s *Serializer) decodeFields(d *wire.Decoder, schema field.Schema) error {
	for _, f := range field.Ordered(schema) {
		if d.EOF() {
			return nil
		}
		if err := s.DecodeValue(d, f.Value()); err != nil {
			return errors.Wrapf(err, "field %d", f.Order)
		}
	}
	return nil
}

func (s *Serializer) resolve(t reflect.Type) Codec {
	if r, ok := s.resolved.Load(t); ok {
		return r.(resolution).codec
	}

	var found Codec
	for _, c := range s.codecs {
		if c.Supports(t) {
			found = c
			break
		}
	}

	s.resolved.Store(t, resolution{codec: found})
	return found
}

// minSize is a lower bound of the encoded size of a value of type t.
// Types handled by other than the standard codecs have no known bound.
func (s *Serializer) minSize(t reflect.Type) int {
	switch s.resolve(t).(type) {
	case Primitive:
		switch t.Kind() {
		case reflect.Bool, reflect.Int8, reflect.Uint8:
			return 1
		case reflect.Int16, reflect.Uint16:
			return 2
		case reflect.Int64, reflect.Uint64, reflect.Int, reflect.Uint, reflect.Float64:
			return 8
		}
		return 4
	case Enum, Sequence, Array:
		return 4
	}
	return 0
}
