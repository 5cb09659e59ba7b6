// Package msgpackcodec carries values the standard codecs cannot express,
// such as maps, as length prefixed MessagePack documents.
package msgpackcodec

import (
	"neptunium/protocol/serial"
	"neptunium/protocol/wire"
	"reflect"

	"github.com/pkg/errors"
	"github.com/shamaton/msgpack/v2"
)

type Codec struct {
	types map[reflect.Type]struct{}
}

var _ serial.Codec = Codec{}

// New returns a codec for every map type and for the given extra types.
func New(extra ...reflect.Type) Codec {
	types := make(map[reflect.Type]struct{}, len(extra))
	for _, t := range extra {
		types[t] = struct{}{}
	}
	return Codec{types: types}
}

func (c Codec) Supports(t reflect.Type) bool {
	if t.Kind() == reflect.Map {
		return true
	}
	_, ok := c.types[t]
	return ok
}

func (c Codec) Encode(_ *serial.Serializer, e *wire.Encoder, v reflect.Value) error {
	b, err := msgpack.Marshal(v.Interface())
	if err != nil {
		return errors.Wrapf(err, "msgpack encoding %s", v.Type())
	}
	e.WriteBytes(b)
	return nil
}

func (c Codec) Decode(_ *serial.Serializer, d *wire.Decoder, v reflect.Value) error {
	b, err := d.ReadBytes()
	if err != nil {
		return err
	}

	target := reflect.New(v.Type())
	if err := msgpack.Unmarshal(b, target.Interface()); err != nil {
		return errors.Wrapf(err, "msgpack decoding %s", v.Type())
	}
	v.Set(target.Elem())
	return nil
}
