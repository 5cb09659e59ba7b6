package serial

import (
	"neptunium/protocol/field"
	"neptunium/protocol/wire"
	"reflect"

	"github.com/pkg/errors"
)

// Codec encodes and decodes the values of the types it supports.
//
// Decode receives a settable value holding the default of its type.
// A codec that has nothing to produce leaves it untouched.
type Codec interface {
	Supports(t reflect.Type) bool
	Encode(s *Serializer, e *wire.Encoder, v reflect.Value) error
	Decode(s *Serializer, d *wire.Decoder, v reflect.Value) error
}

// StandardCodecs returns the built-in codecs in resolution order.
//
// The composite codec claims every aggregate kind, slices and arrays
// included, so it has to come last.
func StandardCodecs() []Codec {
	return []Codec{
		Primitive{},
		Enum{},
		Sequence{},
		Array{},
		Composite{},
	}
}

func isPredeclared(t reflect.Type) bool { return t.PkgPath() == "" && t.Name() != "" }

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// Primitive handles booleans, strings, floats and the predeclared integers.
// int and uint travel as 64-bit values.
type Primitive struct{}

func (Primitive) Supports(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String, reflect.Float32, reflect.Float64:
		return true
	}
	return isInteger(t.Kind()) && isPredeclared(t)
}

func (Primitive) Encode(_ *Serializer, e *wire.Encoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		e.WriteBool(v.Bool())
	case reflect.String:
		e.WriteString(v.String())
	case reflect.Float32:
		e.WriteFloat32(float32(v.Float()))
	case reflect.Float64:
		e.WriteFloat64(v.Float())
	case reflect.Int8:
		e.WriteInt8(int8(v.Int()))
	case reflect.Int16:
		e.WriteInt16(int16(v.Int()))
	case reflect.Int32:
		e.WriteInt32(int32(v.Int()))
	case reflect.Int64, reflect.Int:
		e.WriteInt64(v.Int())
	case reflect.Uint8:
		e.WriteUint8(uint8(v.Uint()))
	case reflect.Uint16:
		e.WriteUint16(uint16(v.Uint()))
	case reflect.Uint32:
		e.WriteUint32(uint32(v.Uint()))
	case reflect.Uint64, reflect.Uint:
		e.WriteUint64(v.Uint())
	default:
		return errors.Errorf("unsupported primitive kind %s", v.Kind())
	}
	return nil
}

func (Primitive) Decode(_ *Serializer, d *wire.Decoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := d.ReadBool()
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.String:
		s, err := d.ReadString()
		if err != nil {
			return err
		}
		v.SetString(s)
	case reflect.Float32:
		f, err := d.ReadFloat32()
		if err != nil {
			return err
		}
		v.SetFloat(float64(f))
	case reflect.Float64:
		f, err := d.ReadFloat64()
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.Int8:
		i, err := d.ReadInt8()
		if err != nil {
			return err
		}
		v.SetInt(int64(i))
	case reflect.Int16:
		i, err := d.ReadInt16()
		if err != nil {
			return err
		}
		v.SetInt(int64(i))
	case reflect.Int32:
		i, err := d.ReadInt32()
		if err != nil {
			return err
		}
		v.SetInt(int64(i))
	case reflect.Int64, reflect.Int:
		i, err := d.ReadInt64()
		if err != nil {
			return err
		}
		v.SetInt(i)
	case reflect.Uint8:
		u, err := d.ReadUint8()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
	case reflect.Uint16:
		u, err := d.ReadUint16()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
	case reflect.Uint32:
		u, err := d.ReadUint32()
		if err != nil {
			return err
		}
		v.SetUint(uint64(u))
	case reflect.Uint64, reflect.Uint:
		u, err := d.ReadUint64()
		if err != nil {
			return err
		}
		v.SetUint(u)
	default:
		return errors.Errorf("unsupported primitive kind %s", v.Kind())
	}
	return nil
}

// Enum handles defined integer types. The ordinal travels as int32.
type Enum struct{}

func (Enum) Supports(t reflect.Type) bool {
	return isInteger(t.Kind()) && !isPredeclared(t)
}

func (Enum) Encode(_ *Serializer, e *wire.Encoder, v reflect.Value) error {
	if v.CanInt() {
		e.WriteInt32(int32(v.Int()))
	} else {
		e.WriteInt32(int32(v.Uint()))
	}
	return nil
}

func (Enum) Decode(_ *Serializer, d *wire.Decoder, v reflect.Value) error {
	ordinal, err := d.ReadInt32()
	if err != nil {
		return err
	}

	if v.CanInt() {
		v.SetInt(int64(ordinal))
	} else {
		v.SetUint(uint64(uint32(ordinal)))
	}
	return nil
}

// Sequence handles slices: an int32 count followed by the elements.
// A nil slice travels as an empty one and an empty one decodes as nil.
type Sequence struct{}

func (Sequence) Supports(t reflect.Type) bool { return t.Kind() == reflect.Slice }

func (Sequence) Encode(s *Serializer, e *wire.Encoder, v reflect.Value) error {
	if isBytes(v.Type()) {
		e.WriteBytes(v.Bytes())
		return nil
	}

	e.WriteCount(v.Len())
	for i := 0; i < v.Len(); i++ {
		if err := s.EncodeValue(e, v.Index(i)); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	return nil
}

func (Sequence) Decode(s *Serializer, d *wire.Decoder, v reflect.Value) error {
	t := v.Type()
	if isBytes(t) {
		b, err := d.ReadBytes()
		if err != nil {
			return err
		}
		if len(b) > 0 {
			v.SetBytes(b)
		}
		return nil
	}

	n, err := d.ReadCount(s.minSize(t.Elem()))
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	slice := reflect.MakeSlice(t, n, n)
	for i := 0; i < n; i++ {
		if err := s.DecodeValue(d, slice.Index(i)); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	v.Set(slice)
	return nil
}

func isBytes(t reflect.Type) bool {
	return t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 && isPredeclared(t.Elem())
}

// Array handles fixed size arrays with the same layout as [Sequence].
// Elements beyond the array length are read and dropped.
type Array struct{}

func (Array) Supports(t reflect.Type) bool { return t.Kind() == reflect.Array }

func (Array) Encode(s *Serializer, e *wire.Encoder, v reflect.Value) error {
	e.WriteCount(v.Len())
	for i := 0; i < v.Len(); i++ {
		if err := s.EncodeValue(e, v.Index(i)); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	return nil
}

func (Array) Decode(s *Serializer, d *wire.Decoder, v reflect.Value) error {
	elem := v.Type().Elem()

	n, err := d.ReadCount(s.minSize(elem))
	if err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		target := reflect.New(elem).Elem()
		if i < v.Len() {
			target = v.Index(i)
		}
		if err := s.DecodeValue(d, target); err != nil {
			return errors.Wrapf(err, "element %d", i)
		}
	}
	return nil
}

// Composite is the fallback for aggregate and reference kinds.
// Only values declaring fields through [field.Schema] produce bytes;
// every other value is skipped on both ends.
type Composite struct{}

func (Composite) Supports(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct, reflect.Pointer, reflect.Interface,
		reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}

func (Composite) Encode(s *Serializer, e *wire.Encoder, v reflect.Value) error {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}

	schema, ok := field.Of(v)
	if !ok {
		return nil
	}
	return s.encodeFields(e, schema)
}

func (Composite) Decode(s *Serializer, d *wire.Decoder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Interface:
		// The dynamic type is unknown unless a value is already there.
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	case reflect.Pointer:
		if v.IsNil() {
			if !field.Implements(v.Type()) {
				return nil
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
	}

	schema, ok := field.Of(v)
	if !ok {
		return nil
	}
	return s.decodeFields(d, schema)
}
