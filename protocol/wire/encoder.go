// Package wire implements the fixed-width big-endian primitives
// the packet payload is made of.
package wire

import (
	"encoding/binary"
	"math"
)

// Encoder appends primitives to an internal buffer.
// The buffer grows as needed so writes never fail.
type Encoder struct {
	buf []byte
}

func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

func (e *Encoder) Bytes() []byte { return e.buf }
func (e *Encoder) Len() int      { return len(e.buf) }
func (e *Encoder) Reset()        { e.buf = e.buf[:0] }

func (e *Encoder) WriteUint8(v uint8)   { e.buf = append(e.buf, v) }
func (e *Encoder) WriteUint16(v uint16) { e.buf = binary.BigEndian.AppendUint16(e.buf, v) }
func (e *Encoder) WriteUint32(v uint32) { e.buf = binary.BigEndian.AppendUint32(e.buf, v) }
func (e *Encoder) WriteUint64(v uint64) { e.buf = binary.BigEndian.AppendUint64(e.buf, v) }

func (e *Encoder) WriteInt8(v int8)   { e.WriteUint8(uint8(v)) }
func (e *Encoder) WriteInt16(v int16) { e.WriteUint16(uint16(v)) }
func (e *Encoder) WriteInt32(v int32) { e.WriteUint32(uint32(v)) }
func (e *Encoder) WriteInt64(v int64) { e.WriteUint64(uint64(v)) }

func (e *Encoder) WriteFloat32(v float32) { e.WriteUint32(math.Float32bits(v)) }
func (e *Encoder) WriteFloat64(v float64) { e.WriteUint64(math.Float64bits(v)) }

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteUint8(1)
		return
	}
	e.WriteUint8(0)
}

// WriteString writes the byte length as int32 followed by the raw bytes.
func (e *Encoder) WriteString(s string) {
	e.WriteInt32(int32(len(s)))
	e.buf = append(e.buf, s...)
}

// WriteBytes writes a length prefixed byte slice, like [Encoder.WriteString].
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteInt32(int32(len(b)))
	e.buf = append(e.buf, b...)
}

// WriteCount writes a collection element count.
func (e *Encoder) WriteCount(n int) { e.WriteInt32(int32(n)) }
