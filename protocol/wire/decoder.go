package wire

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

var (
	ErrShortBuffer   = errors.New("buffer too short")
	ErrNegativeCount = errors.New("negative length or count")
	ErrCountTooLarge = errors.New("count exceeds limit")
)

// MaxCount bounds collections whose elements may occupy no bytes at all.
const MaxCount = 1 << 16

// Decoder reads primitives from a byte slice.
type Decoder struct {
	buf []byte
	pos int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }
func (d *Decoder) EOF() bool      { return d.pos >= len(d.buf) }

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, errors.Wrapf(ErrShortBuffer, "need %d bytes, have %d", n, d.Remaining())
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *Decoder) ReadUint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *Decoder) ReadInt8() (int8, error) {
	v, err := d.ReadUint8()
	return int8(v), err
}

func (d *Decoder) ReadInt16() (int16, error) {
	v, err := d.ReadUint16()
	return int16(v), err
}

func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

func (d *Decoder) ReadFloat32() (float32, error) {
	v, err := d.ReadUint32()
	return math.Float32frombits(v), err
}

func (d *Decoder) ReadFloat64() (float64, error) {
	v, err := d.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadBool treats every non-zero byte as true.
func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadUint8()
	return v != 0, err
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	return string(b), err
}

// ReadBytes reads a length prefixed byte slice. The returned slice is a copy.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadCount(1)
	if err != nil {
		return nil, err
	}

	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// ReadCount reads a collection count. Each element occupies at least
// minElemSize bytes, which bounds the count by the remaining payload.
func (d *Decoder) ReadCount(minElemSize int) (int, error) {
	v, err := d.ReadInt32()
	if err != nil {
		return 0, err
	}

	n := int(v)
	if n < 0 {
		return 0, errors.Wrapf(ErrNegativeCount, "got %d", n)
	}
	if minElemSize > 0 && n > d.Remaining()/minElemSize {
		return 0, errors.Wrapf(ErrShortBuffer, "count %d exceeds remaining %d bytes", n, d.Remaining())
	}
	if n > MaxCount {
		return 0, errors.Wrapf(ErrCountTooLarge, "got %d", n)
	}
	return n, nil
}
