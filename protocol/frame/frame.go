// Package frame delimits payloads on a byte stream.
//
// Each frame is a big-endian uint16 payload length followed by the payload.
package frame

import (
	"encoding/binary"
	"io"
	iolib "neptunium/lib/io"
	"neptunium/protocol"

	"github.com/pkg/errors"
)

const HeaderSize = 2

var ErrFrameTooLarge = errors.New("frame payload too large")

// Append appends the frame of payload to dst.
func Append(dst, payload []byte) ([]byte, error) {
	if len(payload) > protocol.MaxPayloadSize {
		return dst, errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(payload))
	}

	dst = binary.BigEndian.AppendUint16(dst, uint16(len(payload)))
	return append(dst, payload...), nil
}

// Write writes the frame of payload to w.
func Write(w io.Writer, payload []byte) error {
	b, err := Append(make([]byte, 0, HeaderSize+len(payload)), payload)
	if err != nil {
		return err
	}

	if _, err := iolib.WriteFull(w, b); err != nil {
		return errors.Wrap(err, "writing frame")
	}
	return nil
}

// Reader reads frames from an underlying stream.
type Reader struct {
	r      io.Reader
	header [HeaderSize]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Read returns the payload of the next frame.
// The error of the underlying reader is returned as is when no byte
// of the frame has been read, so callers can tell a clean close apart.
func (fr *Reader) Read() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.header[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint16(fr.header[:])
	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrap(err, "reading frame payload")
	}

	return payload, nil
}
