package frame

import (
	"bytes"
	"io"
	"neptunium/protocol"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	b, err := Append(nil, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 3, 1, 2, 3}, b)

	_, err = Append(nil, make([]byte, protocol.MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestReadSequence(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte("first")))
	require.NoError(t, Write(&buf, nil))
	require.NoError(t, Write(&buf, make([]byte, protocol.MaxPayloadSize)))

	r := NewReader(&buf)

	p, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), p)

	p, err = r.Read()
	require.NoError(t, err)
	assert.Empty(t, p)

	p, err = r.Read()
	require.NoError(t, err)
	assert.Len(t, p, protocol.MaxPayloadSize)

	_, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadTruncated(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 5, 1, 2}))

	_, err := r.Read()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

// oneByteReader hands out a single byte per call.
type oneByteReader struct{ r io.Reader }

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestReadAcrossShortReads(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, []byte("split")))

	p, err := NewReader(oneByteReader{&buf}).Read()
	require.NoError(t, err)
	assert.Equal(t, []byte("split"), p)
}
