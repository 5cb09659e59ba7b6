package tcp

import (
	"context"
	"neptunium/transport"
	"neptunium/transport/test"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type TCPTestSuite struct {
	test.ConnTestSuite
}

func TestTCPTestSuite(t *testing.T) {
	suite.Run(t, new(TCPTestSuite))
}

func (s *TCPTestSuite) SetupTest() {
	s.ConnTestSuite.SetupTest()
	s.BlockingWriteSize = 64 << 20

	l, err := Listen(NewAddr("127.0.0.1", 0))
	s.Require().NoError(err)
	defer l.Close()

	accepted := make(chan transport.Conn, 1)
	go func() {
		conn, err := l.Accept(context.Background())
		s.NoError(err)
		accepted <- conn
	}()

	s.C1, err = Dialer{}.Dial(context.Background(), l.Addr())
	s.Require().NoError(err)
	s.C2 = <-accepted
	s.Require().NotNil(s.C2)
}

func TestAddrString(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", NewAddr("127.0.0.1", 8080).String())
	assert.Equal(t, "[::1]:80", NewAddr("::1", 80).String())
	assert.Equal(t, "tcp", NewAddr("", 0).Network())
}

func TestAcceptCancel(t *testing.T) {
	l, err := Listen(NewAddr("127.0.0.1", 0))
	require.NoError(t, err)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = l.Accept(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The listener keeps working after a cancelled accept.
	go func() {
		conn, err := Dialer{}.Dial(context.Background(), l.Addr())
		if err == nil {
			conn.Close()
		}
	}()

	conn, err := l.Accept(context.Background())
	require.NoError(t, err)
	require.NoError(t, conn.Close())
}

func TestAcceptAfterClose(t *testing.T) {
	l, err := Listen(NewAddr("127.0.0.1", 0))
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, err = l.Accept(context.Background())
	assert.ErrorIs(t, err, transport.ErrConnListenerClosed)
	assert.ErrorIs(t, l.Close(), transport.ErrConnListenerClosed)
}

func TestDialRefused(t *testing.T) {
	l, err := Listen(NewAddr("127.0.0.1", 0))
	require.NoError(t, err)
	addr := l.Addr()
	require.NoError(t, l.Close())

	_, err = Dialer{}.Dial(context.Background(), addr)
	assert.ErrorIs(t, err, transport.ErrConnRefused)
}
