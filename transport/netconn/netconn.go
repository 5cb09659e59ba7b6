// Package netconn adapts [net.Conn] to [transport.Conn].
//
// Closure of either side surfaces as [transport.ErrConnClosed] and expired
// deadlines as [transport.ErrDeadLineExceeded], so callers never need to
// know which kind of socket sits underneath.
package netconn

import (
	"io"
	"neptunium/transport"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

type Conn struct {
	nc net.Conn

	// peerClosed is set once the counterpart finished its stream.
	peerClosed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

var _ transport.Conn = (*Conn)(nil)

func Wrap(nc net.Conn) *Conn {
	return &Conn{nc: nc}
}

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.peerClosed.Store(true)
		}
		return n, convertErr(err)
	}
	return n, nil
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.peerClosed.Load() {
		return 0, transport.ErrConnClosed
	}

	n, err := c.nc.Write(p)
	if err != nil {
		return n, convertErr(err)
	}
	return n, nil
}

// Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		if err := c.nc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			c.closeErr = errors.Wrap(err, "closing connection")
		}
	})
	return c.closeErr
}

func (c *Conn) LocalAddr() transport.Addr  { return c.nc.LocalAddr() }
func (c *Conn) RemoteAddr() transport.Addr { return c.nc.RemoteAddr() }

func (c *Conn) SetReadDeadLine(t time.Time)  { _ = c.nc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { _ = c.nc.SetWriteDeadline(t) }

// Unwrap returns the underlying connection.
func (c *Conn) Unwrap() net.Conn { return c.nc }

func convertErr(err error) error {
	switch {
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	case errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE):
		return transport.ErrConnClosed
	}
	return errors.Wrap(err, "socket i/o")
}
