// Package tcp carries connections over OS TCP sockets.
package tcp

import (
	"context"
	"neptunium/transport"
	"neptunium/transport/netconn"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

type Addr struct {
	host string
	port uint16
}

var _ transport.Addr = Addr{}

func NewAddr(host string, port uint16) Addr {
	return Addr{host: host, port: port}
}

func (a Addr) Host() string    { return a.host }
func (a Addr) Port() uint16    { return a.port }
func (a Addr) Network() string { return "tcp" }

func (a Addr) String() string {
	return net.JoinHostPort(a.host, strconv.FormatUint(uint64(a.port), 10))
}

type Dialer struct {
	// Timeout bounds connection establishment. Zero means no limit.
	Timeout time.Duration
}

var _ transport.ConnDialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}

	nc, err := nd.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(transport.ErrConnRefused, "dialing %s: %s", addr, err)
	}

	return netconn.Wrap(nc), nil
}

type Listener struct {
	l *net.TCPListener
}

var _ transport.ConnListener = (*Listener)(nil)

// Listen binds addr. Port zero picks a free port, see [Listener.Addr].
func Listen(addr Addr) (*Listener, error) {
	l, err := net.Listen("tcp", addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", addr)
	}
	return &Listener{l: l.(*net.TCPListener)}, nil
}

// Accept waits for the next connection until ctx is done.
func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_ = l.l.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		// Unblock the pending accept.
		_ = l.l.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	nc, err := l.l.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, transport.ErrConnListenerClosed
		}
		return nil, errors.Wrap(err, "accepting connection")
	}

	return netconn.Wrap(nc), nil
}

func (l *Listener) Addr() transport.Addr { return l.l.Addr() }

func (l *Listener) Close() error {
	if err := l.l.Close(); err != nil {
		if errors.Is(err, net.ErrClosed) {
			return transport.ErrConnListenerClosed
		}
		return errors.Wrap(err, "closing listener")
	}
	return nil
}
