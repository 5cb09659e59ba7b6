// Package ws carries connections over WebSocket binary messages.
//
// Each Write becomes one binary message, so a frame written in one call
// arrives as one message. Unlike the other transports an expired deadline
// tears the whole connection down.
package ws

import (
	"context"
	"neptunium/transport"
	"neptunium/transport/netconn"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"nhooyr.io/websocket"
)

// Addr is the URL of a WebSocket endpoint, like ws://127.0.0.1:8080/ws.
type Addr struct {
	URL string
}

func (a Addr) Network() string { return "ws" }
func (a Addr) String() string  { return a.URL }

var _ transport.Addr = Addr{}

type conn struct {
	*netconn.Conn

	done      chan struct{}
	closeOnce sync.Once
}

var _ transport.Conn = (*conn)(nil)

func newConn(c *websocket.Conn) *conn {
	// The lifetime of the connection is bounded by Close, not by a context.
	nc := websocket.NetConn(context.Background(), c, websocket.MessageBinary)
	return &conn{
		Conn: netconn.Wrap(nc),
		done: make(chan struct{}),
	}
}

func (c *conn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	return n, c.convertErr(err)
}

func (c *conn) Write(p []byte) (int, error) {
	n, err := c.Conn.Write(p)
	return n, c.convertErr(err)
}

func (c *conn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() { close(c.done) })
	return err
}

func (c *conn) convertErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, transport.ErrConnClosed), errors.Is(err, transport.ErrDeadLineExceeded):
		return err
	case websocket.CloseStatus(err) != -1:
		return transport.ErrConnClosed
	}

	select {
	case <-c.done:
		return transport.ErrConnClosed
	default:
		return err
	}
}

type Dialer struct {
	// Path is appended to addresses that are not a [Addr].
	Path string
}

var _ transport.ConnDialer = Dialer{}

func (d Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	url := addr.String()
	if _, ok := addr.(Addr); !ok {
		url = "ws://" + addr.String() + d.path()
	}

	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(transport.ErrConnRefused, "dialing %s: %s", url, err)
	}

	return newConn(c), nil
}

func (d Dialer) path() string {
	if d.Path == "" {
		return "/"
	}
	if !strings.HasPrefix(d.Path, "/") {
		return "/" + d.Path
	}
	return d.Path
}

// Listener accepts WebSocket upgrades on a single path.
type Listener struct {
	addr Addr
	srv  *http.Server

	conns  chan *conn
	closed chan struct{}
	once   sync.Once
}

var _ transport.ConnListener = (*Listener)(nil)

// Listen serves WebSocket upgrades on path at the TCP address hostport.
func Listen(hostport, path string) (*Listener, error) {
	if path == "" {
		path = "/"
	}

	nl, err := net.Listen("tcp", hostport)
	if err != nil {
		return nil, errors.Wrapf(err, "listening on %s", hostport)
	}

	l := &Listener{
		addr:   Addr{URL: "ws://" + nl.Addr().String() + path},
		conns:  make(chan *conn),
		closed: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Get(path, l.serveUpgrade)
	l.srv = &http.Server{Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() { _ = l.srv.Serve(nl) }()

	return l, nil
}

func (l *Listener) serveUpgrade(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	wc := newConn(c)
	select {
	case l.conns <- wc:
	case <-l.closed:
		c.Close(websocket.StatusGoingAway, "listener closed")
		return
	case <-r.Context().Done():
		return
	}

	// Returning would release the hijacked connection.
	<-wc.done
}

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closed:
		return nil, transport.ErrConnListenerClosed
	case c := <-l.conns:
		return c, nil
	}
}

func (l *Listener) Addr() transport.Addr { return l.addr }

// Close stops accepting. Connections already accepted stay open.
func (l *Listener) Close() error {
	err := transport.ErrConnListenerClosed
	l.once.Do(func() {
		close(l.closed)
		err = l.srv.Close()
	})
	return err
}
