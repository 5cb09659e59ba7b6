// Package framed turns a [transport.Conn] into a stream of payloads.
//
// Reads happen on the caller's goroutine. Writes are queued without bound
// and drained in order by one writer goroutine per connection, so Send
// never blocks on a slow peer.
package framed

import (
	"log/slog"
	"neptunium/lib/ds/queue"
	iolib "neptunium/lib/io"
	"neptunium/protocol/frame"
	"neptunium/transport"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("framed connection is closed")

type Conn struct {
	id  uuid.UUID
	con transport.Conn
	r   *frame.Reader

	outbound *queue.Blocking[[]byte]

	closeOnce sync.Once
	conOnce   sync.Once
	done      chan struct{}
	writerWg  sync.WaitGroup

	logger *slog.Logger
}

// New wraps con and starts its writer.
func New(con transport.Conn, logger *slog.Logger) *Conn {
	id := uuid.New()
	c := &Conn{
		id:       id,
		con:      con,
		r:        frame.NewReader(con),
		outbound: queue.NewBlocking[[]byte](queue.NewRing[[]byte](8)),
		done:     make(chan struct{}),
		logger:   logger.With("handle", id.String(), "remote", con.RemoteAddr().String()),
	}

	c.writerWg.Add(1)
	go c.writeLoop()

	return c
}

// ID is unique per connection and stable across its lifetime.
func (c *Conn) ID() uuid.UUID              { return c.id }
func (c *Conn) RemoteAddr() transport.Addr { return c.con.RemoteAddr() }
func (c *Conn) LocalAddr() transport.Addr  { return c.con.LocalAddr() }
func (c *Conn) Transport() transport.Conn  { return c.con }
func (c *Conn) Logger() *slog.Logger       { return c.logger }

// ReadFrame blocks until the next payload arrives.
// It must not be called concurrently.
func (c *Conn) ReadFrame() ([]byte, error) {
	p, err := c.r.Read()
	if err != nil {
		if c.isClosed() {
			return nil, ErrClosed
		}
		return nil, err
	}
	return p, nil
}

// Send queues payload for writing and returns immediately.
// Payloads sent after Close are dropped.
func (c *Conn) Send(payload []byte) error {
	b, err := frame.Append(nil, payload)
	if err != nil {
		return err
	}

	if !c.outbound.Push(b) {
		return ErrClosed
	}
	return nil
}

// Close stops accepting payloads and returns at once. The writer still
// flushes what Send already queued, then closes the transport.
// It is safe to call more than once and from any goroutine.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.outbound.Close()
	})
}

// Abort closes the transport immediately. Queued payloads are lost.
func (c *Conn) Abort() {
	c.Close()
	c.closeTransport()
}

func (c *Conn) closeTransport() {
	c.conOnce.Do(func() {
		if err := c.con.Close(); err != nil && !errors.Is(err, transport.ErrConnClosed) {
			c.logger.Error("error when closing connection", "error", err)
		}
	})
}

// Wait blocks until queued payloads were flushed and the transport closed.
func (c *Conn) Wait() { c.writerWg.Wait() }

// Done is closed once Close was called.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) writeLoop() {
	defer c.writerWg.Done()
	defer c.closeTransport()

	for {
		b, err := c.outbound.Pop(nil)
		if err != nil {
			return
		}

		if _, err := iolib.WriteFull(c.con, b); err != nil {
			if !errors.Is(err, transport.ErrConnClosed) {
				c.logger.Error("writing frame", "error", err)
			}
			// A broken writer makes the connection useless.
			c.Close()
			return
		}
	}
}
