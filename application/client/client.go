// Package client connects to a server, authenticates and dispatches the
// packets it receives.
package client

import (
	"context"
	"log/slog"
	"neptunium/application/dispatch"
	"neptunium/lib/diag"
	"neptunium/lib/metrics"
	"neptunium/protocol"
	"neptunium/protocol/packet"
	"neptunium/protocol/serial"
	"neptunium/session/auth"
	"neptunium/transport"
	"neptunium/transport/framed"
	"sync"

	"github.com/pkg/errors"
)

type Handlers = dispatch.Table[*Client]

func NewHandlers(sink diag.Sink) *Handlers {
	return dispatch.NewTable[*Client](sink)
}

// Handle registers fn for packets of type P on h.
func Handle[P packet.Packet](h *Handlers, fn func(*Client, P) error) error {
	return dispatch.Handle(h, fn)
}

// HandlePacket registers fn for packets of type P on h.
func HandlePacket[P packet.Packet](h *Handlers, fn func(P) error) error {
	return dispatch.HandlePacket(h, fn)
}

type Options struct {
	// Sink receives decode and handler failures. Defaults to logging them.
	Sink    diag.Sink
	Metrics *metrics.Metrics
}

type Client struct {
	fc       *framed.Conn
	ser      *serial.Serializer
	handlers *Handlers
	gate     *auth.ClientGate

	ready     chan struct{}
	readyOnce sync.Once
	readDone  chan struct{}

	hooksMu      sync.Mutex
	onDisconnect []func(*Client)

	logger *slog.Logger
	opts   Options
}

// Connect dials addr and sends the auth request right away. It returns
// once the server assigned an id. A server closing the connection before
// that yields [protocol.ErrAuthFailure].
func Connect(
	ctx context.Context,
	dialer transport.ConnDialer,
	addr transport.Addr,
	credential string,
	ser *serial.Serializer,
	handlers *Handlers,
	logger *slog.Logger,
	opts Options,
) (*Client, error) {
	if opts.Sink == nil {
		opts.Sink = diag.Logger{L: logger}
	}
	if handlers == nil {
		handlers = NewHandlers(opts.Sink)
	}

	ser.Registry().Seal()
	handlers.Seal()

	con, err := dialer.Dial(ctx, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	c := &Client{
		fc:       framed.New(con, logger),
		ser:      ser,
		handlers: handlers,
		gate:     auth.NewClientGate(),
		ready:    make(chan struct{}),
		readDone: make(chan struct{}),
		opts:     opts,
	}
	c.logger = c.fc.Logger()

	go c.readLoop()

	if err := c.Send(&packet.AuthRequest{Password: credential}); err != nil {
		c.Close()
		c.Wait()
		return nil, err
	}

	select {
	case <-c.ready:
		return c, nil
	case <-c.readDone:
		select {
		case <-c.ready:
			// Accepted, then closed before Connect noticed.
			return c, nil
		default:
		}
		c.Wait()
		return nil, errors.Wrap(protocol.ErrAuthFailure, "connection closed during handshake")
	case <-ctx.Done():
		c.Close()
		c.Wait()
		return nil, ctx.Err()
	}
}

// ID is the id the server assigned to this connection.
func (c *Client) ID() int64 { return c.gate.ID() }

func (c *Client) Conn() *framed.Conn { return c.fc }

// Send queues p for the server.
func (c *Client) Send(p packet.Packet) error {
	payload, err := c.ser.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.fc.Send(payload); err != nil {
		return errors.Wrapf(err, "sending %s", packet.Name(p))
	}
	c.opts.Metrics.PacketSent(packet.Name(p))
	return nil
}

// OnDisconnect registers fn to run once the connection is gone.
// It only runs for clients that completed the handshake.
func (c *Client) OnDisconnect(fn func(*Client)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Close closes the connection without waiting. Packets already passed to
// Send are still flushed. Safe to call from handlers.
func (c *Client) Close() { c.fc.Close() }

// Wait blocks until the read loop and the writer returned.
func (c *Client) Wait() {
	<-c.readDone
	c.fc.Wait()
}

// Done is closed once the read loop returned.
func (c *Client) Done() <-chan struct{} { return c.readDone }

func (c *Client) readLoop() {
	defer func() {
		authenticated := c.gate.State() == auth.StateAuthenticated
		c.gate.Close()
		c.fc.Close()

		if authenticated {
			c.hooksMu.Lock()
			hooks := append([]func(*Client){}, c.onDisconnect...)
			c.hooksMu.Unlock()
			for _, fn := range hooks {
				fn(c)
			}
		}
		close(c.readDone)
	}()

	for {
		payload, err := c.fc.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, framed.ErrClosed):
				// no-op.
			case errors.Is(err, transport.ErrConnClosed):
				c.logger.Debug("connection closed by server")
			default:
				c.opts.Sink.Report(protocol.Wrap(protocol.ErrTransportFailure, err), "reading frame")
			}
			return
		}

		p, err := c.ser.Unmarshal(payload)
		if err != nil {
			if errors.Is(err, protocol.ErrUnknownPacket) {
				c.opts.Metrics.PacketError("unknown")
			} else {
				c.opts.Metrics.PacketError("malformed")
			}
			c.opts.Sink.Report(err, "decoding frame")
			continue
		}
		c.opts.Metrics.PacketReceived(packet.Name(p))

		verdict, id := c.gate.Observe(p)
		switch verdict {
		case auth.VerdictAccept:
			c.logger = c.logger.With("session", id)
			c.logger.Debug("authenticated")
			c.readyOnce.Do(func() { close(c.ready) })
		case auth.VerdictDispatch:
			handled, err := c.handlers.Dispatch(c, p)
			if !handled {
				c.logger.Debug("no handler for packet", "packet", packet.Name(p))
			}
			if err != nil {
				c.opts.Metrics.PacketError("handler")
			}
		}
	}
}
