package server

import (
	"log/slog"
	"neptunium/protocol"
	"neptunium/protocol/packet"
	"neptunium/session"
	"neptunium/session/auth"
	"neptunium/transport"
	"neptunium/transport/framed"

	"github.com/pkg/errors"
)

// conn is the worker of one accepted connection. It reads, decodes and
// dispatches frames in arrival order on a single goroutine.
type conn struct {
	srv  *Server
	fc   *framed.Conn
	gate *auth.ServerGate

	sess *session.Session

	logger *slog.Logger
}

func newConn(s *Server, fc *framed.Conn) *conn {
	return &conn{
		srv:    s,
		fc:     fc,
		gate:   auth.NewServerGate(s.opts.Credential),
		logger: fc.Logger(),
	}
}

func (c *conn) serve() {
	defer func() {
		c.logger.Debug("closing connection")
		c.gate.Close()
		if c.sess != nil {
			c.srv.sessions.Remove(c.sess)
		}
		c.fc.Close()
		c.fc.Wait()
	}()

	if timeout := c.srv.opts.HandshakeTimeout; timeout > 0 {
		t := c.srv.clock.AfterFunc(timeout, func() {
			if c.gate.State() == auth.StateConnected {
				c.logger.Info("handshake timeout exceeded")
				c.fc.Abort()
			}
		})
		defer t.Stop()
	}

	for {
		payload, err := c.fc.ReadFrame()
		if err != nil {
			switch {
			case errors.Is(err, framed.ErrClosed):
				// no-op.
			case errors.Is(err, transport.ErrConnClosed):
				c.logger.Debug("connection closed by peer")
			default:
				c.srv.opts.Sink.Report(protocol.Wrap(protocol.ErrTransportFailure, err), "reading frame")
			}
			return
		}

		if !c.handle(payload) {
			return
		}
	}
}

// handle processes one frame and reports whether to keep reading.
func (c *conn) handle(payload []byte) bool {
	metrics := c.srv.opts.Metrics

	p, err := c.srv.ser.Unmarshal(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownPacket) {
			metrics.PacketError("unknown")
		} else {
			metrics.PacketError("malformed")
		}

		switch {
		case errors.Is(err, protocol.ErrUnknownPacket):
			// Unknown identities are skipped before and after authentication.
		case c.sess == nil:
			metrics.AuthFailed()
			c.logger.Info("authentication failed", "error", err)
			return false
		}

		c.srv.opts.Sink.Report(err, "decoding frame")
		return true
	}
	metrics.PacketReceived(packet.Name(p))

	verdict, err := c.gate.Admit(p)
	switch verdict {
	case auth.VerdictAccept:
		c.sess = c.srv.sessions.Create(c.fc)
		if err := c.sess.Send(&packet.AuthFinish{ClientID: c.sess.ID()}); err != nil {
			c.logger.Error("sending auth finish", "error", err)
			return false
		}
		c.logger = c.logger.With("session", c.sess.ID())
		c.logger.Debug("session authenticated")
		c.srv.sessions.Connected(c.sess)
	case auth.VerdictReject:
		metrics.AuthFailed()
		c.logger.Info("authentication failed", "error", err)
		return false
	case auth.VerdictDispatch:
		start := c.srv.clock.Now()
		handled, err := c.srv.handlers.Dispatch(c.sess, p)
		if handled {
			metrics.ObserveHandler(packet.Name(p), c.srv.clock.Since(start))
		}
		if err != nil {
			metrics.PacketError("handler")
		}
	}

	return true
}
