// Package server accepts connections, authenticates them and dispatches
// their packets to the handlers of the application.
package server

import (
	"context"
	"log/slog"
	"neptunium/application/dispatch"
	"neptunium/lib/diag"
	"neptunium/protocol/packet"
	"neptunium/protocol/serial"
	"neptunium/session"
	"neptunium/transport"
	"neptunium/transport/framed"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type Handlers = dispatch.Table[*session.Session]

func NewHandlers(sink diag.Sink) *Handlers {
	return dispatch.NewTable[*session.Session](sink)
}

// Handle registers fn for packets of type P on h.
func Handle[P packet.Packet](h *Handlers, fn func(*session.Session, P) error) error {
	return dispatch.Handle(h, fn)
}

// HandlePacket registers fn for packets of type P on h, ignoring the sender.
func HandlePacket[P packet.Packet](h *Handlers, fn func(P) error) error {
	return dispatch.HandlePacket(h, fn)
}

type Server struct {
	l transport.ConnListener

	closeListener func()
	acceptDone    chan struct{}
	group         errgroup.Group

	connsMu sync.Mutex
	conns   map[*framed.Conn]struct{}
	closed  bool

	ser      *serial.Serializer
	handlers *Handlers
	sessions *session.Registry

	logger *slog.Logger
	opts   Options
	clock  clock.Clock
}

func New(
	l transport.ConnListener,
	ser *serial.Serializer,
	handlers *Handlers,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Server {
	if opts.Sink == nil {
		opts.Sink = diag.Logger{L: logger}
	}
	if handlers == nil {
		handlers = NewHandlers(opts.Sink)
	}

	s := &Server{
		l:          l,
		acceptDone: make(chan struct{}),
		conns:      make(map[*framed.Conn]struct{}),
		ser:        ser,
		handlers:   handlers,
		logger:     logger,
		opts:       opts,
		clock:      clock,
	}
	s.sessions = session.NewRegistry(ser, logger, session.Options{
		Sink:    opts.Sink,
		Metrics: opts.Metrics,
	})

	return s
}

// Start seals the packet registry and the handler table
// and starts accepting connections.
func (s *Server) Start() {
	s.ser.Registry().Seal()
	s.handlers.Seal()

	ctx, cancel := context.WithCancel(context.Background())
	s.closeListener = cancel

	go func() {
		defer close(s.acceptDone)
		for {
			con, err := s.l.Accept(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, transport.ErrConnListenerClosed) {
					s.logger.Error(
						"unexpected error when accepting connection",
						"error", err.Error(),
					)
				}
				return
			}

			c, ok := s.track(con)
			if !ok {
				return
			}
			s.opts.Metrics.ConnectionAccepted()

			s.group.Go(func() error {
				defer s.untrack(c.fc)
				c.serve()
				return nil
			})
		}
	}()
}

func (s *Server) track(con transport.Conn) (*conn, bool) {
	fc := framed.New(con, s.logger)

	s.connsMu.Lock()
	defer s.connsMu.Unlock()

	if s.closed {
		fc.Close()
		fc.Wait()
		return nil, false
	}
	s.conns[fc] = struct{}{}

	return newConn(s, fc), true
}

func (s *Server) untrack(fc *framed.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, fc)
}

// Close stops accepting, closes every connection and waits for their
// workers to return. Packets already queued are flushed first, but peers
// get no notice beyond the transport closing.
func (s *Server) Close() error {
	s.connsMu.Lock()
	if s.closed {
		s.connsMu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]*framed.Conn, 0, len(s.conns))
	for fc := range s.conns {
		conns = append(conns, fc)
	}
	s.connsMu.Unlock()

	if s.closeListener != nil {
		s.closeListener()
	}
	err := s.l.Close()
	if s.closeListener != nil {
		<-s.acceptDone
	}

	for _, fc := range conns {
		fc.Close()
	}
	s.group.Wait()

	if err != nil && !errors.Is(err, transport.ErrConnListenerClosed) {
		return errors.Wrap(err, "closing listener")
	}
	return nil
}

func (s *Server) Addr() transport.Addr { return s.l.Addr() }

// Broadcast queues p on every authenticated session.
func (s *Server) Broadcast(p packet.Packet) error { return s.sessions.Broadcast(p) }

func (s *Server) ByID(id int64) (*session.Session, bool) { return s.sessions.ByID(id) }

func (s *Server) ByConn(fc *framed.Conn) (*session.Session, bool) { return s.sessions.ByConn(fc) }

// Sessions returns the authenticated sessions ordered by id.
func (s *Server) Sessions() []*session.Session { return s.sessions.Snapshot() }

func (s *Server) OnConnect(fn session.Listener) { s.sessions.OnConnect(fn) }

func (s *Server) OnDisconnect(fn session.Listener) { s.sessions.OnDisconnect(fn) }

func (s *Server) Handlers() *Handlers { return s.handlers }
