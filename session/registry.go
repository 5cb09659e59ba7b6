package session

import (
	"cmp"
	"log/slog"
	"neptunium/lib/diag"
	"neptunium/lib/metrics"
	"neptunium/protocol"
	"neptunium/protocol/packet"
	"neptunium/transport/framed"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Listener func(*Session)

type Options struct {
	Sink    diag.Sink
	Metrics *metrics.Metrics
}

// Registry is the set of live sessions of one server.
//
// A single mutex guards the set. Connect and disconnect notifications are
// serialized by a second lock so that listeners observe them in order and
// never concurrently.
type Registry struct {
	m      Marshaler
	logger *slog.Logger
	opts   Options

	mu     sync.Mutex
	byID   map[int64]*Session
	byConn map[uuid.UUID]*Session
	nextID int64

	notifyMu     sync.Mutex
	onConnect    []Listener
	onDisconnect []Listener
}

func NewRegistry(m Marshaler, logger *slog.Logger, opts Options) *Registry {
	if opts.Sink == nil {
		opts.Sink = diag.Discard
	}

	return &Registry{
		m:      m,
		logger: logger,
		opts:   opts,
		byID:   make(map[int64]*Session),
		byConn: make(map[uuid.UUID]*Session),
	}
}

// OnConnect registers fn for every session completing its handshake.
func (r *Registry) OnConnect(fn Listener) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.onConnect = append(r.onConnect, fn)
}

// OnDisconnect registers fn for every session leaving the registry.
func (r *Registry) OnDisconnect(fn Listener) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()
	r.onDisconnect = append(r.onDisconnect, fn)
}

// Create assigns the next id to conn and adds the new authenticated
// session to the set. Ids are never reused.
func (r *Registry) Create(conn *framed.Conn) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		id:   r.nextID,
		conn: conn,
		m:    r.m,
	}
	if r.opts.Metrics != nil {
		s.sent = func(p packet.Packet) { r.opts.Metrics.PacketSent(packet.Name(p)) }
	}
	s.authenticated.Store(true)

	r.nextID++
	r.byID[s.id] = s
	r.byConn[conn.ID()] = s

	r.opts.Metrics.SessionOpened()

	return s
}

// Connected runs the connect listeners for s.
func (r *Registry) Connected(s *Session) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	for _, fn := range r.onConnect {
		r.notify(fn, s, "connect listener")
	}
}

// Remove takes s out of the set and closes its connection.
// The disconnect listeners run first, then the hooks of s itself.
// Removing a session twice is a no-op and reports false.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	if cur, ok := r.byID[s.id]; !ok || cur != s {
		r.mu.Unlock()
		return false
	}
	delete(r.byID, s.id)
	delete(r.byConn, s.conn.ID())
	r.mu.Unlock()

	s.authenticated.Store(false)
	s.conn.Close()
	r.opts.Metrics.SessionClosed()

	// Listeners run outside mu so they may call Broadcast or Snapshot.
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	for _, fn := range r.onDisconnect {
		r.notify(fn, s, "disconnect listener")
	}
	for _, fn := range s.disconnectHooks() {
		r.notify(fn, s, "session disconnect hook")
	}

	return true
}

func (r *Registry) ByID(id int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) ByConn(conn *framed.Conn) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byConn[conn.ID()]
	return s, ok
}

// Snapshot returns the live sessions ordered by id.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b *Session) int { return cmp.Compare(a.id, b.id) })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Broadcast encodes p once and queues it on every live session.
// Sessions closing concurrently are skipped.
func (r *Registry) Broadcast(p packet.Packet) error {
	payload, err := r.m.Marshal(p)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.byID {
		if err := s.send(p, payload); err != nil {
			r.logger.Debug("skipping session in broadcast", "session", s.id, "error", err)
		}
	}
	return nil
}

func (r *Registry) notify(fn Listener, s *Session, context string) {
	defer func() {
		if e := recover(); e != nil {
			r.opts.Sink.Report(errors.Wrapf(protocol.ErrHandlerFailure, "panicked: %v", e), context)
		}
	}()
	fn(s)
}
