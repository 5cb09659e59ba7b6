// Package session tracks the authenticated connections of a server.
package session

import (
	"neptunium/protocol/packet"
	"neptunium/transport/framed"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Marshaler encodes a packet into a frame payload.
type Marshaler interface {
	Marshal(p packet.Packet) ([]byte, error)
}

// Session is one authenticated connection.
// Applications attach their own state with [Session.SetValue].
type Session struct {
	id   int64
	conn *framed.Conn
	m    Marshaler

	authenticated atomic.Bool

	hooksMu sync.Mutex
	hooks   []func(*Session)

	values sync.Map

	sent func(p packet.Packet)
}

func (s *Session) ID() int64             { return s.id }
func (s *Session) Conn() *framed.Conn    { return s.conn }
func (s *Session) Authenticated() bool   { return s.authenticated.Load() }
func (s *Session) Done() <-chan struct{} { return s.conn.Done() }

// Send queues p for the peer. Only an unregistered or oversized packet
// fails synchronously. Delivery is not confirmed.
func (s *Session) Send(p packet.Packet) error {
	payload, err := s.m.Marshal(p)
	if err != nil {
		return err
	}
	return s.send(p, payload)
}

func (s *Session) send(p packet.Packet, payload []byte) error {
	if err := s.conn.Send(payload); err != nil {
		return errors.Wrapf(err, "sending %s to session %d", packet.Name(p), s.id)
	}
	if s.sent != nil {
		s.sent(p)
	}
	return nil
}

// Close closes the connection. The disconnect notifications follow
// once the connection worker observed the closure.
func (s *Session) Close() { s.conn.Close() }

// OnDisconnect registers fn to run after the registry listeners when
// the session goes away.
func (s *Session) OnDisconnect(fn func(*Session)) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Session) SetValue(key, value any) { s.values.Store(key, value) }

func (s *Session) Value(key any) (any, bool) { return s.values.Load(key) }

func (s *Session) disconnectHooks() []func(*Session) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	return append([]func(*Session){}, s.hooks...)
}
