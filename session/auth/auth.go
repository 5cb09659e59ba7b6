// Package auth holds the first-message handshake of a connection.
//
// A client opens with [packet.AuthRequest]. The server answers with
// [packet.AuthFinish] carrying the session id, or closes the transport.
// Until then neither side lets application packets through.
package auth

import (
	"crypto/subtle"
	"neptunium/protocol"
	"neptunium/protocol/packet"
	"sync"

	"github.com/pkg/errors"
)

type State uint8

const (
	StateConnected State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Verdict tells the connection worker what to do with a received packet.
type Verdict uint8

const (
	// VerdictAccept completes the handshake.
	VerdictAccept Verdict = iota
	// VerdictReject ends the connection.
	VerdictReject
	// VerdictDispatch hands the packet to the application.
	VerdictDispatch
	// VerdictDrop discards the packet.
	VerdictDrop
)

// ServerGate guards the server side of a connection.
// An empty credential admits every client.
type ServerGate struct {
	credential []byte

	mu    sync.Mutex
	state State
}

func NewServerGate(credential string) *ServerGate {
	return &ServerGate{credential: []byte(credential)}
}

// Admit classifies p. The first packet must be an [packet.AuthRequest]
// with a matching password, anything else rejects the connection.
func (g *ServerGate) Admit(p packet.Packet) (Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateAuthenticated:
		return VerdictDispatch, nil
	case StateClosed:
		return VerdictReject, errors.Wrap(protocol.ErrAuthFailure, "connection is closed")
	}

	req, ok := p.(*packet.AuthRequest)
	if !ok {
		g.state = StateClosed
		return VerdictReject, errors.Wrapf(protocol.ErrAuthFailure, "expected auth request, got %T", p)
	}

	if !g.match(req.Password) {
		g.state = StateClosed
		return VerdictReject, errors.Wrap(protocol.ErrAuthFailure, "credential mismatch")
	}

	g.state = StateAuthenticated
	return VerdictAccept, nil
}

// Close moves the gate to its terminal state.
func (g *ServerGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
}

func (g *ServerGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *ServerGate) match(password string) bool {
	if len(g.credential) == 0 {
		return true
	}
	return subtle.ConstantTimeCompare(g.credential, []byte(password)) == 1
}

// ClientGate guards the client side of a connection.
type ClientGate struct {
	mu    sync.Mutex
	state State
	id    int64
}

func NewClientGate() *ClientGate {
	return &ClientGate{}
}

// Observe classifies p. The first [packet.AuthFinish] authenticates the
// connection and its id is returned along with [VerdictAccept].
// Application packets arriving before that are dropped.
func (g *ClientGate) Observe(p packet.Packet) (Verdict, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	finish, isFinish := p.(*packet.AuthFinish)

	switch g.state {
	case StateConnected:
		if !isFinish {
			return VerdictDrop, 0
		}
		g.id = finish.ClientID
		g.state = StateAuthenticated
		return VerdictAccept, g.id
	case StateAuthenticated:
		if isFinish {
			return VerdictDrop, g.id
		}
		return VerdictDispatch, g.id
	}

	return VerdictDrop, g.id
}

func (g *ClientGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
}

func (g *ClientGate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// ID returns the id assigned by the server, valid once authenticated.
func (g *ClientGate) ID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id
}
