package pipe

import (
	"context"
	"fmt"
	"neptunium/transport"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

type pipeRequest struct {
	conn     *pipe
	accepted chan struct{}
}

// PipeTransport is an in-memory network where listeners are addressed by name.
type PipeTransport struct {
	listeners map[string]*pipeListener
	clock     clock.Clock

	dialed atomic.Uint64

	mu sync.Mutex
}

func NewPipeTransport(clock clock.Clock) *PipeTransport {
	return &PipeTransport{
		listeners: make(map[string]*pipeListener),
		clock:     clock,
	}
}

var _ transport.ConnDialer = (*PipeTransport)(nil)

func (pt *PipeTransport) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	pt.mu.Lock()
	listener, ok := pt.listeners[addr.String()]
	pt.mu.Unlock()

	if !ok {
		return nil, errors.Wrapf(transport.ErrNetUnreachable, "no listener on %s", addr)
	}

	local := fmt.Sprintf("dialer-%d", pt.dialed.Add(1))
	p1, p2 := newPair(local, addr.String(), pt.clock)

	req := pipeRequest{
		conn:     p2,
		accepted: make(chan struct{}, 1),
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-listener.closed:
		return nil, transport.ErrConnRefused
	case listener.requests <- req:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case _, accepted := <-req.accepted:
		if !accepted {
			return nil, transport.ErrConnRefused
		}
	}

	return p1, nil
}

func (pt *PipeTransport) Listen(addr Addr) (transport.ConnListener, error) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	if _, ok := pt.listeners[addr.Name]; ok {
		return nil, errors.Wrapf(transport.ErrAddrAlreadyInUse, "listening on %s", addr)
	}

	pl := &pipeListener{
		addr:      addr,
		transport: pt,
		requests:  make(chan pipeRequest),
		closed:    make(chan struct{}),
	}
	pt.listeners[addr.Name] = pl

	return pl, nil
}

type pipeListener struct {
	addr Addr

	transport *PipeTransport

	requests chan pipeRequest
	closed   chan struct{}

	mu sync.Mutex
}

var _ transport.ConnListener = (*pipeListener)(nil)

func (pl *pipeListener) Addr() transport.Addr { return pl.addr }

func (pl *pipeListener) Accept(ctx context.Context) (transport.Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-pl.closed:
		return nil, transport.ErrConnListenerClosed
	case request := <-pl.requests:
		select {
		case <-ctx.Done():
			close(request.accepted)
			return nil, ctx.Err()
		case request.accepted <- struct{}{}:
		}

		return request.conn, nil
	}
}

func (pl *pipeListener) Close() error {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	select {
	case <-pl.closed:
		return transport.ErrConnListenerClosed
	default:
	}

	close(pl.closed)

	pl.transport.mu.Lock()
	delete(pl.transport.listeners, pl.addr.Name)
	pl.transport.mu.Unlock()

	return nil
}
