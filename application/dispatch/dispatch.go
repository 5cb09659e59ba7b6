// Package dispatch routes decoded packets to the handler registered for
// their type.
package dispatch

import (
	"neptunium/lib/diag"
	"neptunium/protocol"
	"neptunium/protocol/packet"
	"reflect"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Executor runs a handler for a packet arriving from origin.
type Executor[O any] func(origin O, p packet.Packet) error

// Table maps packet types to exactly one executor each.
// It is filled before serving and read-only afterwards.
type Table[O any] struct {
	handlers map[reflect.Type]Executor[O]
	sink     diag.Sink
	sealed   atomic.Bool
}

func NewTable[O any](sink diag.Sink) *Table[O] {
	if sink == nil {
		sink = diag.Discard
	}
	return &Table[O]{
		handlers: make(map[reflect.Type]Executor[O]),
		sink:     sink,
	}
}

// Register binds exec to the packet type t. A second registration
// for the same type fails and keeps the first one.
func (t *Table[O]) Register(typ reflect.Type, exec Executor[O]) error {
	if t.sealed.Load() {
		return errors.Wrap(protocol.ErrConfiguration, "handler table is sealed")
	}
	if exec == nil {
		return errors.Wrapf(protocol.ErrConfiguration, "nil handler for %s", typ)
	}
	if _, ok := t.handlers[typ]; ok {
		return errors.Wrapf(protocol.ErrConfiguration, "handler for %s already registered", typ)
	}

	t.handlers[typ] = exec
	return nil
}

// Handle registers fn for packets of type P, passing the origin along.
// Method values work as well, e.g. Handle(t, srv.onChat).
func Handle[O any, P packet.Packet](t *Table[O], fn func(origin O, p P) error) error {
	return t.Register(typeOf[P](), func(origin O, p packet.Packet) error {
		return fn(origin, p.(P))
	})
}

// HandlePacket registers fn for packets of type P, ignoring the origin.
func HandlePacket[O any, P packet.Packet](t *Table[O], fn func(p P) error) error {
	return t.Register(typeOf[P](), func(_ O, p packet.Packet) error {
		return fn(p.(P))
	})
}

func (t *Table[O]) Seal() { t.sealed.Store(true) }

func (t *Table[O]) Has(typ reflect.Type) bool {
	_, ok := t.handlers[typ]
	return ok
}

// Dispatch runs the handler for p synchronously and reports whether one
// was registered. Handler errors and panics are reported to the sink
// before being returned, so callers only need err for bookkeeping.
func (t *Table[O]) Dispatch(origin O, p packet.Packet) (handled bool, err error) {
	exec, ok := t.handlers[reflect.TypeOf(p)]
	if !ok {
		return false, nil
	}

	if err = t.run(exec, origin, p); err != nil {
		t.sink.Report(err, "handling "+packet.Name(p))
	}
	return true, err
}

func (t *Table[O]) run(exec Executor[O], origin O, p packet.Packet) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = errors.Wrapf(protocol.ErrHandlerFailure, "handler panicked: %v", e)
		}
	}()

	if err := exec(origin, p); err != nil {
		return protocol.Wrap(protocol.ErrHandlerFailure, err)
	}
	return nil
}

func typeOf[P any]() reflect.Type {
	return reflect.TypeOf((*P)(nil)).Elem()
}
