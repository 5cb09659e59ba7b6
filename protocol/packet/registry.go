// Package packet maps packet types to the identities they travel with.
//
// Identities are assigned sequentially from zero in registration order.
// Peers only understand each other when they register the same types
// in the same order; [Registry.Fingerprint] helps to check that out of band.
package packet

import (
	"crypto/sha256"
	"encoding/hex"
	"neptunium/protocol"
	"reflect"
	"sync/atomic"

	"github.com/pkg/errors"
)

type entry struct {
	typ   reflect.Type
	newFn func() Packet
}

type Registry struct {
	entries []entry
	ids     map[reflect.Type]int32

	sealed atomic.Bool
}

// NewRegistry returns a registry holding the built-in packets:
// [AuthFinish] at [AuthFinishID] and [AuthRequest] at [AuthRequestID].
func NewRegistry() *Registry {
	r := &Registry{ids: make(map[reflect.Type]int32)}

	MustRegister[AuthFinish](r)
	MustRegister[AuthRequest](r)

	return r
}

// Register adds the packet type produced by newFn and returns its identity.
// newFn must return a non-nil pointer to a fresh value on each call.
func (r *Registry) Register(newFn func() Packet) (int32, error) {
	if r.sealed.Load() {
		return 0, errors.Wrap(protocol.ErrConfiguration, "registry is sealed")
	}

	sample := newFn()
	if sample == nil {
		return 0, errors.Wrap(protocol.ErrConfiguration, "constructor returned nil packet")
	}

	typ := reflect.TypeOf(sample)
	if typ.Kind() != reflect.Pointer {
		return 0, errors.Wrapf(protocol.ErrConfiguration, "packet type %s must be a pointer", typ)
	}
	if id, ok := r.ids[typ]; ok {
		return 0, errors.Wrapf(protocol.ErrConfiguration, "packet type %s already registered as %d", typ, id)
	}

	id := int32(len(r.entries))
	r.entries = append(r.entries, entry{typ: typ, newFn: newFn})
	r.ids[typ] = id

	return id, nil
}

// Register adds *T to r.
func Register[T any, P interface {
	*T
	Packet
}](r *Registry) (int32, error) {
	return r.Register(func() Packet { return P(new(T)) })
}

// MustRegister is like [Register] but panics on failure.
// It is meant for setup code.
func MustRegister[T any, P interface {
	*T
	Packet
}](r *Registry) int32 {
	id, err := Register[T, P](r)
	if err != nil {
		panic(err)
	}
	return id
}

// Seal forbids further registrations.
func (r *Registry) Seal() { r.sealed.Store(true) }

func (r *Registry) IdentityOfType(t reflect.Type) (int32, bool) {
	id, ok := r.ids[t]
	return id, ok
}

func (r *Registry) IdentityOf(p Packet) (int32, bool) {
	return r.IdentityOfType(reflect.TypeOf(p))
}

func (r *Registry) TypeOf(id int32) (reflect.Type, bool) {
	if id < 0 || int(id) >= len(r.entries) {
		return nil, false
	}
	return r.entries[id].typ, true
}

// New returns a zero packet of the type registered under id.
func (r *Registry) New(id int32) (Packet, bool) {
	if id < 0 || int(id) >= len(r.entries) {
		return nil, false
	}
	return r.entries[id].newFn(), true
}

func (r *Registry) Len() int { return len(r.entries) }

// Fingerprint digests the ordered list of registered type names.
// Two registries with equal fingerprints assign identical identities.
func (r *Registry) Fingerprint() string {
	h := sha256.New()
	for _, e := range r.entries {
		elem := e.typ.Elem()
		h.Write([]byte(elem.PkgPath()))
		h.Write([]byte{'.'})
		h.Write([]byte(elem.Name()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
