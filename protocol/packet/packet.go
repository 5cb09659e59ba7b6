package packet

import (
	"neptunium/protocol/field"
	"reflect"
)

// Packet is a message that can be sent over a connection.
// Implementations are pointer types declaring their fields.
type Packet interface {
	field.Schema
}

// AuthFinish is sent by the server once a connection is authenticated.
// It carries the identity assigned to the connection.
type AuthFinish struct {
	ClientID int64
}

func (p *AuthFinish) Fields() []field.Field {
	return []field.Field{field.New(0, &p.ClientID)}
}

// AuthRequest is the first packet a client sends.
type AuthRequest struct {
	Password string
}

func (p *AuthRequest) Fields() []field.Field {
	return []field.Field{field.New(0, &p.Password)}
}

// Identities of the built-in packets. Every registry starts with them.
const (
	AuthFinishID  int32 = 0
	AuthRequestID int32 = 1
)

// Name returns the bare type name of p, used in logs and metric labels.
func Name(p Packet) string {
	t := reflect.TypeOf(p)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
