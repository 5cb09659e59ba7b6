// Package protocol holds the pieces shared by every layer of the packet
// protocol: the error taxonomy and the wire constants.
//
// Only [ErrAuthFailure] and [ErrTransportFailure] end a connection.
// Everything else is reported and the connection keeps going.
package protocol

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration is returned for registry and handler setup mistakes.
	// Those are detected at registration time, never while serving.
	ErrConfiguration = errors.New("configuration error")

	// ErrProtocolViolation is returned when sending a packet type that is
	// not registered.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrUnknownPacket is returned when a received identity is not registered.
	// The frame is discarded and the connection stays open.
	ErrUnknownPacket = errors.New("unknown packet identity")

	// ErrMalformedPacket is returned when the field stream of a frame
	// cannot be decoded.
	ErrMalformedPacket = errors.New("malformed packet")

	ErrAuthFailure      = errors.New("authentication failed")
	ErrHandlerFailure   = errors.New("handler failed")
	ErrTransportFailure = errors.New("transport failure")
)

// Wrap classifies err as one of the kinds above. Both kind and err stay
// reachable through errors.Is and errors.As.
func Wrap(kind, err error) error {
	return fmt.Errorf("%w: %w", kind, err)
}

const (
	// MaxPayloadSize is the largest payload a frame can carry.
	MaxPayloadSize = 1<<16 - 1

	// IdentitySize is the size of the packet identity prefix of a payload.
	IdentitySize = 4
)
