// Package transport abstracts the byte streams packets travel on.
//
// Implementations live in subpackages: tcp for OS sockets, ws for
// WebSocket connections and pipe for in-memory streams.
package transport

// Addr identifies an endpoint. It is satisfied by [net.Addr].
type Addr interface {
	Network() string
	String() string
}
