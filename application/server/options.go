package server

import (
	"neptunium/lib/diag"
	"neptunium/lib/metrics"
	"time"
)

type Options struct {
	// Credential is compared against the password of every auth request.
	// Empty admits every client.
	Credential string

	// HandshakeTimeout closes connections that did not authenticate in time.
	// Zero waits forever.
	HandshakeTimeout time.Duration

	// Sink receives decode and handler failures. Defaults to logging them.
	Sink    diag.Sink
	Metrics *metrics.Metrics
}
