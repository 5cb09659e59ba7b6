// Package diag carries non-fatal failures to whoever wants to hear about them.
//
// Reporting never changes control flow. A failing handler, an unknown packet
// or a broken frame is reported and the connection keeps going.
package diag

import (
	"log/slog"
	"sync"
)

type Sink interface {
	Report(err error, context string)
}

type SinkFunc func(err error, context string)

func (f SinkFunc) Report(err error, context string) { f(err, context) }

// Discard drops every report.
var Discard Sink = SinkFunc(func(error, string) {})

// Logger reports through a structured logger at error level.
type Logger struct {
	L *slog.Logger
}

func (l Logger) Report(err error, context string) {
	l.L.Error("reported failure", "context", context, "error", err)
}

// Hub fans reports out to its subscribers.
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]Sink
	next uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]Sink)}
}

// Subscribe registers s and returns a function removing it again.
func (h *Hub) Subscribe(s Sink) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	h.subs[id] = s

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *Hub) Report(err error, context string) {
	h.mu.RLock()
	subs := make([]Sink, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		s.Report(err, context)
	}
}
