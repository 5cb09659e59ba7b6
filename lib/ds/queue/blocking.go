package queue

import "sync"

// Blocking is an unbounded queue safe for concurrent use.
// Producers never block; consumers wait in [Blocking.Pop].
type Blocking[T any] struct {
	mu     sync.Mutex
	q      Queue[T]
	closed bool

	// ready holds a token while the queue is non-empty or closed.
	ready chan struct{}
}

func NewBlocking[T any](q Queue[T]) *Blocking[T] {
	return &Blocking[T]{q: q, ready: make(chan struct{}, 1)}
}

// Push enqueues v. It returns false if the queue is closed.
func (b *Blocking[T]) Push(v T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	b.q.Enqueue(v)
	b.signal()
	return true
}

// Pop waits for the next element until cancel fires or the queue is both
// closed and empty. Elements pushed before Close are still handed out.
func (b *Blocking[T]) Pop(cancel <-chan struct{}) (T, error) {
	var zero T
	for {
		b.mu.Lock()
		switch {
		case b.q.Len() > 0:
			v, err := b.q.Dequeue()
			if b.q.Len() > 0 || b.closed {
				b.signal()
			}
			b.mu.Unlock()
			return v, err
		case b.closed:
			b.mu.Unlock()
			return zero, ErrQueueClosed
		}
		b.mu.Unlock()

		select {
		case <-b.ready:
		case <-cancel:
			return zero, ErrQueueClosed
		}
	}
}

func (b *Blocking[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.signal()
}

func (b *Blocking[T]) Len() uint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Len()
}

func (b *Blocking[T]) signal() {
	select {
	case b.ready <- struct{}{}:
	default:
	}
}
