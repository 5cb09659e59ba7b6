// Package queue provides FIFO queues. [Ring] is the single-goroutine
// storage, [Blocking] wraps any [Queue] for producers and a consumer
// running on different goroutines.
package queue

import "github.com/pkg/errors"

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Queue is a FIFO queue. Implementations are not safe for concurrent use.
type Queue[T any] interface {
	Enqueue(v T)
	// Dequeue returns [ErrQueueEmpty] on an empty queue.
	Dequeue() (T, error)
	// Peek returns [ErrQueueEmpty] on an empty queue.
	Peek() (T, error)
	Len() uint
}
