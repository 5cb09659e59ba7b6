package queue

// Ring is a circular queue that doubles its storage when full.
// Dequeued slots are reused, so a steady producer and consumer
// stop allocating once the ring fits the backlog.
type Ring[T any] struct {
	queue      []T
	head, tail uint

	count uint
}

var _ Queue[int] = (*Ring[int])(nil)

func NewRing[T any](size uint) *Ring[T] {
	if size == 0 {
		size = 1
	}
	return &Ring[T]{queue: make([]T, size)}
}

// Enqueue adds an element to the tail, growing the storage if needed.
func (q *Ring[T]) Enqueue(data T) {
	if q.Len() == q.Size() {
		q.grow()
	}

	q.queue[q.tail] = data
	q.tail = q.advance(q.tail)
	q.count++
}

// Dequeue removes and returns the front element of the queue.
// If the queue is empty. It will return [ErrQueueEmpty].
func (q *Ring[T]) Dequeue() (T, error) {
	var zero T
	if q.Len() == 0 {
		return zero, ErrQueueEmpty
	}

	data := q.queue[q.head]
	q.queue[q.head] = zero

	q.head = q.advance(q.head)
	q.count--

	return data, nil
}

// Peek returns the head element without removing it.
// If the queue is empty. It will return [ErrQueueEmpty].
func (q *Ring[T]) Peek() (T, error) {
	if q.Len() == 0 {
		var zero T
		return zero, ErrQueueEmpty
	}

	return q.queue[q.head], nil
}

// Len returns the number of elements in the queue.
func (q *Ring[T]) Len() uint {
	return q.count
}

// Size returns the current capacity of the queue.
func (q *Ring[T]) Size() uint {
	return uint(len(q.queue))
}

func (q *Ring[T]) grow() {
	grown := make([]T, 2*len(q.queue))
	for i := uint(0); i < q.count; i++ {
		grown[i] = q.queue[(q.head+i)%uint(len(q.queue))]
	}

	q.queue = grown
	q.head, q.tail = 0, q.count
}

func (q *Ring[T]) advance(n uint) uint {
	return (n + 1) % uint(len(q.queue))
}
