package queue

// ringQueue implements Queue with a growable ring buffer.
//
// Items are stored in buf[head], buf[head+1], ... modulo len(buf); len(buf)
// is always a power of two so the index wraps with a mask.
type ringQueue[T any] struct {
	buf   []T
	head  int
	count int
}

var _ Queue[byte] = (*ringQueue[byte])(nil)

// NewRingQueue creates a ring queue with room for at least prealloc items.
func NewRingQueue[T any](prealloc int) Queue[T] {
	size := 16
	for size < prealloc {
		size <<= 1
	}

	return &ringQueue[T]{buf: make([]T, size)}
}

func (q *ringQueue[T]) mask() int {
	return len(q.buf) - 1
}

// Enqueue adds an item to the tail of the queue, doubling the buffer when full.
func (q *ringQueue[T]) Enqueue(item T) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)&q.mask()] = item
	q.count++
}

func (q *ringQueue[T]) grow() {
	nb := make([]T, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		nb[i] = q.buf[(q.head+i)&q.mask()]
	}
	q.buf = nb
	q.head = 0
}

// Dequeue removes and returns the item at the head of the queue.
func (q *ringQueue[T]) Dequeue() (T, bool) {
	var zero T
	if q.count == 0 {
		return zero, false
	}
	item := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) & q.mask()
	q.count--

	return item, true
}

// Peek returns the i-th item from the head without removing it.
func (q *ringQueue[T]) Peek(i int) (T, bool) {
	var zero T
	if i < 0 || i >= q.count {
		return zero, false
	}

	return q.buf[(q.head+i)&q.mask()], true
}

// Discard drops up to n items from the head.
func (q *ringQueue[T]) Discard(n int) int {
	if n > q.count {
		n = q.count
	}
	if n <= 0 {
		return 0
	}
	var zero T
	for i := 0; i < n; i++ {
		q.buf[(q.head+i)&q.mask()] = zero
	}
	q.head = (q.head + n) & q.mask()
	q.count -= n

	return n
}

// Reset resets the queue to an empty state, keeping the allocated buffer.
func (q *ringQueue[T]) Reset() {
	q.Discard(q.count)
	q.head = 0
}

// IsEmpty returns true if the queue is empty, false otherwise.
func (q *ringQueue[T]) IsEmpty() bool {
	return q.count == 0
}

// Length returns the number of items in the queue.
func (q *ringQueue[T]) Length() int {
	return q.count
}
