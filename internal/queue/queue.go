// Package queue provides the FIFO buffers used by the line framer.
package queue

// Queue defines the interface for a FIFO of T.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(T)
	// Dequeue removes and returns the item at the head of the queue.
	// ok is false when the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the i-th item from the head without removing it.
	Peek(i int) (item T, ok bool)
	// Discard drops up to n items from the head and returns how many were dropped.
	Discard(n int) int
	// Reset to an empty queue
	Reset()
	// IsEmpty returns true if the queue is empty, false otherwise.
	IsEmpty() bool
	// Length returns the number of items in the queue.
	Length() int
}
