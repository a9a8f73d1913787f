// Package ring provides a fixed-capacity FIFO used for bounded histories.
package ring

import "errors"

var ErrEmpty = errors.New("queue is empty")

// Queue is a ring buffer. Push overwrites the oldest element once the
// queue is full. Not safe for concurrent use.
type Queue[T any] struct {
	data       []T
	size       int
	readIndex  int
	writeIndex int
	count      int
}

// New creates a queue holding at most size elements. size < 1 is treated as 1.
func New[T any](size int) *Queue[T] {
	if size < 1 {
		size = 1
	}
	return &Queue[T]{
		data: make([]T, size),
		size: size,
	}
}

// Push appends value and reports whether an old element was evicted.
func (q *Queue[T]) Push(value T) bool {
	evicted := false
	if q.IsFull() {
		q.readIndex = (q.readIndex + 1) % q.size
		q.count--
		evicted = true
	}
	q.data[q.writeIndex] = value
	q.writeIndex = (q.writeIndex + 1) % q.size
	q.count++
	return evicted
}

// Pop removes and returns the oldest element.
func (q *Queue[T]) Pop() (T, error) {
	var zero T
	if q.IsEmpty() {
		return zero, ErrEmpty
	}
	value := q.data[q.readIndex]
	q.data[q.readIndex] = zero
	q.readIndex = (q.readIndex + 1) % q.size
	q.count--
	return value, nil
}

// Peek returns the oldest element without removing it.
func (q *Queue[T]) Peek() (T, error) {
	if q.IsEmpty() {
		var zero T
		return zero, ErrEmpty
	}
	return q.data[q.readIndex], nil
}

// Last returns the newest element.
func (q *Queue[T]) Last() (T, bool) {
	if q.IsEmpty() {
		var zero T
		return zero, false
	}
	return q.data[(q.writeIndex-1+q.size)%q.size], true
}

// Slice returns the elements oldest first.
func (q *Queue[T]) Slice() []T {
	out := make([]T, 0, q.count)
	for i := 0; i < q.count; i++ {
		out = append(out, q.data[(q.readIndex+i)%q.size])
	}
	return out
}

func (q *Queue[T]) Len() int      { return q.count }
func (q *Queue[T]) Cap() int      { return q.size }
func (q *Queue[T]) IsEmpty() bool { return q.count == 0 }
func (q *Queue[T]) IsFull() bool  { return q.count == q.size }
