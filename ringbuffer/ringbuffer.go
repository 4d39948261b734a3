// Package ringbuffer provides a fixed-capacity circular store of samples.
//
// Pushing past capacity silently evicts the oldest element. Index 0 always
// refers to the oldest retained element.
package ringbuffer

import (
	"errors"

	"golang.org/x/exp/constraints"
)

var (
	// ErrOutOfMemory is returned when the storage for a buffer cannot be
	// allocated (e.g. a non-positive capacity).
	ErrOutOfMemory = errors.New("ringbuffer: cannot allocate storage")
	// ErrIndexOutOfRange is returned when accessing an index outside of
	// [0, Len()).
	ErrIndexOutOfRange = errors.New("ringbuffer: index out of range")
)

// RingBuffer is a fixed-capacity FIFO buffer of floating-point samples. It is
// not safe for concurrent use.
type RingBuffer[T constraints.Float] struct {
	values      []T
	writeOffset int
	count       int
}

// New returns a RingBuffer holding at most capacity elements.
func New[T constraints.Float](capacity int) (*RingBuffer[T], error) {
	if capacity <= 0 {
		return nil, ErrOutOfMemory
	}
	return &RingBuffer[T]{
		values: make([]T, capacity),
	}, nil
}

// Push adds v to the buffer, evicting the oldest element once full.
func (r *RingBuffer[T]) Push(v T) {
	r.values[r.writeOffset] = v
	r.writeOffset = (r.writeOffset + 1) % len(r.values)
	if r.count < len(r.values) {
		r.count++
	}
}

// Get returns the i-th oldest retained element.
func (r *RingBuffer[T]) Get(i int) (T, error) {
	if i < 0 || i >= r.count {
		return 0, ErrIndexOutOfRange
	}
	offs := r.writeOffset - r.count + i
	if offs < 0 {
		offs += len(r.values)
	}
	return r.values[offs], nil
}

// Latest returns the most recently pushed element.
func (r *RingBuffer[T]) Latest() (T, bool) {
	if r.count == 0 {
		return 0, false
	}
	offs := r.writeOffset - 1
	if offs < 0 {
		offs += len(r.values)
	}
	return r.values[offs], true
}

// Values returns a copy of the retained elements, oldest first.
func (r *RingBuffer[T]) Values() []T {
	out := make([]T, r.count)
	for i := range out {
		out[i], _ = r.Get(i)
	}
	return out
}

// Len returns the number of retained elements.
func (r *RingBuffer[T]) Len() int { return r.count }

// Cap returns the capacity fixed at construction.
func (r *RingBuffer[T]) Cap() int { return len(r.values) }

// IsEmpty reports whether the buffer holds no elements.
func (r *RingBuffer[T]) IsEmpty() bool { return r.count == 0 }

// IsFull reports whether the buffer holds Cap() elements.
func (r *RingBuffer[T]) IsFull() bool { return r.count >= len(r.values) }

// Clear empties the buffer without releasing its storage.
func (r *RingBuffer[T]) Clear() {
	r.writeOffset = 0
	r.count = 0
}
