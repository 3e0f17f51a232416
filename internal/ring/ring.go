// Package ring provides a fixed-capacity, insertion-ordered ring buffer.
// It backs the backoff outcome history and the hedging latency tracker,
// both of which need "keep the newest N samples" semantics without
// reallocating on every append.
package ring

// Buffer is a bounded FIFO of the most recent values. Appending beyond
// capacity evicts the oldest value. The zero value is not usable; use New.
// Buffer is not safe for concurrent use; callers hold their own locks.
type Buffer[T any] struct {
	values []T
	head   int
	size   int
}

// New creates a buffer holding at most capacity values. Capacity must be
// positive; New panics otherwise since it indicates a validation bug upstream.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{values: make([]T, capacity)}
}

// Push appends v, evicting the oldest value when full.
func (b *Buffer[T]) Push(v T) {
	tail := (b.head + b.size) % len(b.values)
	b.values[tail] = v
	if b.size < len(b.values) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.values)
	}
}

// Len returns the number of stored values.
func (b *Buffer[T]) Len() int {
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.values)
}

// Snapshot returns the stored values oldest-first as a fresh slice.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.values[(b.head+i)%len(b.values)]
	}
	return out
}

// Reset discards all stored values keeping the capacity.
func (b *Buffer[T]) Reset() {
	b.head = 0
	b.size = 0
}
