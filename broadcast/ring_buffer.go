package broadcast

// ringBuffer holds at most capacity values, oldest first. Pushing into a
// full buffer overwrites the oldest value.
// - buffer: fixed backing array of capacity slots.
// - head:   index of the oldest value.
// - size:   number of values currently held.
type ringBuffer[T any] struct {
	buffer []T
	head   int
	size   int
}

// A capacity of zero yields a buffer that never holds anything.
func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	return &ringBuffer[T]{buffer: make([]T, capacity)}
}

// Push appends val and reports whether an older value was overwritten
// (or, for a zero-capacity buffer, whether val itself was lost).
func (rb *ringBuffer[T]) Push(val T) (overwritten bool) {
	capacity := len(rb.buffer)
	if capacity == 0 {
		return true
	}
	if rb.size == capacity {
		rb.buffer[rb.head] = val
		rb.head = (rb.head + 1) % capacity
		return true
	}
	rb.buffer[(rb.head+rb.size)%capacity] = val
	rb.size++
	return false
}

// Pop removes and returns the oldest value.
func (rb *ringBuffer[T]) Pop() (T, bool) {
	var zero T
	if rb.size == 0 {
		return zero, false
	}
	val := rb.buffer[rb.head]
	rb.buffer[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.buffer)
	rb.size--
	return val, true
}

// Snapshot copies the held values, oldest first.
func (rb *ringBuffer[T]) Snapshot() []T {
	out := make([]T, 0, rb.size)
	for i := range rb.size {
		out = append(out, rb.buffer[(rb.head+i)%len(rb.buffer)])
	}
	return out
}

func (rb *ringBuffer[T]) Len() int {
	return rb.size
}

// Clear drops everything held.
func (rb *ringBuffer[T]) Clear() {
	clear(rb.buffer)
	rb.head = 0
	rb.size = 0
}
