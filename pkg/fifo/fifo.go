// Package fifo implements a fixed capacity circular queue.
package fifo

// Fifo is a bounded first-in first-out queue. Push never overwrites: it
// fails once Len reaches Cap. The zero value has capacity 0 and rejects
// every push.
type Fifo[T any] struct {
	buffer []T
	length int
	in     int
	out    int
}

func New[T any](capacity int) *Fifo[T] {
	if capacity < 0 {
		capacity = 0
	}

	return &Fifo[T]{
		buffer: make([]T, capacity),
	}
}

func (f *Fifo[T]) Cap() int {
	return len(f.buffer)
}

func (f *Fifo[T]) Len() int {
	return f.length
}

func (f *Fifo[T]) Full() bool {
	return f.length >= len(f.buffer)
}

func (f *Fifo[T]) Empty() bool {
	return f.length == 0
}

// Push appends v and reports whether there was room for it.
func (f *Fifo[T]) Push(v T) bool {
	if f.Full() {
		return false
	}

	f.buffer[f.in] = v
	f.length++
	f.in = (f.in + 1) % len(f.buffer)

	return true
}

// Pop removes the oldest value. ok is false when the queue is empty.
func (f *Fifo[T]) Pop() (v T, ok bool) {
	if f.length == 0 {
		return v, false
	}

	var zero T

	v = f.buffer[f.out]
	f.buffer[f.out] = zero
	f.length--
	f.out = (f.out + 1) % len(f.buffer)

	return v, true
}

// Peek returns the oldest value without removing it.
func (f *Fifo[T]) Peek() (v T, ok bool) {
	if f.length == 0 {
		return v, false
	}

	return f.buffer[f.out], true
}

// Each calls fn for every queued value, oldest first.
func (f *Fifo[T]) Each(fn func(T)) {
	for i := 0; i < f.length; i++ {
		fn(f.buffer[(f.out+i)%len(f.buffer)])
	}
}

func (f *Fifo[T]) Reset() {
	var zero T

	for i := range f.buffer {
		f.buffer[i] = zero
	}

	f.in = 0
	f.out = 0
	f.length = 0
}
