// Package session owns the per-session buffers of the vocal pipeline: the
// instrumental playback cursor, the rolling visualisation histories, the
// growing recording buffer and the playback clock.
//
// Everything in this package is owned by the real-time audio thread. Other
// goroutines see session data only through copies published by the engine.
package session

// HistorySize is the capacity of each visualisation history ring.
const HistorySize = 200

// Ring is a fixed-capacity FIFO ring buffer. Once full, every Push evicts the
// oldest element. The backing array is allocated once in [NewRing].
type Ring[T any] struct {
	buf   []T
	start int // index of the oldest element
	n     int
}

// NewRing returns an empty ring holding at most capacity elements. A
// non-positive capacity yields a ring that discards everything.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(0, capacity))}
}

// Push appends v, evicting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	c := len(r.buf)
	if c == 0 {
		return
	}
	if r.n < c {
		r.buf[(r.start+r.n)%c] = v
		r.n++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % c
}

// Len returns the number of stored elements.
func (r *Ring[T]) Len() int { return r.n }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// At returns the i-th element counted from the oldest. It panics if i is out
// of range, like a slice index.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.n {
		panic("session: ring index out of range")
	}
	return r.buf[(r.start+i)%len(r.buf)]
}

// Snapshot copies the contents oldest→newest into dst, growing it only when
// its capacity is too small, and returns the filled slice.
func (r *Ring[T]) Snapshot(dst []T) []T {
	if cap(dst) < r.n {
		dst = make([]T, r.n)
	}
	dst = dst[:r.n]
	c := len(r.buf)
	for i := range r.n {
		dst[i] = r.buf[(r.start+i)%c]
	}
	return dst
}

// Reset empties the ring without releasing its storage.
func (r *Ring[T]) Reset() {
	clear(r.buf)
	r.start = 0
	r.n = 0
}
