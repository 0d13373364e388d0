// Package dropvec implements a fixed-capacity ring buffer that drops the
// oldest element once full.
package dropvec

// DropVec holds the last N pushed items, iterable oldest to newest.
// The zero value is not usable; construct with New.
type DropVec[T any] struct {
	buffer []slot[T]
	cursor int
}

type slot[T any] struct {
	init bool
	item T
}

// New allocates a DropVec with room for capacity items. Capacity 0 is legal:
// Push becomes a no-op and Iter yields nothing.
func New[T any](capacity int) *DropVec[T] {
	return &DropVec[T]{buffer: make([]slot[T], capacity)}
}

// Push writes item into the slot at the write cursor and advances the
// cursor, wrapping to 0 at capacity. A no-op when capacity is 0.
func (d *DropVec[T]) Push(item T) {
	if len(d.buffer) == 0 {
		return
	}
	d.buffer[d.cursor] = slot[T]{init: true, item: item}
	d.cursor++
	if d.cursor == len(d.buffer) {
		d.cursor = 0
	}
}

// Len reports how many initialized slots are currently held, capped at
// capacity.
func (d *DropVec[T]) Len() int {
	n := 0
	for _, s := range d.buffer {
		if s.init {
			n++
		}
	}
	return n
}

// Iter returns a snapshot slice of the held items in oldest-to-newest order,
// skipping uninitialized slots. Safe to call concurrently with readers of a
// separately-synchronized DropVec, but the caller is responsible for
// excluding concurrent Push calls during the copy (see package chat, which
// guards this with the hub's history lock).
func (d *DropVec[T]) Iter() []T {
	n := len(d.buffer)
	if n == 0 {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		idx := (d.cursor + i) % n
		s := d.buffer[idx]
		if s.init {
			out = append(out, s.item)
		}
	}
	return out
}
