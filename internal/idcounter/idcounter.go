// Package idcounter allocates non-zero 16-bit session identifiers.
package idcounter

import "sync/atomic"

// Counter is a monotonic, process-wide, non-zero id allocator. The zero
// value is ready to use and starts at 1.
type Counter struct {
	next atomic.Uint32
}

// Next returns the next id, skipping zero on wraparound. Safe for
// concurrent use.
func (c *Counter) Next() uint16 {
	v := uint16(c.next.Add(1))
	if v == 0 {
		v = uint16(c.next.Add(1))
	}
	return v
}
