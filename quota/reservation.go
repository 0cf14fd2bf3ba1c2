package quota

import "fmt"

// Reservation is a granted, size-bounded memory grant. It owns its byte count
// until released; release credits the quota its allocator is bound to at
// release time, exactly once.
type Reservation struct {
	alloc    *Allocator
	granted  int
	released bool
}

// Granted returns the number of bytes this reservation holds.
func (r *Reservation) Granted() int {
	return r.granted
}

// Release returns the granted bytes to the issuing allocator. Releasing a
// reservation twice is an invariant violation and panics.
func (r *Reservation) Release() {
	if r.released {
		panic(fmt.Sprintf("reservation of %d bytes released twice", r.granted))
	}
	r.released = true
	r.alloc.releaseBytes(r.granted)
}
