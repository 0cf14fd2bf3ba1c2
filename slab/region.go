// Package slab provides a scoped memory region: byte buffers are carved out of
// large slabs with a bump pointer and the whole region is released (or reused)
// en masse. There is no per-allocation free. Bookkeeping structures with a
// common lifetime allocate from a region so teardown is one call rather than
// one free per object.
package slab

import "fmt"

const defaultSlabSize = 8192

// Region is a scoped bump allocator. The zero value allocates with the default
// slab size. Region is not safe for concurrent use.
type Region struct {
	slabSize int

	current []byte
	offset  int
	full    [][]byte
	spare   [][]byte

	allocated int
}

// NewRegion creates a Region cutting allocations from slabs of slabSize bytes.
// A slabSize of zero selects the default.
func NewRegion(slabSize int) *Region {
	if slabSize < 0 {
		panic(fmt.Sprintf("slab size %d is negative", slabSize))
	}
	return &Region{slabSize: slabSize}
}

func (r *Region) effectiveSlabSize() int {
	if r.slabSize == 0 {
		return defaultSlabSize
	}
	return r.slabSize
}

// Alloc returns a zeroed buffer of n bytes cut from the region. Buffers larger
// than the slab size get a dedicated slab. The buffer remains valid until Reset.
func (r *Region) Alloc(n int) []byte {
	if n < 0 {
		panic(fmt.Sprintf("allocation size %d is negative", n))
	}

	slabSize := r.effectiveSlabSize()
	if n > slabSize {
		buf := make([]byte, n)
		r.full = append(r.full, buf)
		r.allocated += n
		return buf
	}

	if r.current == nil || r.offset+n > len(r.current) {
		if r.current != nil {
			r.full = append(r.full, r.current)
		}
		r.current = r.takeSlab(slabSize)
		r.offset = 0
	}

	buf := r.current[r.offset : r.offset+n : r.offset+n]
	r.offset += n
	r.allocated += n
	return buf
}

func (r *Region) takeSlab(slabSize int) []byte {
	if len(r.spare) > 0 {
		slab := r.spare[len(r.spare)-1]
		r.spare = r.spare[:len(r.spare)-1]
		return slab
	}
	return make([]byte, slabSize)
}

// AllocatedBytes returns the total bytes handed out since the last Reset.
func (r *Region) AllocatedBytes() int {
	return r.allocated
}

// Reset releases every allocation at once. Standard-size slabs are retained for
// reuse; buffers previously returned by Alloc must not be used afterwards.
func (r *Region) Reset() {
	slabSize := r.effectiveSlabSize()
	for _, slab := range r.full {
		if len(slab) == slabSize {
			clear(slab)
			r.spare = append(r.spare, slab)
		}
	}
	if r.current != nil {
		clear(r.current)
		r.spare = append(r.spare, r.current)
	}
	r.full = nil
	r.current = nil
	r.offset = 0
	r.allocated = 0
}
