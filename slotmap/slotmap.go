// Package slotmap provides a generational slot map: a flat table whose entries are
// addressed by stable handles combining a slot index with a generation counter.
// Deleting an entry bumps the slot's generation, so a handle held across a
// delete/reuse cycle can never alias the slot's new occupant. Lookup, insert and
// delete are all O(1) and handles survive growth of the backing table.
package slotmap

import "fmt"

// Handle addresses one entry in a Map. The zero value is never returned from
// Insert and never resolves, so it can be used as an empty sentinel.
type Handle uint64

const indexBits = 32

// NilHandle is a Handle that will never resolve to an entry.
const NilHandle Handle = 0

func makeHandle(index uint32, generation uint32) Handle {
	return Handle(uint64(generation)<<indexBits | uint64(index))
}

func (h Handle) index() uint32      { return uint32(h) }
func (h Handle) generation() uint32 { return uint32(h >> indexBits) }

// String formats the handle as index@generation for diagnostics.
func (h Handle) String() string {
	return fmt.Sprintf("%d@%d", h.index(), h.generation())
}

type slot[T any] struct {
	value      T
	generation uint32
	live       bool
}

// Map is a generational slot map from Handle to T. The zero value is ready to use.
// Map is not safe for concurrent use.
type Map[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// Insert stores value in a free slot and returns a handle to it.
func (m *Map[T]) Insert(value T) Handle {
	var index uint32
	if len(m.free) > 0 {
		index = m.free[len(m.free)-1]
		m.free = m.free[:len(m.free)-1]
	} else {
		index = uint32(len(m.slots))
		// Generation starts at 1 so that NilHandle (generation 0) never resolves.
		m.slots = append(m.slots, slot[T]{generation: 1})
	}

	s := &m.slots[index]
	if s.live {
		panic(fmt.Sprintf("slot %d was live while on the free list", index))
	}
	s.value = value
	s.live = true
	m.count++

	return makeHandle(index, s.generation)
}

// Get returns the value addressed by handle, if the handle is still current.
func (m *Map[T]) Get(handle Handle) (T, bool) {
	index := handle.index()
	if int(index) >= len(m.slots) {
		var empty T
		return empty, false
	}

	s := &m.slots[index]
	if !s.live || s.generation != handle.generation() {
		var empty T
		return empty, false
	}

	return s.value, true
}

// Delete removes the entry addressed by handle and returns it. A stale or unknown
// handle is a no-op, reported through the second return value.
func (m *Map[T]) Delete(handle Handle) (T, bool) {
	index := handle.index()
	var empty T
	if int(index) >= len(m.slots) {
		return empty, false
	}

	s := &m.slots[index]
	if !s.live || s.generation != handle.generation() {
		return empty, false
	}

	value := s.value
	s.value = empty
	s.live = false
	s.generation++
	m.count--
	m.free = append(m.free, index)

	return value, true
}

// Count returns the number of live entries.
func (m *Map[T]) Count() int {
	return m.count
}

// Iter calls visit for each live entry until visit returns true.
func (m *Map[T]) Iter(visit func(handle Handle, value T) (stop bool)) {
	for index := 0; index < len(m.slots); index++ {
		s := &m.slots[index]
		if !s.live {
			continue
		}
		if visit(makeHandle(uint32(index), s.generation), s.value) {
			return
		}
	}
}
