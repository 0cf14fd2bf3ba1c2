// Package chunked provides a list type that allocates non-contiguous runs of
// chunkSize elements at a time. The expectation is that most usage will fit in
// one chunk, sometimes two will be needed, and very rarely three. Appending and
// popping from either end is constant time amortized. Chunks emptied from the
// front are recycled through a sync.Pool rather than returned to the garbage
// collector immediately.
package chunked

import (
	"fmt"
	"sync"
)

const chunkSize = 16

type chunk[T any] struct {
	next  *chunk[T]
	count int
	data  [chunkSize]T
}

// List is a chunked sequence of T. The zero value is an empty list ready for use.
// List is not safe for concurrent use.
type List[T any] struct {
	chunkPool sync.Pool

	first      *chunk[T]
	appendTo   *chunk[T]
	firstIndex int
	size       int
}

func (l *List[T]) getChunk() *chunk[T] {
	v := l.chunkPool.Get()
	if v == nil {
		return &chunk[T]{}
	}
	return v.(*chunk[T])
}

func (l *List[T]) recycleChunk(c *chunk[T]) {
	var empty chunk[T]
	*c = empty
	l.chunkPool.Put(c)
}

// Len returns the number of elements currently in the list.
func (l *List[T]) Len() int {
	return l.size
}

// PushBack appends value to the end of the list.
func (l *List[T]) PushBack(value T) {
	if l.appendTo == nil {
		if l.first != nil {
			panic("chunked list had a head chunk without an append chunk")
		}
		l.first = l.getChunk()
		l.appendTo = l.first
	} else if l.appendTo.count == chunkSize {
		// Clear retains emptied chunks on the chain, reuse before allocating.
		if l.appendTo.next == nil {
			l.appendTo.next = l.getChunk()
		}
		l.appendTo = l.appendTo.next
	}

	l.appendTo.data[l.appendTo.count] = value
	l.appendTo.count++
	l.size++
}

// PopBack removes and returns the last element of the list.
func (l *List[T]) PopBack() (T, bool) {
	var empty T
	if l.size == 0 {
		return empty, false
	}

	if l.appendTo.count == 0 || (l.appendTo == l.first && l.appendTo.count == l.firstIndex) {
		// The append chunk has been drained, walk forward to the chunk before it.
		c := l.first
		for c.next != l.appendTo {
			c = c.next
		}
		l.appendTo = c
	}

	last := l.appendTo.count - 1
	value := l.appendTo.data[last]
	l.appendTo.data[last] = empty
	l.appendTo.count = last
	l.size--

	return value, true
}

// PopFront removes and returns the first element of the list.
func (l *List[T]) PopFront() (T, bool) {
	var empty T
	if l.size == 0 {
		return empty, false
	}

	value := l.first.data[l.firstIndex]
	l.first.data[l.firstIndex] = empty
	l.firstIndex++
	l.size--

	if l.firstIndex == l.first.count {
		if l.first == l.appendTo {
			l.first.count = 0
			l.firstIndex = 0
		} else {
			next := l.first.next
			l.recycleChunk(l.first)
			l.first = next
			l.firstIndex = 0
		}
	}

	return value, true
}

// ForEach calls visit for each element in order until visit returns true.
func (l *List[T]) ForEach(visit func(value T) (stop bool)) {
	start := l.firstIndex
	for c := l.first; c != nil; c = c.next {
		for i := start; i < c.count; i++ {
			if visit(c.data[i]) {
				return
			}
		}
		start = 0
	}
}

// Clear removes all elements. Chunks already on the chain are retained for reuse.
func (l *List[T]) Clear() {
	var empty T
	for c := l.first; c != nil && c.count != 0; c = c.next {
		for i := 0; i < c.count; i++ {
			c.data[i] = empty
		}
		c.count = 0
	}
	l.firstIndex = 0
	l.size = 0
	l.appendTo = l.first
}

func (l *List[T]) String() string {
	return fmt.Sprintf("chunked.List(len=%d)", l.size)
}
