package chunked_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/disjukr/memquota/chunked"
)

func TestEmptyList(t *testing.T) {
	var list chunked.List[int]

	require.Equal(t, 0, list.Len())

	_, ok := list.PopFront()
	require.False(t, ok)

	_, ok = list.PopBack()
	require.False(t, ok)
}

func TestPushPopSingleChunk(t *testing.T) {
	var list chunked.List[int]

	for i := 0; i < 10; i++ {
		list.PushBack(i)
	}
	require.Equal(t, 10, list.Len())

	for i := 0; i < 10; i++ {
		value, ok := list.PopFront()
		require.True(t, ok)
		require.Equal(t, i, value)
	}
	require.Equal(t, 0, list.Len())
}

func TestPushPopAcrossChunkBoundaries(t *testing.T) {
	var list chunked.List[int]

	const count = 100
	for i := 0; i < count; i++ {
		list.PushBack(i)
	}
	require.Equal(t, count, list.Len())

	for i := 0; i < count; i++ {
		value, ok := list.PopFront()
		require.True(t, ok)
		require.Equal(t, i, value)
	}

	_, ok := list.PopFront()
	require.False(t, ok)
}

func TestPopBack(t *testing.T) {
	var list chunked.List[int]

	const count = 50
	for i := 0; i < count; i++ {
		list.PushBack(i)
	}

	for i := count - 1; i >= 0; i-- {
		value, ok := list.PopBack()
		require.True(t, ok)
		require.Equal(t, i, value)
	}
	require.Equal(t, 0, list.Len())
}

func TestMixedEnds(t *testing.T) {
	var list chunked.List[int]

	for i := 0; i < 40; i++ {
		list.PushBack(i)
	}

	front, ok := list.PopFront()
	require.True(t, ok)
	require.Equal(t, 0, front)

	back, ok := list.PopBack()
	require.True(t, ok)
	require.Equal(t, 39, back)

	require.Equal(t, 38, list.Len())

	list.PushBack(100)
	back, ok = list.PopBack()
	require.True(t, ok)
	require.Equal(t, 100, back)
}

func TestForEach(t *testing.T) {
	var list chunked.List[int]

	for i := 0; i < 35; i++ {
		list.PushBack(i)
	}
	// Consume a few from the front so iteration starts mid-chunk.
	list.PopFront()
	list.PopFront()

	var visited []int
	list.ForEach(func(value int) bool {
		visited = append(visited, value)
		return false
	})

	require.Len(t, visited, 33)
	require.Equal(t, 2, visited[0])
	require.Equal(t, 34, visited[32])
}

func TestForEachEarlyStop(t *testing.T) {
	var list chunked.List[int]

	for i := 0; i < 10; i++ {
		list.PushBack(i)
	}

	var visited []int
	list.ForEach(func(value int) bool {
		visited = append(visited, value)
		return value == 3
	})

	require.Equal(t, []int{0, 1, 2, 3}, visited)
}

func TestClearAndReuse(t *testing.T) {
	var list chunked.List[string]

	for i := 0; i < 20; i++ {
		list.PushBack("value")
	}
	list.Clear()
	require.Equal(t, 0, list.Len())

	_, ok := list.PopFront()
	require.False(t, ok)

	list.PushBack("after")
	value, ok := list.PopFront()
	require.True(t, ok)
	require.Equal(t, "after", value)
}

func TestInterleavedPushPop(t *testing.T) {
	var list chunked.List[int]

	next := 0
	expect := 0
	for round := 0; round < 30; round++ {
		for i := 0; i < 7; i++ {
			list.PushBack(next)
			next++
		}
		for i := 0; i < 5; i++ {
			value, ok := list.PopFront()
			require.True(t, ok)
			require.Equal(t, expect, value)
			expect++
		}
	}

	require.Equal(t, next-expect, list.Len())
	for expect < next {
		value, ok := list.PopFront()
		require.True(t, ok)
		require.Equal(t, expect, value)
		expect++
	}
}
