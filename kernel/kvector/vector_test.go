package kvector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectorAddGet(t *testing.T) {
	v := New[string](3)
	require.Equal(t, 3, v.Cap())

	for i, name := range []string{"a", "b", "c"} {
		index, err := v.Add(name)
		require.Nil(t, err)
		require.Equal(t, i, index)
	}
	require.Equal(t, 3, v.Len())

	index, err := v.Add("d")
	require.Equal(t, errVectorFull, err)
	require.Equal(t, -1, index)

	value, err := v.Get(1)
	require.Nil(t, err)
	require.Equal(t, "b", value)

	for _, index := range []int{-1, 3, 100} {
		_, err = v.Get(index)
		require.Equal(t, errBadIndex, err)
	}
}

func TestVectorRemoveReusesSlots(t *testing.T) {
	v := New[int](4)
	for i := 0; i < 4; i++ {
		_, err := v.Add(i * 10)
		require.Nil(t, err)
	}

	value, err := v.Remove(1)
	require.Nil(t, err)
	require.Equal(t, 10, value)
	require.Equal(t, 3, v.Len())

	_, err = v.Get(1)
	require.Equal(t, errBadIndex, err)
	_, err = v.Remove(1)
	require.Equal(t, errBadIndex, err)

	index, err := v.Add(99)
	require.Nil(t, err)
	require.Equal(t, 1, index)

	var visited []int
	v.Each(func(index, value int) { visited = append(visited, index*1000+value) })
	require.Equal(t, []int{0, 1099, 2020, 3030}, visited)
}

func TestVectorPut(t *testing.T) {
	v := New[int](4)

	require.Nil(t, v.Put(2, 7))
	require.Equal(t, 1, v.Len())
	require.Equal(t, errSlotInUse, v.Put(2, 8))
	require.Equal(t, errBadIndex, v.Put(4, 8))
	require.Equal(t, errBadIndex, v.Put(-1, 8))

	_, err := v.Get(1)
	require.Equal(t, errBadIndex, err)

	// Slots skipped by Put are filled first.
	index, err := v.Add(1)
	require.Nil(t, err)
	require.Equal(t, 0, index)
	index, err = v.Add(2)
	require.Nil(t, err)
	require.Equal(t, 1, index)
	index, err = v.Add(3)
	require.Nil(t, err)
	require.Equal(t, 3, index)

	_, err = v.Add(4)
	require.Equal(t, errVectorFull, err)
}
