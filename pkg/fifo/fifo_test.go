package fifo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFifo(t *testing.T) {
	t.Run("pops in push order", func(t *testing.T) {
		f := New[byte](3)

		require.True(t, f.Push('a'))
		require.True(t, f.Push('b'))

		c, ok := f.Pop()
		require.True(t, ok)
		require.Equal(t, byte('a'), c)

		c, ok = f.Pop()
		require.True(t, ok)
		require.Equal(t, byte('b'), c)

		require.True(t, f.Empty())
	})

	t.Run("rejects push when full", func(t *testing.T) {
		f := New[int](2)

		require.True(t, f.Push(1))
		require.True(t, f.Push(2))
		require.False(t, f.Push(3))
		require.Equal(t, 2, f.Len())

		v, ok := f.Pop()
		require.True(t, ok)
		require.Equal(t, 1, v)
	})

	t.Run("fails pop when empty", func(t *testing.T) {
		f := New[int](1)

		_, ok := f.Pop()
		require.False(t, ok)

		_, ok = f.Peek()
		require.False(t, ok)
	})

	t.Run("wraps around the buffer", func(t *testing.T) {
		f := New[int](2)

		for i := 0; i < 10; i++ {
			require.True(t, f.Push(i))
			v, ok := f.Pop()
			require.True(t, ok)
			require.Equal(t, i, v)
		}

		require.True(t, f.Push(10))
		require.True(t, f.Push(11))

		var seen []int
		f.Each(func(v int) { seen = append(seen, v) })
		require.Equal(t, []int{10, 11}, seen)
	})

	t.Run("zero capacity rejects everything", func(t *testing.T) {
		f := New[byte](0)

		require.True(t, f.Full())
		require.False(t, f.Push('x'))
	})

	t.Run("reset empties the queue", func(t *testing.T) {
		f := New[int](2)
		f.Push(1)
		f.Push(2)

		f.Reset()

		require.Equal(t, 0, f.Len())
		require.True(t, f.Push(3))

		v, _ := f.Pop()
		require.Equal(t, 3, v)
	})
}
