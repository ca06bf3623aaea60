package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBits(t *testing.T) {
	var s Bits[int]

	assert.True(t, s.Empty())
	assert.Equal(t, -1, s.First())

	s.SetAll(3, 70, 130, 3)

	assert.Equal(t, 3, s.Size())
	assert.Equal(t, []int{3, 70, 130}, s.Slice())
	assert.Equal(t, 3, s.First())
	assert.True(t, s.IsSet(70))
	assert.False(t, s.IsSet(71))
	assert.False(t, s.IsSet(1000))

	s.Clear(3)
	s.Clear(1000)

	assert.Equal(t, 70, s.First())
	assert.Equal(t, []int{70, 130}, s.Slice())

	s.Reset()
	assert.True(t, s.Empty())
}

func TestBitsOps(t *testing.T) {
	a := MakeBits(1, 2, 65)
	b := MakeBits(2, 200)

	c := a.Copy()
	c.Merge(b)
	assert.Equal(t, []int{1, 2, 65, 200}, c.Slice())
	assert.Equal(t, []int{1, 2, 65}, a.Slice())

	c = a.Copy()
	c.Intersect(b)
	assert.Equal(t, []int{2}, c.Slice())

	c = a.Copy()
	c.Substract(b)
	assert.Equal(t, []int{1, 65}, c.Slice())

	c.Merge(MakeBits(2, 300))
	c.Clear(300)
	assert.True(t, c.Equal(a))
	assert.True(t, a.Equal(c))
	assert.False(t, a.Equal(b))

	var empty Bits[int]
	assert.True(t, empty.Equal(MakeBits[int]()))
	assert.Equal(t, Bits[int]{}, empty.Copy())
}

func TestBitsRangeStop(t *testing.T) {
	s := MakeBits(1, 5, 9)

	var got []int

	s.Range(func(k int) bool {
		got = append(got, k)
		return k < 5
	})

	assert.Equal(t, []int{1, 5}, got)
}

func TestBitsNegative(t *testing.T) {
	var s Bits[int]

	assert.Panics(t, func() { s.Set(-1) })
}
