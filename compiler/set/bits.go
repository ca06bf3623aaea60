package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	Key interface {
		~int | ~int64
	}

	// Bits is a dense set of small non-negative keys.
	// Zero value is an empty set.
	// Bits values share storage when copied, use Copy to detach.
	Bits[K Key] struct {
		b []uint64
	}
)

func MakeBits[K Key](keys ...K) Bits[K] {
	var s Bits[K]

	s.SetAll(keys...)

	return s
}

func (s Bits[K]) Copy() Bits[K] {
	if s.b == nil {
		return Bits[K]{}
	}

	c := Bits[K]{b: make([]uint64, len(s.b))}
	copy(c.b, s.b)

	return c
}

func (s *Bits[K]) Set(k K) {
	i, j := ij(k)

	s.grow(i)

	s.b[i] |= 1 << j
}

func (s *Bits[K]) SetAll(k ...K) {
	for _, k := range k {
		s.Set(k)
	}
}

func (s Bits[K]) IsSet(k K) bool {
	i, j := ij(k)

	if i >= len(s.b) {
		return false
	}

	return s.b[i]&(1<<j) != 0
}

func (s *Bits[K]) Clear(k K) {
	i, j := ij(k)

	if i >= len(s.b) {
		return
	}

	s.b[i] &^= 1 << j
}

// Merge adds all x elements to s.
func (s *Bits[K]) Merge(x Bits[K]) {
	s.grow(len(x.b) - 1)

	for i, x := range x.b {
		s.b[i] |= x
	}
}

func (s Bits[K]) Intersect(x Bits[K]) {
	for i := range s.b {
		if i < len(x.b) {
			s.b[i] &= x.b[i]
		} else {
			s.b[i] = 0
		}
	}
}

func (s Bits[K]) Substract(x Bits[K]) {
	n := len(s.b)
	if m := len(x.b); m < n {
		n = m
	}

	for i, x := range x.b[:n] {
		s.b[i] &^= x
	}
}

func (s Bits[K]) Equal(x Bits[K]) bool {
	a, b := s.b, x.b
	if len(a) < len(b) {
		a, b = b, a
	}

	for i, w := range a {
		var v uint64
		if i < len(b) {
			v = b[i]
		}

		if w != v {
			return false
		}
	}

	return true
}

func (s Bits[K]) Size() (r int) {
	for _, c := range s.b {
		r += bits.OnesCount64(c)
	}

	return r
}

func (s Bits[K]) Empty() bool {
	for _, c := range s.b {
		if c != 0 {
			return false
		}
	}

	return true
}

// First returns the smallest key or -1.
func (s Bits[K]) First() K {
	for i, x := range s.b {
		if x != 0 {
			return K(i*64 + bits.TrailingZeros64(x))
		}
	}

	return -1
}

func (s Bits[K]) Range(f func(k K) bool) {
	for i, x := range s.b {
		for x != 0 {
			j := bits.TrailingZeros64(x)
			x &^= 1 << j

			if !f(K(i*64 + j)) {
				return
			}
		}
	}
}

func (s Bits[K]) Slice() []K {
	r := make([]K, 0, s.Size())

	s.Range(func(k K) bool {
		r = append(r, k)
		return true
	})

	return r
}

func (s Bits[K]) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	if s.b == nil {
		return e.AppendNil(b)
	}

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(k K) bool {
		b = e.AppendInt(b, int(k))

		return true
	})

	b = e.AppendBreak(b)

	return b
}

func (s *Bits[K]) Reset() {
	for i := range s.b {
		s.b[i] = 0
	}

	s.b = s.b[:0]
}

func ij[K Key](k K) (i int, j int) {
	p := int(k)
	if p < 0 {
		panic(k)
	}

	return p / 64, p % 64
}

func (s *Bits[K]) grow(i int) {
	for i >= len(s.b) {
		s.b = append(s.b, 0)
	}
}
