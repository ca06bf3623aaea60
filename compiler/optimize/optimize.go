package optimize

import (
	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/df"
	"github.com/slowlang/tiler/compiler/set"
)

type (
	pass func([]asm.Instr) ([]asm.Instr, bool)
)

var passes = []pass{
	coalesceLabels,
	dropUnreachable,
	dropJumpToNext,
	dropUnusedLabels,
}

// Optimize runs simple control flow clean ups until none of them changes anything.
func Optimize(code []asm.Instr, removeComments bool) []asm.Instr {
	if removeComments {
		code = dropComments(code)
	}

	if len(code) == 0 {
		return code
	}

	for {
		changed := false

		for _, p := range passes {
			var ch bool

			code, ch = p(code)
			changed = changed || ch
		}

		if !changed {
			return code
		}
	}
}

func dropComments(code []asm.Instr) []asm.Instr {
	r := make([]asm.Instr, 0, len(code))

	for _, x := range code {
		if _, ok := x.(asm.Comment); !ok {
			r = append(r, x)
		}
	}

	return r
}

// coalesceLabels replaces a label immediately followed by another one.
func coalesceLabels(code []asm.Instr) ([]asm.Instr, bool) {
	next := map[string]string{}

	for i := 0; i+1 < len(code); i++ {
		a, ok := code[i].(asm.Label)
		if !ok {
			continue
		}

		b, ok := code[i+1].(asm.Label)
		if !ok {
			continue
		}

		next[a.Name] = b.Name
	}

	if len(next) == 0 {
		return code, false
	}

	final := func(l string) string {
		for {
			n, ok := next[l]
			if !ok {
				return l
			}

			l = n
		}
	}

	r := make([]asm.Instr, 0, len(code))

	for _, x := range code {
		switch x := x.(type) {
		case asm.Label:
			if _, ok := next[x.Name]; ok {
				continue
			}
		case asm.Jump:
			x.Label = final(x.Label)
			r = append(r, x)

			continue
		}

		r = append(r, x)
	}

	return r, true
}

func dropUnreachable(code []asm.Instr) ([]asm.Instr, bool) {
	if len(code) == 0 {
		return code, false
	}

	succ := df.Succ(code)

	var seen set.Bits[int]

	q := []int{0}
	seen.Set(0)

	for len(q) != 0 {
		i := q[len(q)-1]
		q = q[:len(q)-1]

		for _, s := range succ[i] {
			if !seen.IsSet(s) {
				seen.Set(s)
				q = append(q, s)
			}
		}
	}

	if seen.Size() == len(code) {
		return code, false
	}

	r := make([]asm.Instr, 0, seen.Size())

	seen.Range(func(i int) bool {
		r = append(r, code[i])
		return true
	})

	return r, true
}

func dropJumpToNext(code []asm.Instr) ([]asm.Instr, bool) {
	r := make([]asm.Instr, 0, len(code))

	for i, x := range code {
		if j, ok := x.(asm.Jump); ok && i+1 < len(code) {
			if l, ok := code[i+1].(asm.Label); ok && l.Name == j.Label {
				continue
			}
		}

		r = append(r, x)
	}

	return r, len(r) != len(code)
}

func dropUnusedLabels(code []asm.Instr) ([]asm.Instr, bool) {
	used := map[string]bool{}

	for _, x := range code {
		if j, ok := x.(asm.Jump); ok {
			used[j.Label] = true
		}
	}

	r := make([]asm.Instr, 0, len(code))

	for _, x := range code {
		if l, ok := x.(asm.Label); ok && !used[l.Name] {
			continue
		}

		r = append(r, x)
	}

	return r, len(r) != len(code)
}
