package df

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/set"
)

type (
	// Vars gives registers dense ids.
	// Machine registers always have ids 0..15 in asm.Machine order.
	Vars struct {
		names []asm.Reg
		ids   map[asm.Reg]int
	}

	Set = set.Bits[int]
)

func NewVars() *Vars {
	v := &Vars{
		ids: make(map[asm.Reg]int, 2*len(asm.Machine)),
	}

	for _, r := range asm.Machine {
		v.ID(r)
	}

	return v
}

// ID returns r id adding it if needed.
func (v *Vars) ID(r asm.Reg) int {
	if id, ok := v.ids[r]; ok {
		return id
	}

	id := len(v.names)

	v.names = append(v.names, r)
	v.ids[r] = id

	return id
}

func (v *Vars) Lookup(r asm.Reg) (int, bool) {
	id, ok := v.ids[r]
	return id, ok
}

func (v *Vars) Name(id int) asm.Reg { return v.names[id] }

func (v *Vars) Len() int { return len(v.names) }

// IsMachine reports whether id is a pre-colored machine register.
func (v *Vars) IsMachine(id int) bool { return id < len(asm.Machine) }

func (v *Vars) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendArray(b, len(v.names))

	for _, r := range v.names {
		b = e.AppendString(b, string(r))
	}

	return b
}

// Succ builds control flow successors of each instruction.
func Succ(code []asm.Instr) [][]int {
	labels := map[string]int{}

	for i, x := range code {
		if l, ok := x.(asm.Label); ok {
			labels[l.Name] = i
		}
	}

	target := func(l string) int {
		i, ok := labels[l]
		if !ok {
			panic(errors.New("jump to undefined label: %v", l))
		}

		return i
	}

	succ := make([][]int, len(code))

	for i, x := range code {
		switch x := x.(type) {
		case asm.Jump:
			succ[i] = append(succ[i], target(x.Label))

			if x.Cond.Conditional() && i+1 < len(code) {
				succ[i] = append(succ[i], i+1)
			}
		case asm.Ret:
		default:
			if i+1 < len(code) {
				succ[i] = append(succ[i], i+1)
			}
		}
	}

	return succ
}

// Pred inverts successors.
func Pred(succ [][]int) [][]int {
	pred := make([][]int, len(succ))

	for i, ss := range succ {
		for _, s := range ss {
			pred[s] = append(pred[s], i)
		}
	}

	return pred
}
