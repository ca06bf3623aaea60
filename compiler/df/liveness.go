package df

import (
	"nikand.dev/go/heap"
	"tlog.app/go/errors"

	"github.com/slowlang/tiler/compiler/asm"
)

type (
	// Liveness is a solved live variable problem.
	Liveness struct {
		Vars *Vars

		Uses []Set
		Defs []Set
		In   []Set
		Out  []Set
	}
)

// Analyze computes per instruction live-out sets.
// Functions returning a value keep rax alive at ret and at the last instruction.
func Analyze(code []asm.Instr, hasReturn bool) *Liveness {
	l := &Liveness{
		Vars: NewVars(),
		Uses: make([]Set, len(code)),
		Defs: make([]Set, len(code)),
		In:   make([]Set, len(code)),
		Out:  make([]Set, len(code)),
	}

	for i, x := range code {
		last := i == len(code)-1

		UsesDefs(x, hasReturn && last, hasReturn, func(r asm.Reg) {
			l.Uses[i].Set(l.Vars.ID(r))
		}, func(r asm.Reg) {
			l.Defs[i].Set(l.Vars.ID(r))
		})
	}

	succ := Succ(code)
	pred := Pred(succ)

	jobs := heap.Heap[int]{Less: func(d []int, i, j int) bool { return d[i] > d[j] }}
	var queued Set

	for i := range code {
		jobs.Push(i)
		queued.Set(i)
	}

	for jobs.Len() != 0 {
		i := jobs.Pop()
		queued.Clear(i)

		var out Set

		for _, s := range succ[i] {
			out.Merge(l.In[s])
		}

		in := out.Copy()
		in.Substract(l.Defs[i])
		in.Merge(l.Uses[i])

		l.Out[i] = out

		if in.Equal(l.In[i]) {
			continue
		}

		l.In[i] = in

		for _, p := range pred[i] {
			if !queued.IsSet(p) {
				queued.Set(p)
				jobs.Push(p)
			}
		}
	}

	return l
}

// LiveOut returns register names live after instruction i.
func (l *Liveness) LiveOut(i int) []asm.Reg {
	var r []asm.Reg

	l.Out[i].Range(func(id int) bool {
		r = append(r, l.Vars.Name(id))
		return true
	})

	return r
}

// UsesDefs reports registers x reads and writes.
// useRAX forces rax use for the function exit point.
func UsesDefs(x asm.Instr, useRAX, hasReturn bool, use, def func(asm.Reg)) {
	arg := func(a asm.Arg) {
		switch a := a.(type) {
		case asm.Reg:
			use(a)
		case asm.Mem:
			a.Regs(use)
		}
	}

	// dst is both read and written if it's a register.
	rw := func(a asm.Arg) {
		switch a := a.(type) {
		case asm.Reg:
			use(a)
			def(a)
		case asm.Mem:
			a.Regs(use)
		}
	}

	switch x := x.(type) {
	case asm.MovAbs:
		def(x.Dst)
	case asm.Mov:
		if r, ok := x.Dst.(asm.Reg); ok {
			def(r)
		} else {
			arg(x.Dst)
		}

		arg(x.Src)
	case asm.Lea:
		def(x.Dst)
		arg(x.Src)
	case asm.Cmp:
		arg(x.L)
		arg(x.R)
	case asm.Set:
		def(x.Dst)
	case asm.Call:
		arg(x.Target)

		for _, r := range asm.ArgRegs {
			use(r)
		}

		for _, r := range asm.CallerSaved {
			def(r)
		}
	case asm.Ret:
		if hasReturn {
			use(asm.RAX)
		}
	case asm.BinOp:
		rw(x.Dst)
		arg(x.Src)
	case asm.IMul:
		rw(x.Dst)
		arg(x.Src)
	case asm.IMul3:
		def(x.Dst)
		arg(x.Src)
	case asm.Cqo:
		use(asm.RAX)
		def(asm.RDX)
	case asm.IDiv:
		arg(x.Src)
		rw(asm.RAX)
		rw(asm.RDX)
	case asm.Neg:
		rw(x.Dst)
	case asm.Shl:
		rw(x.Dst)
	case asm.Push:
		arg(x.Src)
		rw(asm.RSP)
	case asm.PopRBP:
		rw(asm.RSP)
		def(asm.RBP)
	case asm.Jump, asm.Label, asm.Comment:
	default:
		panic(errors.New("unsupported instruction: %T", x))
	}

	if useRAX {
		use(asm.RAX)
	}
}
