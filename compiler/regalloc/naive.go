package regalloc

import (
	"github.com/slowlang/tiler/compiler/asm"
)

type (
	// naive keeps every abstract register in its own stack slot.
	naive struct {
		slots map[asm.Reg]asm.Mem
		out   []asm.Instr
	}
)

// Naive allocates by putting every abstract register on the stack.
// r10 and r11 load memory bases and indexes, r9 carries values
// between two memory operands.
func Naive(code []asm.Instr) Result {
	a := &naive{
		slots: make(map[asm.Reg]asm.Mem),
		out:   make([]asm.Instr, 0, 2*len(code)),
	}

	for _, x := range code {
		mapRegs(x, func(r asm.Reg) asm.Reg {
			if _, ok := a.slots[r]; !ok && !r.IsMachine() && r != asm.RIP {
				a.slots[r] = SlotMem(len(a.slots) + 1)
			}

			return r
		}, nil)
	}

	for _, x := range code {
		a.instr(x)
	}

	return Result{
		Instrs: a.out,
		Slots:  len(a.slots),
		Rounds: 1,
	}
}

func (a *naive) emit(x ...asm.Instr) {
	a.out = append(a.out, x...)
}

func (a *naive) loc(r asm.Reg) asm.Arg {
	if m, ok := a.slots[r]; ok {
		return m
	}

	return r
}

// reg loads r into tmp if it lives on the stack.
func (a *naive) reg(r, tmp asm.Reg) asm.Reg {
	m, ok := a.slots[r]
	if !ok {
		return r
	}

	a.emit(asm.Mov{Dst: tmp, Src: m})

	return tmp
}

func (a *naive) mem(m asm.Mem, t1, t2 asm.Reg) asm.Mem {
	if m.Base != "" && m.Base != asm.RIP {
		m.Base = a.reg(m.Base, t1)
	}

	if m.HasIndex() {
		m.Index = a.reg(m.Index, t2)
	}

	return m
}

func (a *naive) arg(x asm.Arg, t1, t2 asm.Reg) asm.Arg {
	switch x := x.(type) {
	case asm.Reg:
		return a.loc(x)
	case asm.Mem:
		return a.mem(x, t1, t2)
	}

	return x
}

func (a *naive) constOrReg(x asm.Arg, tmp asm.Reg) asm.Arg {
	if r, ok := x.(asm.Reg); ok {
		return a.reg(r, tmp)
	}

	return x
}

// store writes through a register into mem destination d.
func (a *naive) store(d asm.Arg, op func(dst asm.Reg) asm.Instr) {
	if r, ok := d.(asm.Reg); ok {
		a.emit(op(r))
		return
	}

	a.emit(op(asm.R11), asm.Mov{Dst: d, Src: asm.R11})
}

func (a *naive) instr(x asm.Instr) {
	switch x := x.(type) {
	case asm.MovAbs:
		d := a.loc(x.Dst)

		if r, ok := d.(asm.Reg); ok {
			a.emit(asm.MovAbs{Dst: r, Value: x.Value})
			return
		}

		a.emit(asm.MovAbs{Dst: asm.R9, Value: x.Value}, asm.Mov{Dst: d, Src: asm.R9})
	case asm.Mov:
		if m, ok := x.Dst.(asm.Mem); ok {
			m = a.mem(m, asm.R9, asm.R10)
			src := a.constOrReg(x.Src, asm.R11)

			a.emit(asm.Mov{Dst: m, Src: src})

			return
		}

		d := a.loc(x.Dst.(asm.Reg))

		if r, ok := d.(asm.Reg); ok {
			a.emit(asm.Mov{Dst: r, Src: a.arg(x.Src, asm.R10, asm.R11)})
			return
		}

		src := a.arg(x.Src, asm.R9, asm.R10)

		if _, ok := src.(asm.Mem); ok {
			a.emit(asm.Mov{Dst: asm.R11, Src: src}, asm.Mov{Dst: d, Src: asm.R11})
			return
		}

		a.emit(asm.Mov{Dst: d, Src: src})
	case asm.Lea:
		src := a.mem(x.Src, asm.R9, asm.R10)

		a.store(a.loc(x.Dst), func(r asm.Reg) asm.Instr {
			return asm.Lea{Dst: r, Src: src}
		})
	case asm.Cmp:
		if m, ok := x.R.(asm.Mem); ok {
			l := a.constOrReg(x.L, asm.R9)
			r := a.mem(m, asm.R10, asm.R11)

			a.emit(asm.Cmp{L: l, R: r})

			return
		}

		l := a.arg(x.L, asm.R9, asm.R10)
		r := a.constOrReg(x.R, asm.R11)

		a.emit(asm.Cmp{L: l, R: r})
	case asm.Set:
		d := a.loc(x.Dst)

		if r, ok := d.(asm.Reg); ok {
			a.emit(asm.Set{Cond: x.Cond, Dst: r})
			return
		}

		a.emit(asm.Set{Cond: x.Cond, Dst: asm.R9}, asm.Mov{Dst: d, Src: asm.R9})
	case asm.Call:
		a.emit(asm.Call{Target: a.arg(x.Target, asm.R9, asm.R10)})
	case asm.BinOp:
		if m, ok := x.Dst.(asm.Mem); ok {
			m = a.mem(m, asm.R9, asm.R10)
			src := a.constOrReg(x.Src, asm.R11)

			a.emit(asm.BinOp{Op: x.Op, Dst: m, Src: src})

			return
		}

		d := a.loc(x.Dst.(asm.Reg))
		src := a.arg(x.Src, asm.R9, asm.R10)

		_, dmem := d.(asm.Mem)
		_, smem := src.(asm.Mem)

		if dmem && smem {
			a.emit(asm.Mov{Dst: asm.R11, Src: src}, asm.BinOp{Op: x.Op, Dst: d, Src: asm.R11})
			return
		}

		a.emit(asm.BinOp{Op: x.Op, Dst: d, Src: src})
	case asm.IMul:
		src := a.arg(x.Src, asm.R9, asm.R10)

		a.viaR11(a.loc(x.Dst), func(r asm.Reg) asm.Instr {
			return asm.IMul{Dst: r, Src: src}
		})
	case asm.IMul3:
		src := a.arg(x.Src, asm.R9, asm.R10)

		a.store(a.loc(x.Dst), func(r asm.Reg) asm.Instr {
			return asm.IMul3{Dst: r, Src: src, Imm: x.Imm}
		})
	case asm.IDiv:
		a.emit(asm.IDiv{Src: a.arg(x.Src, asm.R10, asm.R11)})
	case asm.Neg:
		a.emit(asm.Neg{Dst: a.arg(x.Dst, asm.R9, asm.R10)})
	case asm.Shl:
		a.emit(asm.Shl{Dst: a.arg(x.Dst, asm.R9, asm.R10), Count: x.Count})
	case asm.Push:
		a.emit(asm.Push{Src: a.arg(x.Src, asm.R9, asm.R10)})
	default:
		a.emit(x)
	}
}

// viaR11 runs a read-modify-write op on a stack destination through r11.
func (a *naive) viaR11(d asm.Arg, op func(dst asm.Reg) asm.Instr) {
	if r, ok := d.(asm.Reg); ok {
		a.emit(op(r))
		return
	}

	a.emit(
		asm.Mov{Dst: asm.R11, Src: d},
		op(asm.R11),
		asm.Mov{Dst: d, Src: asm.R11},
	)
}
