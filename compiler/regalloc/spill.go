package regalloc

import (
	"tlog.app/go/errors"

	"github.com/slowlang/tiler/compiler/asm"
)

type (
	// spiller rewrites code so spilled registers live in their stack slots.
	spiller struct {
		slots map[asm.Reg]asm.Mem
		temps *asm.Temps

		out []asm.Instr
	}
)

// SlotMem is the n-th 8 byte stack slot below rbp, n starts from 1.
func SlotMem(n int) asm.Mem {
	return asm.MemRel(asm.RBP, -8*int64(n))
}

func (a *allocator) rewriteSpills(code []asm.Instr) []asm.Instr {
	s := &spiller{
		slots: make(map[asm.Reg]asm.Mem, len(a.spilled)),
		temps: a.temps,
		out:   make([]asm.Instr, 0, len(code)+4*len(a.spilled)),
	}

	for _, n := range a.spilled {
		r := a.live.Vars.Name(n)

		id := len(a.slots) + 1
		a.slots[r] = id

		s.slots[r] = SlotMem(id)
	}

	for _, x := range code {
		s.instr(x)
	}

	return s.out
}

func (s *spiller) emit(x ...asm.Instr) {
	s.out = append(s.out, x...)
}

func (s *spiller) slot(r asm.Reg) (asm.Mem, bool) {
	m, ok := s.slots[r]
	return m, ok
}

// reg loads a spilled register into a fresh temp.
func (s *spiller) reg(r asm.Reg) asm.Reg {
	m, ok := s.slot(r)
	if !ok {
		return r
	}

	t := s.temps.Next()
	s.emit(asm.Mov{Dst: t, Src: m})

	return t
}

func (s *spiller) mem(m asm.Mem) asm.Mem {
	if m.Base != "" && m.Base != asm.RIP {
		m.Base = s.reg(m.Base)
	}

	if m.HasIndex() {
		m.Index = s.reg(m.Index)
	}

	return m
}

// arg maps a register to its slot if spilled.
func (s *spiller) arg(a asm.Arg) asm.Arg {
	switch a := a.(type) {
	case asm.Reg:
		if m, ok := s.slot(a); ok {
			return m
		}
	case asm.Mem:
		return s.mem(a)
	}

	return a
}

func (s *spiller) constOrReg(a asm.Arg) asm.Arg {
	switch a := a.(type) {
	case asm.Reg:
		return s.reg(a)
	case asm.Mem:
		return s.mem(a)
	}

	return a
}

// dst returns a register to write instead of spilled r
// and the store to run after the write.
func (s *spiller) dst(r asm.Reg) (asm.Reg, []asm.Instr) {
	m, ok := s.slot(r)
	if !ok {
		return r, nil
	}

	t := s.temps.Next()

	return t, []asm.Instr{asm.Mov{Dst: m, Src: t}}
}

// viaTemp computes op on a spilled register through a temp.
func (s *spiller) viaTemp(slot asm.Mem, op func(t asm.Reg) asm.Instr) {
	t := s.temps.Next()

	s.emit(
		asm.Mov{Dst: t, Src: slot},
		op(t),
		asm.Mov{Dst: slot, Src: t},
	)
}

func (s *spiller) instr(x asm.Instr) {
	switch x := x.(type) {
	case asm.MovAbs:
		d, after := s.dst(x.Dst)

		s.emit(asm.MovAbs{Dst: d, Value: x.Value})
		s.emit(after...)
	case asm.Mov:
		if m, ok := x.Dst.(asm.Mem); ok {
			m = s.mem(m)
			src := s.constOrReg(x.Src)

			s.emit(asm.Mov{Dst: m, Src: src})

			return
		}

		dst := x.Dst.(asm.Reg)
		src := s.arg(x.Src)

		slot, ok := s.slot(dst)

		switch _, isMem := src.(asm.Mem); {
		case !ok:
			s.emit(asm.Mov{Dst: dst, Src: src})
		case isMem:
			t := s.temps.Next()

			s.emit(
				asm.Mov{Dst: t, Src: src},
				asm.Mov{Dst: slot, Src: t},
			)
		default:
			s.emit(asm.Mov{Dst: slot, Src: src})
		}
	case asm.Lea:
		src := s.mem(x.Src)
		d, after := s.dst(x.Dst)

		s.emit(asm.Lea{Dst: d, Src: src})
		s.emit(after...)
	case asm.Cmp:
		var l, r asm.Arg

		if m, ok := x.R.(asm.Mem); ok {
			l = s.constOrReg(x.L)
			r = s.mem(m)
		} else {
			l = s.arg(x.L)
			r = s.constOrReg(x.R)
		}

		s.emit(asm.Cmp{L: l, R: r})
	case asm.Set:
		if _, ok := s.slot(x.Dst); ok {
			panic(errors.New("set destination is spilled: %v", x.Dst))
		}

		s.emit(x)
	case asm.Call:
		s.emit(asm.Call{Target: s.arg(x.Target)})
	case asm.BinOp:
		if m, ok := x.Dst.(asm.Mem); ok {
			m = s.mem(m)
			src := s.constOrReg(x.Src)

			s.emit(asm.BinOp{Op: x.Op, Dst: m, Src: src})

			return
		}

		dst := x.Dst.(asm.Reg)
		src := s.arg(x.Src)

		slot, ok := s.slot(dst)

		switch _, isMem := src.(asm.Mem); {
		case !ok:
			s.emit(asm.BinOp{Op: x.Op, Dst: dst, Src: src})
		case isMem:
			s.viaTemp(slot, func(t asm.Reg) asm.Instr {
				return asm.BinOp{Op: x.Op, Dst: t, Src: src}
			})
		default:
			s.emit(asm.BinOp{Op: x.Op, Dst: slot, Src: src})
		}
	case asm.IMul:
		src := s.arg(x.Src)

		slot, ok := s.slot(x.Dst)
		if !ok {
			s.emit(asm.IMul{Dst: x.Dst, Src: src})
			return
		}

		s.viaTemp(slot, func(t asm.Reg) asm.Instr {
			return asm.IMul{Dst: t, Src: src}
		})
	case asm.IMul3:
		src := s.arg(x.Src)
		d, after := s.dst(x.Dst)

		s.emit(asm.IMul3{Dst: d, Src: src, Imm: x.Imm})
		s.emit(after...)
	case asm.IDiv:
		s.emit(asm.IDiv{Src: s.arg(x.Src)})
	case asm.Neg:
		s.emit(asm.Neg{Dst: s.arg(x.Dst)})
	case asm.Shl:
		s.emit(asm.Shl{Dst: s.arg(x.Dst), Count: x.Count})
	case asm.Push:
		s.emit(asm.Push{Src: s.arg(x.Src)})
	default:
		s.emit(x)
	}
}
