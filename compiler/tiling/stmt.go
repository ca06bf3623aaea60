package tiling

import (
	"tlog.app/go/errors"

	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/ir"
)

// Stmt tiles s. Results are memoized by s identity.
func (t *Tiler) Stmt(s ir.Stmt) []asm.Instr {
	if l, ok := t.stmts[s]; ok {
		return l
	}

	t.misses++

	l := t.tileStmt(s)
	t.stmts[s] = l

	return l
}

func (t *Tiler) tileStmt(s ir.Stmt) []asm.Instr {
	switch s := s.(type) {
	case *ir.MoveTemp:
		src := t.arg(s.Src)

		return append(clone(src.Instrs), asm.Mov{Dst: asm.Reg(s.Temp.Name), Src: src.Arg})
	case *ir.MoveMem:
		dst := t.mem(ir.M(s.Index))
		src := t.constOrReg(s.Src)

		l := clone(dst.Instrs)
		l = append(l, src.Instrs...)

		return append(l, asm.Mov{Dst: dst.Arg, Src: src.Arg})
	case *ir.Call:
		return t.call(s)
	case *ir.Jump:
		return []asm.Instr{asm.Jump{Cond: asm.Jmp, Label: s.Label}}
	case *ir.Label:
		return []asm.Instr{asm.Label{Name: s.Name}}
	case *ir.CJump:
		return t.cjump(s)
	case *ir.Return:
		l := []asm.Instr{asm.Comment{Text: s.String()}}

		if s.Value != nil {
			v := t.arg(s.Value)

			l = append(l, v.Instrs...)
			l = append(l, asm.Mov{Dst: asm.RAX, Src: v.Arg})
		}

		return append(l, asm.Jump{Cond: asm.Jmp, Label: EpilogueLabel(t.fn)})
	default:
		panic(errors.New("unsupported statement: %T", s))
	}
}

func (t *Tiler) cjump(s *ir.CJump) []asm.Instr {
	l := []asm.Instr{asm.Comment{Text: s.String()}}

	if b, ok := s.Cond.(*ir.Binary); ok {
		if cond, ok := conds[b.Op]; ok {
			x := t.Expr(b.L)
			y := t.constOrReg(b.R)

			l = append(l, x.Instrs...)
			l = append(l, y.Instrs...)

			return append(l,
				asm.Cmp{L: x.Arg, R: y.Arg},
				asm.Jump{Cond: cond, Label: s.Label},
			)
		}
	}

	x := t.regOrMem(s.Cond)

	l = append(l, x.Instrs...)

	return append(l,
		asm.Cmp{L: x.Arg, R: asm.Imm(0)},
		asm.Jump{Cond: asm.Jnz, Label: s.Label},
	)
}

// call follows System V: the first six arguments go in registers,
// the rest are pushed right to left keeping rsp 16 byte aligned.
func (t *Tiler) call(s *ir.Call) []asm.Instr {
	l := []asm.Instr{asm.Comment{Text: s.String()}}

	var fn asm.Arg

	if n, ok := s.Func.(*ir.Name); ok {
		fn = asm.Sym(n.Name)
	} else {
		r := t.arg(s.Func)

		l = append(l, r.Instrs...)
		fn = r.Arg
	}

	args := make([]asm.Arg, len(s.Args))

	for i, a := range s.Args {
		r := t.arg(a)

		l = append(l, r.Instrs...)
		args[i] = r.Arg
	}

	l = append(l, asm.Comment{Text: "calling " + s.Func.String()})

	stack := max(len(args)-len(asm.ArgRegs), 0)
	if stack%2 != 0 {
		stack++

		l = append(l, asm.BinOp{Op: asm.Sub, Dst: asm.RSP, Src: asm.Imm(8)})
	}

	for i := len(args) - 1; i >= 0; i-- {
		if i >= len(asm.ArgRegs) {
			l = append(l, asm.Push{Src: args[i]})
		} else {
			l = append(l, asm.Mov{Dst: asm.ArgRegs[i], Src: args[i]})
		}
	}

	l = append(l, asm.Call{Target: fn})

	if s.Result != nil {
		l = append(l, asm.Mov{Dst: asm.Reg(s.Result.Name), Src: asm.RAX})
	}

	if stack != 0 {
		l = append(l, asm.BinOp{Op: asm.Add, Dst: asm.RSP, Src: asm.Imm(int64(8 * stack))})
	}

	return append(l, asm.Comment{Text: "called " + s.Func.String()})
}

func clone(l []asm.Instr) []asm.Instr {
	return append([]asm.Instr(nil), l...)
}
