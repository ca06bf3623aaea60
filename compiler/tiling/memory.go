package tiling

import (
	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/ir"
)

type (
	scaled struct {
		Instrs []asm.Instr
		Index  asm.Reg
		Scale  int
	}
)

// Address folds e into an x86 addressing mode.
// It returns nil if e has no memory form.
func (t *Tiler) Address(e ir.Expr) *Result {
	switch e := e.(type) {
	case *ir.Const:
		if !asm.Fits32(e.Value) {
			return nil
		}

		return result(nil, asm.Mem{Disp: asm.Imm(e.Value)})
	case *ir.Name:
		return result([]asm.Instr{asm.Comment{Text: "force named address with rip: " + e.Name}}, asm.MemSym(e.Name))
	case *ir.Temp:
		return result(nil, asm.MemReg(asm.Reg(e.Name)))
	case *ir.Mem:
		return nil
	case *ir.Binary:
	default:
		return nil
	}

	b := e.(*ir.Binary)

	best := t.complete(b)

	if s := t.scaled(b); s != nil {
		best = cheaper(best, result(s.Instrs, asm.Mem{Index: s.Index, Scale: s.Scale}))
	}

	best = cheaper(best, t.baseDisp(b))
	best = cheaper(best, t.baseIndex(b))
	best = cheaper(best, t.indexDisp(b))

	return best
}

// cheaper keeps a on ties.
func cheaper(a, b *Result) *Result {
	if a == nil {
		return b
	}

	if b == nil || a.Cost <= b.Cost {
		return a
	}

	return b
}

// disp returns the displacement e adds to its left operand.
func disp(e *ir.Binary) (int64, bool) {
	c, ok := e.R.(*ir.Const)
	if !ok {
		return 0, false
	}

	v := c.Value

	switch e.Op {
	case ir.Add:
	case ir.Sub:
		v = -v
	default:
		return 0, false
	}

	return v, asm.Fits32(v) && asm.Fits32(c.Value)
}

func scaleOf(e ir.Expr) int {
	c, ok := e.(*ir.Const)
	if !ok {
		return 0
	}

	switch c.Value {
	case 1, 2, 4, 8:
		return int(c.Value)
	}

	return 0
}

// scaled matches t or e*s with s in 1, 2, 4, 8.
func (t *Tiler) scaled(e ir.Expr) *scaled {
	switch e := e.(type) {
	case *ir.Temp:
		return &scaled{Index: asm.Reg(e.Name), Scale: 1}
	case *ir.Binary:
		s := scaleOf(e.R)
		if e.Op != ir.Mul || s == 0 {
			return nil
		}

		r := t.Expr(e.L)

		return &scaled{Instrs: r.Instrs, Index: r.Arg.(asm.Reg), Scale: s}
	}

	return nil
}

// baseDisp is [e + c].
func (t *Tiler) baseDisp(e *ir.Binary) *Result {
	d, ok := disp(e)
	if !ok {
		return nil
	}

	r := t.Expr(e.L)

	return result(r.Instrs, asm.MemRel(r.Arg.(asm.Reg), d))
}

// baseIndex is [b + i*s] in either operand order.
func (t *Tiler) baseIndex(e *ir.Binary) *Result {
	if e.Op != ir.Add {
		return nil
	}

	var res *Result

	if s := t.scaled(e.R); s != nil {
		base := t.Expr(e.L)

		l := append(append([]asm.Instr{}, s.Instrs...), base.Instrs...)
		res = result(l, asm.Mem{Base: base.Arg.(asm.Reg), Index: s.Index, Scale: s.Scale})
	}

	s := t.scaled(e.L)
	if s == nil {
		return res
	}

	base := t.Expr(e.R)

	l := append(append([]asm.Instr{}, s.Instrs...), base.Instrs...)

	return cheaper(res, result(l, asm.Mem{Base: base.Arg.(asm.Reg), Index: s.Index, Scale: s.Scale}))
}

// indexDisp is [i*s + c].
func (t *Tiler) indexDisp(e *ir.Binary) *Result {
	d, ok := disp(e)
	if !ok {
		return nil
	}

	s := t.scaled(e.L)
	if s == nil {
		return nil
	}

	return result(s.Instrs, asm.Mem{Index: s.Index, Scale: s.Scale, Disp: asm.Imm(d)})
}

// complete is [b + i*s + c].
func (t *Tiler) complete(e *ir.Binary) *Result {
	if e.Op != ir.Add {
		return nil
	}

	// (b + i*s) + c
	if c, ok := e.R.(*ir.Const); ok && asm.Fits32(c.Value) {
		l, ok := e.L.(*ir.Binary)
		if !ok {
			return nil
		}

		bi := t.baseIndex(l)
		if bi == nil {
			return nil
		}

		m := bi.Arg.(asm.Mem)
		m.Disp = asm.Imm(c.Value)

		return result(bi.Instrs, m)
	}

	var res *Result

	for _, o := range [2][2]ir.Expr{{e.L, e.R}, {e.R, e.L}} {
		res = cheaper(res, t.indexBaseDisp(o[0], o[1]))
		res = cheaper(res, t.baseIndexDisp(o[0], o[1]))
	}

	return res
}

// indexBaseDisp is i*s + (b + c).
func (t *Tiler) indexBaseDisp(x, y ir.Expr) *Result {
	other, ok := y.(*ir.Binary)
	if !ok {
		return nil
	}

	s := t.scaled(x)
	if s == nil {
		return nil
	}

	bd := t.baseDisp(other)
	if bd == nil {
		return nil
	}

	m := bd.Arg.(asm.Mem)
	m.Index, m.Scale = s.Index, s.Scale

	l := append(append([]asm.Instr{}, s.Instrs...), bd.Instrs...)

	return result(l, m)
}

// baseIndexDisp is b + (i*s + c).
func (t *Tiler) baseIndexDisp(base, y ir.Expr) *Result {
	other, ok := y.(*ir.Binary)
	if !ok {
		return nil
	}

	id := t.indexDisp(other)
	if id == nil {
		return nil
	}

	b := t.Expr(base)

	m := id.Arg.(asm.Mem)
	m.Base = b.Arg.(asm.Reg)

	l := append(append([]asm.Instr{}, id.Instrs...), b.Instrs...)

	return result(l, m)
}
