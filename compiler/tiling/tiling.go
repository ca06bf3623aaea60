package tiling

import (
	"math/bits"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/ir"
)

type (
	// Tiler selects instructions for one function.
	// Results are memoized by node identity.
	Tiler struct {
		fn    string
		temps *asm.Temps

		exprs map[ir.Expr]*Result
		stmts map[ir.Stmt][]asm.Instr

		misses int
	}

	// Result is a tiled expression: Instrs compute Arg.
	Result struct {
		Instrs []asm.Instr
		Arg    asm.Arg
		Cost   int
	}

	binaryTiler func(t *Tiler, e *ir.Binary) *Result
)

const EpiloguePrefix = "LABEL_FUNCTION_CALL_EPILOGUE_FOR_"

// binaryTilers are tried in order, ties keep the earlier one.
var binaryTilers []binaryTiler

func init() {
	binaryTilers = []binaryTiler{
		(*Tiler).tileGeneric,
		(*Tiler).tileCommutative,
		(*Tiler).tileCompare,
		(*Tiler).tileLea,
		(*Tiler).tileIMul3,
		(*Tiler).tileShl,
	}
}

var conds = map[ir.Op]asm.Cond{
	ir.Lt: asm.Jl,
	ir.Le: asm.Jle,
	ir.Gt: asm.Jg,
	ir.Ge: asm.Jge,
	ir.Eq: asm.Je,
	ir.Ne: asm.Jne,
}

func New(fn string, temps *asm.Temps) *Tiler {
	return &Tiler{
		fn:    fn,
		temps: temps,
		exprs: make(map[ir.Expr]*Result),
		stmts: make(map[ir.Stmt][]asm.Instr),
	}
}

func EpilogueLabel(fn string) string { return EpiloguePrefix + fn }

// Cost is a weighted instruction count.
func Cost(l []asm.Instr) (c int) {
	for _, x := range l {
		switch x.(type) {
		case asm.Comment, asm.Label:
		case asm.IMul, asm.IMul3:
			c += 3
		default:
			c++
		}
	}

	return c
}

func result(l []asm.Instr, arg asm.Arg) *Result {
	return &Result{Instrs: l, Arg: arg, Cost: Cost(l)}
}

// Misses is the number of nodes actually tiled.
func (t *Tiler) Misses() int { return t.misses }

// Function tiles body and appends the epilogue label.
func (t *Tiler) Function(body []ir.Stmt) (l []asm.Instr) {
	for _, s := range body {
		l = append(l, t.Stmt(s)...)
	}

	return append(l, asm.Label{Name: EpilogueLabel(t.fn)})
}

// Expr tiles e into a register.
func (t *Tiler) Expr(e ir.Expr) *Result {
	if r, ok := t.exprs[e]; ok {
		return r
	}

	t.misses++

	r := t.tileExpr(e)
	t.exprs[e] = r

	return r
}

func (t *Tiler) tileExpr(e ir.Expr) *Result {
	switch e := e.(type) {
	case *ir.Const:
		r := t.temps.Next()

		return result([]asm.Instr{asm.MovConst(r, e.Value)}, r)
	case *ir.Name:
		r := t.temps.Next()

		return result([]asm.Instr{asm.Lea{Dst: r, Src: asm.MemSym(e.Name)}}, r)
	case *ir.Temp:
		return result(nil, asm.Reg(e.Name))
	case *ir.Mem:
		m := t.mem(e)
		r := t.temps.Next()

		l := []asm.Instr{asm.Comment{Text: e.String()}}
		l = append(l, m.Instrs...)
		l = append(l, asm.Mov{Dst: r, Src: m.Arg})

		return result(l, r)
	case *ir.Binary:
		var best *Result

		for _, tile := range binaryTilers {
			r := tile(t, e)
			if r == nil {
				continue
			}

			if best == nil || r.Cost < best.Cost {
				best = r
			}
		}

		if best == nil {
			panic(errors.New("no tiling for %v", e))
		}

		return best
	default:
		tlog.Printw("unsupported expression", "type", tlog.NextAsType, e, "from", loc.Caller(1))
		panic(errors.New("unsupported expression: %T", e))
	}
}

func (t *Tiler) constOrReg(e ir.Expr) *Result {
	if c, ok := e.(*ir.Const); ok && asm.Fits32(c.Value) {
		return result(nil, asm.Imm(c.Value))
	}

	return t.Expr(e)
}

func (t *Tiler) regOrMem(e ir.Expr) *Result {
	if m, ok := e.(*ir.Mem); ok {
		return t.mem(m)
	}

	return t.Expr(e)
}

func (t *Tiler) arg(e ir.Expr) *Result {
	if c, ok := e.(*ir.Const); ok && asm.Fits32(c.Value) {
		return result(nil, asm.Imm(c.Value))
	}

	return t.regOrMem(e)
}

// mem tiles the memory operand m refers to.
func (t *Tiler) mem(m *ir.Mem) *Result {
	if n, ok := m.Index.(*ir.Name); ok {
		return result(nil, asm.MemSym(n.Name))
	}

	if r := t.Address(m.Index); r != nil {
		return r
	}

	r := t.Expr(m.Index)

	return result(r.Instrs, asm.MemReg(r.Arg.(asm.Reg)))
}

func (t *Tiler) tileGeneric(e *ir.Binary) *Result {
	switch e.Op {
	case ir.Add, ir.Sub, ir.Xor, ir.Mul, ir.Div, ir.Mod:
	default:
		return nil
	}

	res := t.temps.Next()
	l1 := t.arg(e.L)
	r2 := t.regOrMem(e.R)

	l := []asm.Instr{asm.Comment{Text: "generic: " + e.String()}}
	l = append(l, l1.Instrs...)
	l = append(l, r2.Instrs...)

	switch e.Op {
	case ir.Add, ir.Sub, ir.Xor:
		l = append(l,
			asm.Mov{Dst: res, Src: l1.Arg},
			asm.BinOp{Op: binOp(e.Op), Dst: res, Src: r2.Arg},
		)
	case ir.Mul:
		l = append(l,
			asm.Mov{Dst: res, Src: l1.Arg},
			asm.IMul{Dst: res, Src: r2.Arg},
		)
	case ir.Div, ir.Mod:
		out := asm.RAX
		if e.Op == ir.Mod {
			out = asm.RDX
		}

		l = append(l,
			asm.Mov{Dst: asm.RAX, Src: l1.Arg},
			asm.Cqo{},
			asm.IDiv{Src: r2.Arg},
			asm.Mov{Dst: res, Src: out},
		)
	}

	return result(l, res)
}

func (t *Tiler) tileCommutative(e *ir.Binary) *Result {
	if !e.Op.Commutative() {
		return nil
	}

	res := t.temps.Next()
	r2 := t.Expr(e.R)
	l1 := t.regOrMem(e.L)

	l := []asm.Instr{asm.Comment{Text: "commutative: " + e.String()}}
	l = append(l, r2.Instrs...)
	l = append(l, l1.Instrs...)
	l = append(l, asm.Mov{Dst: res, Src: r2.Arg})

	if e.Op == ir.Mul {
		l = append(l, asm.IMul{Dst: res, Src: l1.Arg})
	} else {
		l = append(l, asm.BinOp{Op: binOp(e.Op), Dst: res, Src: l1.Arg})
	}

	return result(l, res)
}

func (t *Tiler) tileCompare(e *ir.Binary) *Result {
	cond, ok := conds[e.Op]
	if !ok {
		return nil
	}

	res := t.temps.Next()
	l1 := t.Expr(e.L)
	r2 := t.Expr(e.R)

	l := []asm.Instr{asm.Comment{Text: "compare: " + e.String()}}
	l = append(l, l1.Instrs...)
	l = append(l, r2.Instrs...)
	l = append(l,
		asm.Cmp{L: l1.Arg, R: r2.Arg},
		asm.Set{Cond: cond, Dst: asm.RAX},
		asm.Mov{Dst: res, Src: asm.RAX},
	)

	return result(l, res)
}

func (t *Tiler) tileLea(e *ir.Binary) *Result {
	res := t.temps.Next()

	m := t.Address(e)
	if m == nil {
		return nil
	}

	l := []asm.Instr{asm.Comment{Text: "lea: " + e.String()}}
	l = append(l, m.Instrs...)
	l = append(l, asm.Lea{Dst: res, Src: m.Arg.(asm.Mem)})

	return result(l, res)
}

func (t *Tiler) tileIMul3(e *ir.Binary) *Result {
	c, ok := e.R.(*ir.Const)
	if e.Op != ir.Mul || !ok || !asm.Fits32(c.Value) {
		return nil
	}

	x := t.regOrMem(e.L)
	res := t.temps.Next()

	l := []asm.Instr{asm.Comment{Text: "imul3: " + e.String()}}
	l = append(l, x.Instrs...)
	l = append(l, asm.IMul3{Dst: res, Src: x.Arg, Imm: c.Value})

	return result(l, res)
}

func (t *Tiler) tileShl(e *ir.Binary) *Result {
	c, ok := e.R.(*ir.Const)
	if e.Op != ir.Mul || !ok || c.Value <= 0 || c.Value&(c.Value-1) != 0 {
		return nil
	}

	res := t.temps.Next()
	x := t.arg(e.L)

	l := []asm.Instr{asm.Comment{Text: "shl: " + e.String()}}
	l = append(l, x.Instrs...)
	l = append(l,
		asm.Mov{Dst: res, Src: x.Arg},
		asm.Shl{Dst: res, Count: bits.TrailingZeros64(uint64(c.Value))},
	)

	return result(l, res)
}

func binOp(op ir.Op) asm.OpKind {
	switch op {
	case ir.Add:
		return asm.Add
	case ir.Sub:
		return asm.Sub
	case ir.Xor:
		return asm.Xor
	}

	panic(errors.New("not a simple binary op: %v", op))
}
