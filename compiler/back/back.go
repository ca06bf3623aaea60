package back

import (
	"context"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/ir"
	"github.com/slowlang/tiler/compiler/optimize"
	"github.com/slowlang/tiler/compiler/regalloc"
	"github.com/slowlang/tiler/compiler/tiling"
)

type (
	// Config tunes code generation.
	// Zero value is the iterated coalescing allocator with comments kept.
	Config struct {
		CheckInvariant bool
		RemoveComments bool

		// Allocator is "irc" (default) or "naive".
		Allocator string
	}

	Compiler struct {
		Config
	}
)

const (
	AllocatorIRC   = "irc"
	AllocatorNaive = "naive"
)

func New(cfg Config) *Compiler {
	return &Compiler{Config: cfg}
}

// Generate compiles every function of u into one assembly program.
func Generate(ctx context.Context, u *ir.Unit, cfg Config) (*asm.Program, error) {
	return New(cfg).CompileUnit(ctx, u)
}

func (c *Compiler) CompileUnit(ctx context.Context, u *ir.Unit) (p *asm.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile unit", "funcs", len(u.Funcs), "globals", len(u.Globals), "allocator", c.Allocator)
	defer tr.Finish("err", &err)

	switch c.Allocator {
	case "", AllocatorIRC, AllocatorNaive:
	default:
		return nil, errors.New("unknown allocator: %q", c.Allocator)
	}

	p = &asm.Program{}

	for _, g := range u.Globals {
		p.Globals = append(p.Globals, asm.Global{Name: g.Name, Content: g.Content})
	}

	for _, f := range u.Funcs {
		code, err := c.compileFunc(ctx, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}

		p.Funcs = append(p.Funcs, f.Name)
		p.Instrs = append(p.Instrs, code...)
	}

	if tr.If("dump_asm") {
		for i, x := range p.Instrs {
			tr.Printw("asm", "i", i, "typ", tlog.NextAsType, x, "text", asm.String(x))
		}
	}

	return p, nil
}

func (c *Compiler) compileFunc(ctx context.Context, f *ir.Func) (_ []asm.Instr, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile func", "name", f.Name, "args", len(f.Args), "stmts", len(f.Body))
	defer tr.Finish("err", &err)

	err = checkTemps(f)
	if err != nil {
		return nil, err
	}

	temps := &asm.Temps{}
	t := tiling.New(f.Name, temps)

	code := ArgMoves(f.Args)
	code = append(code, t.Function(f.Body)...)

	tr.V("tiling").Printw("tiled", "instrs", len(code), "misses", t.Misses(), "temps", temps.Issued())

	code = optimize.Optimize(code, c.RemoveComments)

	var res regalloc.Result

	if c.Allocator == AllocatorNaive {
		res = regalloc.Naive(code)
	} else {
		code = regalloc.SaveCalleeSaved(code)
		res = regalloc.Allocate(ctx, code, temps, f.HasReturn, c.CheckInvariant)
	}

	code = optimize.Optimize(res.Instrs, c.RemoveComments)

	return c.frame(f, code, res.Slots), nil
}

// ArgMoves copies incoming System V arguments into the parameter temps.
func ArgMoves(args []string) []asm.Instr {
	l := make([]asm.Instr, len(args))

	for i, a := range args {
		var src asm.Arg

		if i < len(asm.ArgRegs) {
			src = asm.ArgRegs[i]
		} else {
			src = asm.MemRel(asm.RBP, int64(16+8*(i-len(asm.ArgRegs))))
		}

		l[i] = asm.Mov{Dst: asm.Reg(a), Src: src}
	}

	return l
}

// frame adds the function label, prologue and epilogue.
// A leaf function without slots and stack arguments doesn't set up rbp.
// Non-leaf functions keep rsp 16 byte aligned.
func (c *Compiler) frame(f *ir.Func, code []asm.Instr, slots int) []asm.Instr {
	leaf := true

	for _, x := range code {
		if _, ok := x.(asm.Call); ok {
			leaf = false
			break
		}
	}

	framed := !leaf || slots != 0 || len(f.Args) > len(asm.ArgRegs)

	if !leaf && slots%2 != 0 {
		slots++
	}

	l := make([]asm.Instr, 0, len(code)+10)
	l = append(l, asm.Label{Name: f.Name})

	comment := func(what string) {
		if !c.RemoveComments {
			l = append(l, asm.Comment{Text: f.Name + " " + what})
		}
	}

	comment("prologue starts")

	if framed {
		l = append(l,
			asm.Push{Src: asm.RBP},
			asm.Mov{Dst: asm.RBP, Src: asm.RSP},
		)
	}

	if slots != 0 {
		l = append(l, asm.BinOp{Op: asm.Sub, Dst: asm.RSP, Src: asm.Imm(int64(8 * slots))})
	}

	comment("prologue ends")

	l = append(l, code...)

	comment("epilogue starts")

	if framed {
		l = append(l,
			asm.Mov{Dst: asm.RSP, Src: asm.RBP},
			asm.PopRBP{},
		)
	}

	l = append(l, asm.Ret{})

	comment("epilogue ends")

	return l
}

// checkTemps rejects temps clashing with machine or generated register names.
func checkTemps(f *ir.Func) error {
	for _, t := range f.Temps() {
		r := asm.Reg(t)

		switch {
		case r.IsMachine(), r == asm.RIP:
			return errors.New("temp named as a machine register: %v", t)
		case strings.HasPrefix(t, asm.AbstractPrefix), strings.HasPrefix(t, asm.CalleeSavedPrefix):
			return errors.New("temp name is reserved: %v", t)
		}
	}

	return nil
}
