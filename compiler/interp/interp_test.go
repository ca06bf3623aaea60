package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/tiler/compiler/asm"
)

func TestRunArith(t *testing.T) {
	p := &asm.Program{
		Instrs: []asm.Instr{
			asm.Label{Name: "f"},
			asm.Mov{Dst: asm.RAX, Src: asm.RDI},
			asm.IMul{Dst: asm.RAX, Src: asm.RSI},
			asm.BinOp{Op: asm.Sub, Dst: asm.RAX, Src: asm.Imm(2)},
			asm.Cqo{},
			asm.Mov{Dst: asm.RCX, Src: asm.Imm(4)},
			asm.IDiv{Src: asm.RCX},
			asm.Shl{Dst: asm.RAX, Count: 3},
			asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: asm.RDX},
			asm.Ret{},
		},
	}

	res, err := Run(context.Background(), p, "f", 5, 6)
	require.NoError(t, err)

	// (5*6-2) = 28, 28/4 = 7, 28%4 = 0
	assert.Equal(t, int64(56), res.RAX)
	assert.Equal(t, 10, res.Steps)
}

func TestRunNegativeDivision(t *testing.T) {
	p := &asm.Program{
		Instrs: []asm.Instr{
			asm.Label{Name: "f"},
			asm.Mov{Dst: asm.RAX, Src: asm.RDI},
			asm.Cqo{},
			asm.IDiv{Src: asm.RSI},
			asm.Mov{Dst: asm.RAX, Src: asm.RDX},
			asm.Ret{},
		},
	}

	res, err := Run(context.Background(), p, "f", -7, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), res.RAX)
}

func TestRunLoopAndCall(t *testing.T) {
	p := &asm.Program{
		Instrs: []asm.Instr{
			asm.Label{Name: "sum"},
			asm.Mov{Dst: asm.RAX, Src: asm.Imm(0)},
			asm.Label{Name: "loop"},
			asm.Cmp{L: asm.RDI, R: asm.Imm(0)},
			asm.Jump{Cond: asm.Jle, Label: "done"},
			asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: asm.RDI},
			asm.BinOp{Op: asm.Sub, Dst: asm.RDI, Src: asm.Imm(1)},
			asm.Jump{Cond: asm.Jmp, Label: "loop"},
			asm.Label{Name: "done"},
			asm.Ret{},

			asm.Label{Name: "main"},
			asm.Push{Src: asm.RBP},
			asm.Mov{Dst: asm.RBP, Src: asm.RSP},
			asm.Call{Target: asm.Sym("sum")},
			asm.Set{Cond: asm.Je, Dst: asm.RCX},
			asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: asm.RCX},
			asm.Mov{Dst: asm.RSP, Src: asm.RBP},
			asm.PopRBP{},
			asm.Ret{},
		},
	}

	res, err := Run(context.Background(), p, "main", 4)
	require.NoError(t, err)

	// 4+3+2+1 and the last cmp was 0 == 0
	assert.Equal(t, int64(11), res.RAX)
}

func TestRunStackArgs(t *testing.T) {
	p := &asm.Program{
		Instrs: []asm.Instr{
			asm.Label{Name: "f"},
			asm.Push{Src: asm.RBP},
			asm.Mov{Dst: asm.RBP, Src: asm.RSP},
			asm.Mov{Dst: asm.RAX, Src: asm.MemRel(asm.RBP, 16)},
			asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: asm.MemRel(asm.RBP, 24)},
			asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: asm.R9},
			asm.Mov{Dst: asm.RSP, Src: asm.RBP},
			asm.PopRBP{},
			asm.Ret{},
		},
	}

	res, err := Run(context.Background(), p, "f", 1, 2, 3, 4, 5, 6, 7, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(21), res.RAX)
}

func TestRunBuiltins(t *testing.T) {
	p := &asm.Program{
		Globals: []asm.Global{
			{Name: "hello", Content: "hello, "},
		},
		Instrs: []asm.Instr{
			asm.Label{Name: "main"},
			asm.Push{Src: asm.RBP},
			asm.Mov{Dst: asm.RBP, Src: asm.RSP},
			asm.Push{Src: asm.RBX},
			asm.Push{Src: asm.R12},

			asm.Call{Target: asm.Sym("_builtin_intToString")},
			asm.Mov{Dst: asm.RBX, Src: asm.RAX},

			asm.Lea{Dst: asm.RDI, Src: asm.MemSym("hello")},
			asm.Mov{Dst: asm.RSI, Src: asm.RBX},
			asm.Call{Target: asm.Sym("_builtin_stringConcat")},
			asm.Mov{Dst: asm.R12, Src: asm.RAX},

			asm.Mov{Dst: asm.RDI, Src: asm.R12},
			asm.Call{Target: asm.Sym("_builtin_println")},

			asm.Mov{Dst: asm.RDI, Src: asm.RBX},
			asm.Call{Target: asm.Sym("_builtin_stringToInt")},

			asm.Mov{Dst: asm.RCX, Src: asm.MemSym("hello")},
			asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: asm.RCX},

			asm.Mov{Dst: asm.RSP, Src: asm.RBP},
			asm.PopRBP{},
			asm.Ret{},
		},
	}

	res, err := Run(context.Background(), p, "main", 42)
	require.NoError(t, err)

	assert.Equal(t, "hello, 42\n", res.Output)
	assert.Equal(t, int64(42+7), res.RAX)
}

func TestRunMalloc(t *testing.T) {
	p := &asm.Program{
		Instrs: []asm.Instr{
			asm.Label{Name: "main"},
			asm.Push{Src: asm.RBP},
			asm.Mov{Dst: asm.RBP, Src: asm.RSP},
			asm.Mov{Dst: asm.RDI, Src: asm.Imm(16)},
			asm.Call{Target: asm.Sym("_builtin_malloc")},
			asm.Mov{Dst: asm.MemRel(asm.RAX, 8), Src: asm.Imm(9)},
			asm.Mov{Dst: asm.RCX, Src: asm.Imm(1)},
			asm.Mov{Dst: asm.RDX, Src: asm.Mem{Base: asm.RAX, Index: asm.RCX, Scale: 8}},
			asm.BinOp{Op: asm.Add, Dst: asm.RDX, Src: asm.MemReg(asm.RAX)},
			asm.Mov{Dst: asm.RAX, Src: asm.RDX},
			asm.Mov{Dst: asm.RSP, Src: asm.RBP},
			asm.PopRBP{},
			asm.Ret{},
		},
	}

	res, err := Run(context.Background(), p, "main")
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.RAX)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	prog := func(l ...asm.Instr) *asm.Program {
		return &asm.Program{Instrs: append([]asm.Instr{asm.Label{Name: "f"}}, l...)}
	}

	_, err := Run(ctx, prog(
		asm.Cqo{},
		asm.IDiv{Src: asm.RDI},
		asm.Ret{},
	), "f", 0)
	assert.ErrorIs(t, err, ErrDivByZero)

	_, err = Run(ctx, prog(
		asm.Mov{Dst: asm.RAX, Src: asm.MemRel(asm.RSP, 4)},
		asm.Ret{},
	), "f")
	assert.ErrorIs(t, err, ErrUnaligned)

	_, err = Run(ctx, prog(
		asm.Mov{Dst: asm.RAX, Src: asm.MemReg(asm.RDI)},
		asm.Ret{},
	), "f", 0)
	assert.ErrorIs(t, err, ErrSegfault)

	_, err = Run(ctx, prog(
		asm.Jump{Cond: asm.Jmp, Label: "nowhere"},
	), "f")
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, err = Run(ctx, prog(), "g")
	assert.ErrorIs(t, err, ErrUnknownLabel)

	m := New(prog(
		asm.Jump{Cond: asm.Jmp, Label: "f"},
	))
	m.MaxSteps = 100

	res, err := m.Call(ctx, "f")
	assert.ErrorIs(t, err, ErrStepLimit)
	assert.Equal(t, 100, res.Steps)

	_, err = Run(ctx, &asm.Program{
		Globals: []asm.Global{{Name: "msg", Content: "boom"}},
		Instrs: []asm.Instr{
			asm.Label{Name: "f"},
			asm.Lea{Dst: asm.RDI, Src: asm.MemSym("msg")},
			asm.Call{Target: asm.Sym("_builtin_throw")},
			asm.Ret{},
		},
	}, "f")
	assert.ErrorIs(t, err, ErrPanic)
	assert.ErrorContains(t, err, "boom")
}

func TestIsBuiltin(t *testing.T) {
	assert.True(t, IsBuiltin("_builtin_println"))
	assert.False(t, IsBuiltin("println"))
}
