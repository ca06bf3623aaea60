package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatArgs(t *testing.T) {
	for _, tc := range []struct {
		a   Arg
		exp string
	}{
		{RAX, "rax"},
		{Imm(-5), "-5"},
		{Sym("main"), "main"},
		{MemReg(RBX), "qword ptr [rbx]"},
		{MemRel(RBP, -16), "qword ptr [rbp-16]"},
		{MemRel(RBP, 24), "qword ptr [rbp+24]"},
		{MemSym("hello"), "qword ptr [rip+hello]"},
		{MemIdx(RCX, 8), "qword ptr [rcx*8]"},
		{Mem{Base: RAX, Index: RCX, Scale: 4, Disp: Imm(8)}, "qword ptr [rax+rcx*4+8]"},
		{Mem{Disp: Imm(64)}, "qword ptr [64]"},
	} {
		assert.Equal(t, tc.exp, string(AppendArg(nil, tc.a)))
	}
}

func TestFormatInstrs(t *testing.T) {
	assert.Equal(t, `main:
movabs rax, 4294967296
mov rbx, qword ptr [rbp-8]
lea rcx, qword ptr [rip+hello]
cmp rdi, 0
sete al
movzx rax, al
jne L1
call _builtin_println
add rsp, 16
imul rdx, rsi
imul rdx, rsi, 3
cqo
idiv r8
neg r9
shl r10, 3
push rbp
pop rbp
ret
## done`, Text([]Instr{
		Label{Name: "main"},
		MovConst(RAX, 1<<32),
		Mov{Dst: RBX, Src: MemRel(RBP, -8)},
		Lea{Dst: RCX, Src: MemSym("hello")},
		Cmp{L: RDI, R: Imm(0)},
		Set{Cond: Je, Dst: RAX},
		Jump{Cond: Jne, Label: "L1"},
		Call{Target: Sym("_builtin_println")},
		BinOp{Op: Add, Dst: RSP, Src: Imm(16)},
		IMul{Dst: RDX, Src: RSI},
		IMul3{Dst: RDX, Src: RSI, Imm: 3},
		Cqo{},
		IDiv{Src: R8},
		Neg{Dst: R9},
		Shl{Dst: R10, Count: 3},
		Push{Src: RBP},
		PopRBP{},
		Ret{},
		Comment{Text: "done"},
	}))
}

func TestMovConst(t *testing.T) {
	assert.Equal(t, Mov{Dst: RAX, Src: Imm(-1 << 31)}, MovConst(RAX, -1<<31))
	assert.Equal(t, MovAbs{Dst: RAX, Value: 1 << 31}, MovConst(RAX, 1<<31))
}

func TestProgramText(t *testing.T) {
	p := &Program{
		Globals: []Global{{Name: "s", Content: "ab"}},
		Funcs:   []string{"f"},
		Instrs: []Instr{
			Label{Name: "f"},
			Set{Cond: Jl, Dst: RCX},
			Ret{},
		},
	}

	assert.Equal(t, `	.intel_syntax noprefix
	.text
	.globl f

f:
	setl cl
	movzx rcx, cl
	ret

	.data
	.p2align 3
s:
	.quad 2
	.quad 97
	.quad 98
`, p.String())
}

func TestRegs(t *testing.T) {
	assert.True(t, RAX.IsMachine())
	assert.False(t, RIP.IsMachine())
	assert.False(t, Reg("x").IsMachine())
	assert.Equal(t, 0, RAX.Index())
	assert.Equal(t, 15, R15.Index())
	assert.Equal(t, -1, Reg("x").Index())
	assert.True(t, R12.IsCalleeSaved())
	assert.False(t, RAX.IsCalleeSaved())
	assert.Equal(t, "r8b", R8.Byte())
	assert.Equal(t, Reg("_CALLEE_SAVED_REG_rbx"), CalleeSavedTemp(RBX))

	var tmp Temps
	assert.Equal(t, Reg("_ABSTRACT_REG_0"), tmp.Next())
	assert.Equal(t, Reg("_ABSTRACT_REG_1"), tmp.Next())
	assert.Equal(t, 2, tmp.Issued())
}

func TestCondEval(t *testing.T) {
	assert.True(t, Jmp.Eval(1, 2))
	assert.True(t, Jl.Eval(1, 2))
	assert.False(t, Jg.Eval(1, 2))
	assert.True(t, Jge.Eval(2, 2))
	assert.True(t, Jz.Eval(3, 3))
	assert.True(t, Jnz.Eval(3, 4))
}
