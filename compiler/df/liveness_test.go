package df

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/tiler/compiler/asm"
)

func TestLivenessStraight(t *testing.T) {
	code := []asm.Instr{
		asm.Mov{Dst: asm.Reg("a"), Src: asm.Imm(1)},
		asm.Mov{Dst: asm.Reg("b"), Src: asm.Imm(2)},
		asm.BinOp{Op: asm.Add, Dst: asm.Reg("a"), Src: asm.Reg("b")},
		asm.Mov{Dst: asm.RAX, Src: asm.Reg("a")},
		asm.Ret{},
	}

	l := Analyze(code, true)

	assert.ElementsMatch(t, []asm.Reg{"a"}, l.LiveOut(0))
	assert.ElementsMatch(t, []asm.Reg{"a", "b"}, l.LiveOut(1))
	assert.ElementsMatch(t, []asm.Reg{"a"}, l.LiveOut(2))
	assert.ElementsMatch(t, []asm.Reg{asm.RAX}, l.LiveOut(3))
	assert.Empty(t, l.LiveOut(4))

	a, ok := l.Vars.Lookup("a")
	require.True(t, ok)
	assert.True(t, l.Uses[2].IsSet(a))
	assert.True(t, l.Defs[2].IsSet(a))
	assert.False(t, l.Vars.IsMachine(a))
	assert.True(t, l.Vars.IsMachine(asm.RAX.Index()))
}

func TestLivenessLoop(t *testing.T) {
	code := []asm.Instr{
		asm.Mov{Dst: asm.Reg("i"), Src: asm.Imm(0)},
		asm.Mov{Dst: asm.Reg("s"), Src: asm.Imm(0)},
		asm.Label{Name: "LOOP"},
		asm.Cmp{L: asm.Reg("i"), R: asm.Imm(10)},
		asm.Jump{Cond: asm.Jge, Label: "END"},
		asm.BinOp{Op: asm.Add, Dst: asm.Reg("s"), Src: asm.Reg("i")},
		asm.BinOp{Op: asm.Add, Dst: asm.Reg("i"), Src: asm.Imm(1)},
		asm.Jump{Cond: asm.Jmp, Label: "LOOP"},
		asm.Label{Name: "END"},
		asm.Mov{Dst: asm.RAX, Src: asm.Reg("s")},
		asm.Comment{Text: "end"},
	}

	l := Analyze(code, true)

	assert.ElementsMatch(t, []asm.Reg{"i", "s"}, l.LiveOut(1))
	assert.ElementsMatch(t, []asm.Reg{"i", "s"}, l.LiveOut(4))
	assert.ElementsMatch(t, []asm.Reg{"i", "s"}, l.LiveOut(7))
	assert.ElementsMatch(t, []asm.Reg{"s"}, l.LiveOut(8))
	assert.ElementsMatch(t, []asm.Reg{asm.RAX}, l.LiveOut(9))

	last := len(code) - 1
	assert.True(t, l.Uses[last].IsSet(asm.RAX.Index()))
}

func TestUsesDefsCall(t *testing.T) {
	var uses, defs []asm.Reg

	UsesDefs(asm.Call{Target: asm.Reg("f")}, false, false, func(r asm.Reg) {
		uses = append(uses, r)
	}, func(r asm.Reg) {
		defs = append(defs, r)
	})

	assert.Contains(t, uses, asm.Reg("f"))
	assert.Subset(t, uses, asm.ArgRegs[:])
	assert.ElementsMatch(t, asm.CallerSaved[:], defs)
}

func TestSuccUndefinedLabel(t *testing.T) {
	assert.Panics(t, func() {
		Succ([]asm.Instr{asm.Jump{Cond: asm.Jmp, Label: "nowhere"}})
	})
}
