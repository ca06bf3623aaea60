package regalloc

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/tiler/compiler/asm"
)

func temp(i int) asm.Reg {
	return asm.Reg("t" + strconv.Itoa(i))
}

func lines(l ...string) string {
	return strings.Join(l, "\n")
}

func TestAllocateCoalesce(t *testing.T) {
	code := SaveCalleeSaved([]asm.Instr{
		asm.Mov{Dst: asm.Reg("a"), Src: asm.Imm(1)},
		asm.Mov{Dst: asm.Reg("b"), Src: asm.Reg("a")},
		asm.BinOp{Op: asm.Add, Dst: asm.Reg("b"), Src: asm.Imm(2)},
		asm.Mov{Dst: asm.RAX, Src: asm.Reg("b")},
	})

	res := Allocate(context.Background(), code, &asm.Temps{}, true, true)

	assert.Equal(t, 0, res.Slots)
	assert.Equal(t, 1, res.Rounds)

	assert.Equal(t, lines(
		"## 'mov rbx, rbx' is optimized away.",
		"## 'mov r12, r12' is optimized away.",
		"## 'mov r13, r13' is optimized away.",
		"## 'mov r14, r14' is optimized away.",
		"## 'mov r15, r15' is optimized away.",
		"mov rax, 1",
		"## 'mov rax, rax' is optimized away.",
		"add rax, 2",
		"## 'mov rax, rax' is optimized away.",
		"## 'mov rbx, rbx' is optimized away.",
		"## 'mov r12, r12' is optimized away.",
		"## 'mov r13, r13' is optimized away.",
		"## 'mov r14, r14' is optimized away.",
		"## 'mov r15, r15' is optimized away.",
		"## Dummy end of program.",
	), asm.Text(res.Instrs))
}

func pressure(n int) []asm.Instr {
	var l []asm.Instr

	for i := 0; i < n; i++ {
		l = append(l, asm.Mov{Dst: temp(i), Src: asm.Imm(int64(i))})
	}

	l = append(l, asm.Mov{Dst: asm.RAX, Src: asm.Imm(0)})

	for i := 0; i < n; i++ {
		l = append(l, asm.BinOp{Op: asm.Add, Dst: asm.RAX, Src: temp(i)})
	}

	return SaveCalleeSaved(l)
}

func TestAllocateSpill(t *testing.T) {
	res := Allocate(context.Background(), pressure(24), &asm.Temps{}, true, true)

	assert.Greater(t, res.Rounds, 1)
	assert.Greater(t, res.Slots, 0)

	used := map[int]bool{}

	for _, x := range res.Instrs {
		require.NotPanics(t, func() { CheckNoAbstract(x) }, "%v", asm.String(x))

		mapRegs(x, func(r asm.Reg) asm.Reg { return r }, func(m asm.Mem) asm.Mem {
			if id, ok := slotID(m); ok {
				used[id] = true
			}

			return m
		})
	}

	assert.Len(t, used, res.Slots)

	for id := 1; id <= res.Slots; id++ {
		assert.True(t, used[id], "slot %d", id)
	}
}

func TestAllocateNoPressure(t *testing.T) {
	res := Allocate(context.Background(), pressure(8), &asm.Temps{}, true, true)

	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, 0, res.Slots)

	for _, x := range res.Instrs {
		assert.NotPanics(t, func() { CheckNoAbstract(x) })
	}
}

func TestFinishCompactsSlots(t *testing.T) {
	code := []asm.Instr{
		asm.Mov{Dst: SlotMem(1), Src: asm.RBX},
		asm.Mov{Dst: asm.Reg("x"), Src: asm.Imm(5)},
		asm.Mov{Dst: SlotMem(2), Src: asm.Reg("x")},
		asm.Mov{Dst: asm.RAX, Src: SlotMem(2)},
		asm.Mov{Dst: asm.RBX, Src: SlotMem(1)},
		asm.Comment{Text: "Dummy end of program."},
	}

	a := &allocator{
		hasReturn: true,
		temps:     &asm.Temps{},
		slots: map[asm.Reg]int{
			asm.CalleeSavedTemp(asm.RBX): 1,
			"y":                          2,
		},
	}

	a.round(code)
	require.Empty(t, a.spilled)

	out, slots := a.finish(code)

	assert.Equal(t, 1, slots)
	assert.Equal(t, lines(
		"mov rax, 5",
		"mov qword ptr [rbp-8], rax",
		"mov rax, qword ptr [rbp-8]",
		"## Dummy end of program.",
	), asm.Text(out))
}

func TestSpillRewrite(t *testing.T) {
	a := asm.Reg("a")
	b := asm.Reg("b")

	s := &spiller{
		slots: map[asm.Reg]asm.Mem{a: SlotMem(1)},
		temps: &asm.Temps{},
	}

	for _, x := range []asm.Instr{
		asm.Mov{Dst: a, Src: b},
		asm.Mov{Dst: b, Src: a},
		asm.BinOp{Op: asm.Add, Dst: a, Src: asm.MemReg(a)},
		asm.IMul{Dst: a, Src: b},
		asm.Lea{Dst: a, Src: asm.MemRel(b, 8)},
		asm.Cmp{L: a, R: asm.Imm(1)},
		asm.Push{Src: a},
	} {
		s.instr(x)
	}

	assert.Equal(t, lines(
		"mov qword ptr [rbp-8], b",
		"mov b, qword ptr [rbp-8]",
		"mov _ABSTRACT_REG_0, qword ptr [rbp-8]",
		"mov _ABSTRACT_REG_1, qword ptr [rbp-8]",
		"add _ABSTRACT_REG_1, qword ptr [_ABSTRACT_REG_0]",
		"mov qword ptr [rbp-8], _ABSTRACT_REG_1",
		"mov _ABSTRACT_REG_2, qword ptr [rbp-8]",
		"imul _ABSTRACT_REG_2, b",
		"mov qword ptr [rbp-8], _ABSTRACT_REG_2",
		"lea _ABSTRACT_REG_3, qword ptr [b+8]",
		"mov qword ptr [rbp-8], _ABSTRACT_REG_3",
		"cmp qword ptr [rbp-8], 1",
		"push qword ptr [rbp-8]",
	), asm.Text(s.out))

	assert.Panics(t, func() {
		s.instr(asm.Set{Cond: asm.Je, Dst: a})
	})
}

func TestNaive(t *testing.T) {
	a := asm.Reg("a")
	b := asm.Reg("b")

	res := Naive([]asm.Instr{
		asm.Mov{Dst: a, Src: asm.Imm(1)},
		asm.Mov{Dst: b, Src: a},
		asm.BinOp{Op: asm.Add, Dst: b, Src: a},
		asm.Mov{Dst: asm.MemReg(b), Src: a},
		asm.Mov{Dst: asm.RAX, Src: b},
	})

	assert.Equal(t, 2, res.Slots)
	assert.Equal(t, lines(
		"mov qword ptr [rbp-8], 1",
		"mov r11, qword ptr [rbp-8]",
		"mov qword ptr [rbp-16], r11",
		"mov r11, qword ptr [rbp-8]",
		"add qword ptr [rbp-16], r11",
		"mov r9, qword ptr [rbp-16]",
		"mov r11, qword ptr [rbp-8]",
		"mov qword ptr [r9], r11",
		"mov rax, qword ptr [rbp-16]",
	), asm.Text(res.Instrs))

	for _, x := range res.Instrs {
		assert.NotPanics(t, func() { CheckNoAbstract(x) })
	}
}

func TestCheckNoAbstract(t *testing.T) {
	assert.NotPanics(t, func() { CheckNoAbstract(asm.Mov{Dst: asm.RAX, Src: asm.MemSym("g")}) })
	assert.Panics(t, func() { CheckNoAbstract(asm.Mov{Dst: asm.RAX, Src: asm.Reg("x")}) })
	assert.Panics(t, func() { CheckNoAbstract(asm.Lea{Dst: asm.RAX, Src: asm.MemRel("x", 8)}) })
}

func TestCheckInvariantFires(t *testing.T) {
	x := asm.Reg("x")
	y := asm.Reg("y")

	code := []asm.Instr{
		asm.Mov{Dst: x, Src: asm.Imm(1)},
		asm.Mov{Dst: y, Src: x},
		asm.BinOp{Op: asm.Add, Dst: y, Src: x},
		asm.Mov{Dst: asm.RAX, Src: y},
	}

	allocated := func(t *testing.T) *allocator {
		t.Helper()

		a := &allocator{
			check:     true,
			hasReturn: true,
			temps:     &asm.Temps{},
			slots:     make(map[asm.Reg]int),
		}

		require.NotPanics(t, func() { a.round(code) })
		require.Empty(t, a.spilled)
		require.NotPanics(t, a.checkInvariant)

		return a
	}

	t.Run("degree", func(t *testing.T) {
		a := allocated(t)
		n := a.id(x)

		a.setState(n, spillList)
		a.g.deg[n] = len(a.g.list[n]) + K

		assert.Panics(t, a.checkInvariant)
	})

	t.Run("node_partition", func(t *testing.T) {
		a := allocated(t)
		n := a.id(y)

		a.lists[simplifyList].Set(n)

		assert.Panics(t, a.checkInvariant)
	})

	t.Run("move_partition", func(t *testing.T) {
		a := allocated(t)
		require.NotEmpty(t, a.mstate)

		a.mlists[worklistMove].Set(0)

		assert.Panics(t, a.checkInvariant)
	})

	t.Run("disabled", func(t *testing.T) {
		a := allocated(t)
		a.check = false

		a.lists[simplifyList].Set(a.id(y))

		assert.NotPanics(t, a.checkInvariant)
	})
}
