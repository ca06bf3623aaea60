package asm

import "strconv"

type (
	// Temps issues abstract register names for one function.
	Temps struct {
		n int
	}
)

const (
	RAX Reg = "rax"
	RBX Reg = "rbx"
	RCX Reg = "rcx"
	RDX Reg = "rdx"
	RSI Reg = "rsi"
	RDI Reg = "rdi"
	RSP Reg = "rsp"
	RBP Reg = "rbp"
	R8  Reg = "r8"
	R9  Reg = "r9"
	R10 Reg = "r10"
	R11 Reg = "r11"
	R12 Reg = "r12"
	R13 Reg = "r13"
	R14 Reg = "r14"
	R15 Reg = "r15"

	RIP Reg = "rip"
)

const (
	AbstractPrefix    = "_ABSTRACT_REG_"
	CalleeSavedPrefix = "_CALLEE_SAVED_REG_"
)

// Machine lists machine registers in their index order.
var Machine = [...]Reg{RAX, RBX, RCX, RDX, RSI, RDI, RSP, RBP, R8, R9, R10, R11, R12, R13, R14, R15}

var (
	ArgRegs     = [...]Reg{RDI, RSI, RDX, RCX, R8, R9}
	CallerSaved = [...]Reg{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}
	CalleeSaved = [...]Reg{RBX, R12, R13, R14, R15}
)

var machineIndex = func() map[Reg]int {
	m := make(map[Reg]int, len(Machine))

	for i, r := range Machine {
		m[r] = i
	}

	return m
}()

var byteNames = map[Reg]string{
	RAX: "al", RBX: "bl", RCX: "cl", RDX: "dl",
	RSI: "sil", RDI: "dil", RSP: "spl", RBP: "bpl",
	R8: "r8b", R9: "r9b", R10: "r10b", R11: "r11b",
	R12: "r12b", R13: "r13b", R14: "r14b", R15: "r15b",
}

func (r Reg) IsMachine() bool {
	_, ok := machineIndex[r]
	return ok
}

// Index returns the machine register index or -1.
func (r Reg) Index() int {
	i, ok := machineIndex[r]
	if !ok {
		return -1
	}

	return i
}

func (r Reg) IsCalleeSaved() bool {
	for _, c := range CalleeSaved {
		if r == c {
			return true
		}
	}

	return false
}

func (r Reg) Byte() string {
	return byteNames[r]
}

func CalleeSavedTemp(r Reg) Reg {
	return CalleeSavedPrefix + r
}

func (t *Temps) Next() Reg {
	r := Reg(AbstractPrefix + strconv.Itoa(t.n))
	t.n++

	return r
}

// Issued is the number of registers handed out so far.
func (t *Temps) Issued() int { return t.n }
