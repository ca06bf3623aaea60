package asm

type (
	// Reg is a machine register name or an abstract register name.
	Reg string

	// Arg is one of Const, Reg or Mem.
	Arg any

	// Const is an immediate or a symbol when Name is set.
	Const struct {
		Value int64
		Name  string
	}

	// Mem is [Base + Index*Scale + Disp].
	// Empty Base means no base, zero Scale means no index.
	Mem struct {
		Base  Reg
		Index Reg
		Scale int
		Disp  Const
	}

	Cond int

	OpKind int

	Instr any

	MovAbs struct {
		Dst   Reg
		Value int64
	}

	// Mov is a register or memory move.
	// At most one of Dst and Src is a Mem.
	Mov struct {
		Dst Arg
		Src Arg
	}

	Lea struct {
		Dst Reg
		Src Mem
	}

	Cmp struct {
		L Arg
		R Arg
	}

	// Set writes 0 or 1 to Dst depending on flags.
	Set struct {
		Cond Cond
		Dst  Reg
	}

	Jump struct {
		Cond  Cond
		Label string
	}

	Call struct {
		Target Arg
	}

	Ret struct{}

	BinOp struct {
		Op  OpKind
		Dst Arg
		Src Arg
	}

	IMul struct {
		Dst Reg
		Src Arg
	}

	IMul3 struct {
		Dst Reg
		Src Arg
		Imm int64
	}

	Cqo struct{}

	IDiv struct {
		Src Arg
	}

	Neg struct {
		Dst Arg
	}

	Shl struct {
		Dst   Arg
		Count int
	}

	Push struct {
		Src Arg
	}

	PopRBP struct{}

	Label struct {
		Name string
	}

	Comment struct {
		Text string
	}

	Global struct {
		Name    string
		Content string
	}

	Program struct {
		Globals []Global
		Funcs   []string
		Instrs  []Instr
	}
)

const (
	Jmp Cond = iota
	Je
	Jne
	Jl
	Jle
	Jg
	Jge
	Jz
	Jnz
)

const (
	Add OpKind = iota
	Sub
	Xor
)

func Imm(v int64) Const { return Const{Value: v} }
func Sym(name string) Const { return Const{Name: name} }
func MemReg(r Reg) Mem { return Mem{Base: r} }
func MemRel(r Reg, d int64) Mem { return Mem{Base: r, Disp: Imm(d)} }
func MemSym(name string) Mem { return Mem{Base: RIP, Disp: Sym(name)} }
func MemIdx(r Reg, s int) Mem { return Mem{Index: r, Scale: s} }
func (m Mem) HasIndex() bool { return m.Scale != 0 }
func (c Const) IsSymbol() bool { return c.Name != "" }
func (c Cond) Conditional() bool { return c != Jmp }

// Regs calls f for every register m addresses.
func (m Mem) Regs(f func(Reg)) {
	if m.Base != "" && m.Base != RIP {
		f(m.Base)
	}

	if m.HasIndex() {
		f(m.Index)
	}
}

// Fits32 reports whether v can be encoded as a sign-extended 32-bit immediate.
func Fits32(v int64) bool {
	return v >= -1<<31 && v < 1<<31
}

// MovConst loads v into r picking movabs for wide values.
func MovConst(r Reg, v int64) Instr {
	if Fits32(v) {
		return Mov{Dst: r, Src: Imm(v)}
	}

	return MovAbs{Dst: r, Value: v}
}

func (c Cond) Eval(l, r int64) bool {
	switch c {
	case Jmp:
		return true
	case Je:
		return l == r
	case Jne:
		return l != r
	case Jl:
		return l < r
	case Jle:
		return l <= r
	case Jg:
		return l > r
	case Jge:
		return l >= r
	case Jz:
		return l-r == 0
	case Jnz:
		return l-r != 0
	default:
		panic(c)
	}
}
