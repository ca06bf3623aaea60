package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
)

var condNames = [...]string{
	Jmp: "jmp",
	Je:  "je",
	Jne: "jne",
	Jl:  "jl",
	Jle: "jle",
	Jg:  "jg",
	Jge: "jge",
	Jz:  "jz",
	Jnz: "jnz",
}

var opNames = [...]string{
	Add: "add",
	Sub: "sub",
	Xor: "xor",
}

func (c Cond) String() string { return condNames[c] }
func (o OpKind) String() string { return opNames[o] }

func (c Const) String() string {
	if c.IsSymbol() {
		return c.Name
	}

	return strconv.FormatInt(c.Value, 10)
}

func (m Mem) String() string {
	return string(AppendArg(nil, m))
}

func AppendArg(b []byte, a Arg) []byte {
	switch a := a.(type) {
	case Reg:
		return append(b, a...)
	case Const:
		if a.IsSymbol() {
			return append(b, a.Name...)
		}

		return strconv.AppendInt(b, a.Value, 10)
	case Mem:
		b = append(b, "qword ptr ["...)
		st := len(b)

		if a.Base != "" {
			b = append(b, a.Base...)
		}

		if a.HasIndex() {
			if len(b) != st {
				b = append(b, '+')
			}

			b = hfmt.Appendf(b, "%s*%d", string(a.Index), a.Scale)
		}

		switch d := a.Disp; {
		case d.IsSymbol():
			if len(b) != st {
				b = append(b, '+')
			}

			b = append(b, d.Name...)
		case len(b) == st:
			b = strconv.AppendInt(b, d.Value, 10)
		case d.Value > 0:
			b = append(b, '+')
			b = strconv.AppendInt(b, d.Value, 10)
		case d.Value < 0:
			b = strconv.AppendInt(b, d.Value, 10)
		}

		return append(b, ']')
	default:
		panic(fmt.Sprintf("unsupported arg: %T", a))
	}
}

func AppendInstr(b []byte, x Instr) []byte {
	switch x := x.(type) {
	case MovAbs:
		b = hfmt.Appendf(b, "movabs %s, %d", string(x.Dst), x.Value)
	case Mov:
		b = appendOp2(b, "mov", x.Dst, x.Src)
	case Lea:
		b = appendOp2(b, "lea", x.Dst, x.Src)
	case Cmp:
		b = appendOp2(b, "cmp", x.L, x.R)
	case Set:
		short := x.Dst.Byte()
		b = hfmt.Appendf(b, "set%s %s\nmovzx %s, %s", x.Cond.String()[1:], short, string(x.Dst), short)
	case Jump:
		b = hfmt.Appendf(b, "%s %s", x.Cond.String(), x.Label)
	case Call:
		b = append(b, "call "...)
		b = AppendArg(b, x.Target)
	case Ret:
		b = append(b, "ret"...)
	case BinOp:
		b = appendOp2(b, x.Op.String(), x.Dst, x.Src)
	case IMul:
		b = appendOp2(b, "imul", x.Dst, x.Src)
	case IMul3:
		b = appendOp2(b, "imul", x.Dst, x.Src)
		b = append(b, ", "...)
		b = strconv.AppendInt(b, x.Imm, 10)
	case Cqo:
		b = append(b, "cqo"...)
	case IDiv:
		b = append(b, "idiv "...)
		b = AppendArg(b, x.Src)
	case Neg:
		b = append(b, "neg "...)
		b = AppendArg(b, x.Dst)
	case Shl:
		b = append(b, "shl "...)
		b = AppendArg(b, x.Dst)
		b = hfmt.Appendf(b, ", %d", x.Count)
	case Push:
		b = append(b, "push "...)
		b = AppendArg(b, x.Src)
	case PopRBP:
		b = append(b, "pop rbp"...)
	case Label:
		b = append(b, x.Name...)
		b = append(b, ':')
	case Comment:
		b = append(b, "## "...)
		b = append(b, x.Text...)
	default:
		panic(fmt.Sprintf("unsupported instruction: %T", x))
	}

	return b
}

func appendOp2(b []byte, op string, d, s Arg) []byte {
	b = append(b, op...)
	b = append(b, ' ')
	b = AppendArg(b, d)
	b = append(b, ", "...)
	b = AppendArg(b, s)

	return b
}

func String(x Instr) string {
	return string(AppendInstr(nil, x))
}

// Text renders instructions one per line.
func Text(l []Instr) string {
	var b []byte

	for i, x := range l {
		if i != 0 {
			b = append(b, '\n')
		}

		b = AppendInstr(b, x)
	}

	return string(b)
}

// AppendText renders p as an assembler source file.
func (p *Program) AppendText(b []byte) []byte {
	b = append(b, "\t.intel_syntax noprefix\n\t.text\n"...)

	for _, f := range p.Funcs {
		b = hfmt.Appendf(b, "\t.globl %s\n", f)
	}

	for _, x := range p.Instrs {
		_, lab := x.(Label)
		if lab {
			b = append(b, '\n')
		}

		st := len(b)
		b = AppendInstr(b, x)

		if !lab {
			line := strings.ReplaceAll(string(b[st:]), "\n", "\n\t")
			b = append(b[:st], '\t')
			b = append(b, line...)
		}

		b = append(b, '\n')
	}

	if len(p.Globals) == 0 {
		return b
	}

	b = append(b, "\n\t.data\n\t.p2align 3\n"...)

	for _, g := range p.Globals {
		b = hfmt.Appendf(b, "%s:\n\t.quad %d\n", g.Name, len(g.Content))

		for _, c := range []byte(g.Content) {
			b = hfmt.Appendf(b, "\t.quad %d\n", c)
		}
	}

	return b
}

func (p *Program) String() string {
	return string(p.AppendText(nil))
}
