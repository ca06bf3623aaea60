package ir

import (
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
)

type (
	// Expr is one of *Const, *Name, *Temp, *Mem, *Binary.
	// Nodes are compared by pointer identity.
	Expr interface {
		AppendTo(b []byte) []byte
		String() string

		expr()
	}

	// Stmt is one of *MoveTemp, *MoveMem, *Call, *Jump, *Label, *CJump, *Return.
	Stmt interface {
		AppendTo(b []byte) []byte
		String() string

		stmt()
	}

	Op string

	Const struct {
		Value int64
	}

	// Name is a global symbol address.
	Name struct {
		Name string
	}

	// Temp is a function local variable.
	Temp struct {
		Name string
	}

	// Mem is the word stored at Index.
	Mem struct {
		Index Expr
	}

	Binary struct {
		Op Op
		L  Expr
		R  Expr
	}

	MoveTemp struct {
		Temp *Temp
		Src  Expr
	}

	MoveMem struct {
		Index Expr
		Src   Expr
	}

	// Call calls Func and stores the result into Result if set.
	Call struct {
		Func   Expr
		Args   []Expr
		Result *Temp
	}

	Jump struct {
		Label string
	}

	Label struct {
		Name string
	}

	// CJump jumps to Label if Cond is not zero.
	CJump struct {
		Cond  Expr
		Label string
	}

	// Return with nil Value returns nothing.
	Return struct {
		Value Expr
	}

	Func struct {
		Name      string
		Args      []string
		HasReturn bool

		Body []Stmt
	}

	Global struct {
		Name    string
		Content string
	}

	Unit struct {
		Globals []Global
		Funcs   []*Func
	}
)

const (
	Add Op = "+"
	Sub Op = "-"
	Mul Op = "*"
	Div Op = "/"
	Mod Op = "%"
	Xor Op = "^"

	Lt Op = "<"
	Le Op = "<="
	Gt Op = ">"
	Ge Op = ">="
	Eq Op = "=="
	Ne Op = "!="
)

func C(v int64) *Const { return &Const{Value: v} }
func N(name string) *Name { return &Name{Name: name} }
func T(name string) *Temp { return &Temp{Name: name} }
func M(index Expr) *Mem { return &Mem{Index: index} }
func Bin(op Op, l, r Expr) *Binary { return &Binary{Op: op, L: l, R: r} }
func Move(t *Temp, src Expr) *MoveTemp { return &MoveTemp{Temp: t, Src: src} }

func (op Op) IsComparison() bool {
	switch op {
	case Lt, Le, Gt, Ge, Eq, Ne:
		return true
	}

	return false
}

// Commutative reports whether operands can be swapped.
func (op Op) Commutative() bool {
	return op == Add || op == Mul || op == Xor
}

func (*Const) expr() {}
func (*Name) expr() {}
func (*Temp) expr() {}
func (*Mem) expr() {}
func (*Binary) expr() {}

func (*MoveTemp) stmt() {}
func (*MoveMem) stmt() {}
func (*Call) stmt() {}
func (*Jump) stmt() {}
func (*Label) stmt() {}
func (*CJump) stmt() {}
func (*Return) stmt() {}

func (x *Const) AppendTo(b []byte) []byte { return strconv.AppendInt(b, x.Value, 10) }
func (x *Name) AppendTo(b []byte) []byte { return append(b, x.Name...) }
func (x *Temp) AppendTo(b []byte) []byte { return append(b, x.Name...) }

func (x *Mem) AppendTo(b []byte) []byte {
	b = append(b, "MEM["...)
	b = x.Index.AppendTo(b)

	return append(b, ']')
}

func (x *Binary) AppendTo(b []byte) []byte {
	b = append(b, '(')
	b = x.L.AppendTo(b)
	b = hfmt.Appendf(b, " %s ", string(x.Op))
	b = x.R.AppendTo(b)

	return append(b, ')')
}

func (x *MoveTemp) AppendTo(b []byte) []byte {
	b = x.Temp.AppendTo(b)
	b = append(b, " = "...)
	b = x.Src.AppendTo(b)

	return append(b, ';')
}

func (x *MoveMem) AppendTo(b []byte) []byte {
	b = M(x.Index).AppendTo(b)
	b = append(b, " = "...)
	b = x.Src.AppendTo(b)

	return append(b, ';')
}

func (x *Call) AppendTo(b []byte) []byte {
	if x.Result != nil {
		b = x.Result.AppendTo(b)
		b = append(b, " = "...)
	}

	b = x.Func.AppendTo(b)
	b = append(b, '(')

	for i, a := range x.Args {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = a.AppendTo(b)
	}

	return append(b, ");"...)
}

func (x *Jump) AppendTo(b []byte) []byte { return hfmt.Appendf(b, "goto %s;", x.Label) }
func (x *Label) AppendTo(b []byte) []byte { return hfmt.Appendf(b, "%s:", x.Name) }

func (x *CJump) AppendTo(b []byte) []byte {
	b = append(b, "if "...)
	b = x.Cond.AppendTo(b)

	return hfmt.Appendf(b, " goto %s;", x.Label)
}

func (x *Return) AppendTo(b []byte) []byte {
	if x.Value == nil {
		return append(b, "return;"...)
	}

	b = append(b, "return "...)
	b = x.Value.AppendTo(b)

	return append(b, ';')
}

func (x *Const) String() string { return string(x.AppendTo(nil)) }
func (x *Name) String() string { return x.Name }
func (x *Temp) String() string { return x.Name }
func (x *Mem) String() string { return string(x.AppendTo(nil)) }
func (x *Binary) String() string { return string(x.AppendTo(nil)) }
func (x *MoveTemp) String() string { return string(x.AppendTo(nil)) }
func (x *MoveMem) String() string { return string(x.AppendTo(nil)) }
func (x *Call) String() string { return string(x.AppendTo(nil)) }
func (x *Jump) String() string { return string(x.AppendTo(nil)) }
func (x *Label) String() string { return string(x.AppendTo(nil)) }
func (x *CJump) String() string { return string(x.AppendTo(nil)) }
func (x *Return) String() string { return string(x.AppendTo(nil)) }

// Temps returns temp names f refers to, arguments first.
func (f *Func) Temps() []string {
	seen := map[string]bool{}
	var r []string

	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			r = append(r, n)
		}
	}

	for _, a := range f.Args {
		add(a)
	}

	var walk func(e Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Temp:
			add(e.Name)
		case *Mem:
			walk(e.Index)
		case *Binary:
			walk(e.L)
			walk(e.R)
		}
	}

	for _, s := range f.Body {
		switch s := s.(type) {
		case *MoveTemp:
			add(s.Temp.Name)
			walk(s.Src)
		case *MoveMem:
			walk(s.Index)
			walk(s.Src)
		case *Call:
			walk(s.Func)

			for _, a := range s.Args {
				walk(a)
			}

			if s.Result != nil {
				add(s.Result.Name)
			}
		case *CJump:
			walk(s.Cond)
		case *Return:
			if s.Value != nil {
				walk(s.Value)
			}
		}
	}

	return r
}
