package format

import (
	"context"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/tiler/compiler/ir"
)

// Format renders x in the textual IR syntax front reads.
// x is *ir.Unit, *ir.Func, ir.Stmt or ir.Expr.
func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return format(ctx, b, x, 0)
}

func format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *ir.Unit:
		return formatUnit(ctx, b, x, d)
	case *ir.Func:
		return formatFunc(ctx, b, x, d)
	case ir.Stmt:
		return formatStmt(ctx, b, x, d)
	case ir.Expr:
		return formatExpr(ctx, b, x, 0)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatUnit(ctx context.Context, b []byte, x *ir.Unit, d int) (_ []byte, err error) {
	for _, g := range x.Globals {
		b = app(b, d, "global %s = ", g.Name)
		b = strconv.AppendQuote(b, g.Content)
		b = append(b, '\n')
	}

	for i, f := range x.Funcs {
		if i != 0 || len(x.Globals) != 0 {
			b = append(b, '\n')
		}

		b, err = formatFunc(ctx, b, f, d)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

func formatFunc(ctx context.Context, b []byte, x *ir.Func, d int) (_ []byte, err error) {
	b = app(b, d, "func %s(", x.Name)

	for i, a := range x.Args {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = append(b, a...)
	}

	b = append(b, ")"...)

	if x.HasReturn {
		b = append(b, " int"...)
	}

	b = append(b, " {\n"...)

	for _, s := range x.Body {
		b, err = formatStmt(ctx, b, s, d+1)
		if err != nil {
			return nil, err
		}
	}

	b = app(b, d, "}\n")

	return b, nil
}

func formatStmt(ctx context.Context, b []byte, s ir.Stmt, d int) (_ []byte, err error) {
	switch s := s.(type) {
	case *ir.MoveTemp:
		b = app(b, d, "%s = ", s.Temp.Name)

		b, err = formatExpr(ctx, b, s.Src, 0)
		if err != nil {
			return nil, errors.Wrap(err, "src")
		}
	case *ir.MoveMem:
		b = app(b, d, "mem[")

		b, err = formatExpr(ctx, b, s.Index, 0)
		if err != nil {
			return nil, errors.Wrap(err, "index")
		}

		b = append(b, "] = "...)

		b, err = formatExpr(ctx, b, s.Src, 0)
		if err != nil {
			return nil, errors.Wrap(err, "src")
		}
	case *ir.Call:
		b = app(b, d, "")

		if s.Result != nil {
			b = append(b, s.Result.Name...)
			b = append(b, " = "...)
		}

		b = append(b, "call "...)

		b, err = formatExpr(ctx, b, s.Func, len(levels))
		if err != nil {
			return nil, errors.Wrap(err, "func")
		}

		b = append(b, '(')

		for i, a := range s.Args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b, err = formatExpr(ctx, b, a, 0)
			if err != nil {
				return nil, errors.Wrap(err, "arg %d", i)
			}
		}

		b = append(b, ')')
	case *ir.Jump:
		b = app(b, d, "goto %s", s.Label)
	case *ir.Label:
		b = app(b, 0, "%s:", s.Name)
	case *ir.CJump:
		b = app(b, d, "if ")

		b, err = formatExpr(ctx, b, s.Cond, 0)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = hfmt.Appendf(b, " goto %s", s.Label)
	case *ir.Return:
		b = app(b, d, "return")

		if s.Value != nil {
			b = append(b, ' ')

			b, err = formatExpr(ctx, b, s.Value, 0)
			if err != nil {
				return nil, errors.Wrap(err, "value")
			}
		}
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}

	return append(b, '\n'), nil
}

var levels = [][]ir.Op{
	{ir.Lt, ir.Le, ir.Gt, ir.Ge, ir.Eq, ir.Ne},
	{ir.Xor},
	{ir.Add, ir.Sub},
	{ir.Mul, ir.Div, ir.Mod},
}

func level(op ir.Op) int {
	for l, ops := range levels {
		for _, x := range ops {
			if x == op {
				return l
			}
		}
	}

	return -1
}

// formatExpr parenthesizes x if it binds weaker than lvl.
func formatExpr(ctx context.Context, b []byte, x ir.Expr, lvl int) (_ []byte, err error) {
	switch x := x.(type) {
	case *ir.Const:
		b = strconv.AppendInt(b, x.Value, 10)
	case *ir.Name:
		b = append(b, '@')
		b = append(b, x.Name...)
	case *ir.Temp:
		b = append(b, x.Name...)
	case *ir.Mem:
		b = append(b, "mem["...)

		b, err = formatExpr(ctx, b, x.Index, 0)
		if err != nil {
			return nil, errors.Wrap(err, "index")
		}

		b = append(b, ']')
	case *ir.Binary:
		l := level(x.Op)
		if l < 0 {
			return nil, errors.New("unsupported op: %v", x.Op)
		}

		paren := l < lvl
		if paren {
			b = append(b, '(')
		}

		b, err = formatExpr(ctx, b, x.L, l)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = hfmt.Appendf(b, " %s ", string(x.Op))

		b, err = formatExpr(ctx, b, x.R, l+1)
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}

		if paren {
			b = append(b, ')')
		}
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	return b, nil
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
