package front

import (
	"context"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/tiler/compiler/ir"
)

type (
	// Parser reads the textual form of ir.Unit.
	Parser struct {
		name string
		b    []byte
		i    int

		fn *ir.Func
	}
)

var levels = [][]ir.Op{
	{ir.Lt, ir.Le, ir.Gt, ir.Ge, ir.Eq, ir.Ne},
	{ir.Xor},
	{ir.Add, ir.Sub},
	{ir.Mul, ir.Div, ir.Mod},
}

func ParseFile(ctx context.Context, name string) (*ir.Unit, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}

	return Parse(ctx, name, data)
}

func Parse(ctx context.Context, name string, b []byte) (u *ir.Unit, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "front: parse", "name", name, "size", len(b))
	defer tr.Finish("err", &err)

	p := &Parser{name: name, b: b}

	u = &ir.Unit{}

	for {
		t, err := p.next()
		if err != nil {
			return nil, err
		}

		switch t {
		case nil:
			tr.Printw("parsed", "globals", len(u.Globals), "funcs", len(u.Funcs))

			return u, nil
		case ident("global"):
			g, err := p.parseGlobal()
			if err != nil {
				return nil, err
			}

			u.Globals = append(u.Globals, g)
		case ident("func"):
			f, err := p.parseFunc()
			if err != nil {
				return nil, err
			}

			u.Funcs = append(u.Funcs, f)
		default:
			return nil, p.errorf(errors.New("global or func expected, got %v", t))
		}
	}
}

func (p *Parser) parseGlobal() (g ir.Global, err error) {
	g.Name, err = p.ident()
	if err != nil {
		return
	}

	if err = p.expect(punct("=")); err != nil {
		return
	}

	t, err := p.next()
	if err != nil {
		return
	}

	s, ok := t.(str)
	if !ok {
		return g, p.errorf(errors.New("string expected, got %v", t))
	}

	g.Content = string(s)

	return g, nil
}

func (p *Parser) parseFunc() (f *ir.Func, err error) {
	f = &ir.Func{}
	p.fn = f

	f.Name, err = p.ident()
	if err != nil {
		return nil, err
	}

	if err = p.expect(punct("(")); err != nil {
		return nil, err
	}

	for i := 0; ; i++ {
		t, err := p.next()
		if err != nil {
			return nil, err
		}

		if t == punct(")") {
			break
		}

		if i != 0 {
			if t != punct(",") {
				return nil, p.errorf(errors.New("expected , or ), got %v", t))
			}

			if t, err = p.next(); err != nil {
				return nil, err
			}
		}

		a, ok := t.(ident)
		if !ok {
			return nil, p.errorf(errors.New("argument name expected, got %v", t))
		}

		f.Args = append(f.Args, string(a))
	}

	t, err := p.next()
	if err != nil {
		return nil, err
	}

	if _, ok := t.(ident); ok {
		f.HasReturn = true

		if t, err = p.next(); err != nil {
			return nil, err
		}
	}

	if t != punct("{") {
		return nil, p.errorf(errors.New("expected {, got %v", t))
	}

	for {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}

		switch t {
		case punct("}"):
			_, _ = p.next()

			return f, nil
		case punct(";"):
			_, _ = p.next()

			continue
		case nil:
			return nil, p.errorf(errors.New("unexpected end of file in %v", f.Name))
		}

		s, err := p.parseStmt()
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}

		f.Body = append(f.Body, s)
	}
}

func (p *Parser) parseStmt() (s ir.Stmt, err error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	switch t {
	case ident("goto"):
		l, err := p.ident()
		if err != nil {
			return nil, err
		}

		return &ir.Jump{Label: l}, nil
	case ident("if"):
		c, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}

		if err = p.expect(ident("goto")); err != nil {
			return nil, err
		}

		l, err := p.ident()
		if err != nil {
			return nil, err
		}

		return &ir.CJump{Cond: c, Label: l}, nil
	case ident("return"):
		if !p.fn.HasReturn {
			return &ir.Return{}, nil
		}

		v, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}

		return &ir.Return{Value: v}, nil
	case ident("call"):
		return p.parseCall(nil)
	case ident("mem"):
		idx, err := p.parseIndex()
		if err != nil {
			return nil, err
		}

		if err = p.expect(punct("=")); err != nil {
			return nil, err
		}

		src, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}

		return &ir.MoveMem{Index: idx, Src: src}, nil
	}

	name, ok := t.(ident)
	if !ok {
		return nil, p.errorf(errors.New("statement expected, got %v", t))
	}

	t, err = p.next()
	if err != nil {
		return nil, err
	}

	switch t {
	case punct(":"):
		return &ir.Label{Name: string(name)}, nil
	case punct("="):
	default:
		return nil, p.errorf(errors.New("expected = or :, got %v", t))
	}

	if t, err = p.peek(); err != nil {
		return nil, err
	}

	if t == ident("call") {
		_, _ = p.next()

		return p.parseCall(ir.T(string(name)))
	}

	src, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	return ir.Move(ir.T(string(name)), src), nil
}

func (p *Parser) parseCall(res *ir.Temp) (_ ir.Stmt, err error) {
	c := &ir.Call{Result: res}

	c.Func, err = p.parsePrimary()
	if err != nil {
		return nil, err
	}

	if err = p.expect(punct("(")); err != nil {
		return nil, err
	}

	t, err := p.peek()
	if err != nil {
		return nil, err
	}

	if t == punct(")") {
		_, _ = p.next()

		return c, nil
	}

	for {
		a, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}

		c.Args = append(c.Args, a)

		t, err := p.next()
		if err != nil {
			return nil, err
		}

		switch t {
		case punct(")"):
			return c, nil
		case punct(","):
		default:
			return nil, p.errorf(errors.New("expected , or ), got %v", t))
		}
	}
}

func (p *Parser) parseExpr(lvl int) (ir.Expr, error) {
	if lvl == len(levels) {
		return p.parseUnary()
	}

	l, err := p.parseExpr(lvl + 1)
	if err != nil {
		return nil, err
	}

	for {
		t, err := p.peek()
		if err != nil {
			return nil, err
		}

		op, ok := t.(punct)
		if !ok || !levelHas(lvl, ir.Op(op)) {
			return l, nil
		}

		_, _ = p.next()

		r, err := p.parseExpr(lvl + 1)
		if err != nil {
			return nil, err
		}

		l = ir.Bin(ir.Op(op), l, r)
	}
}

func (p *Parser) parseUnary() (ir.Expr, error) {
	t, err := p.peek()
	if err != nil {
		return nil, err
	}

	if t != punct("-") {
		return p.parsePrimary()
	}

	_, _ = p.next()

	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if c, ok := x.(*ir.Const); ok {
		return ir.C(-c.Value), nil
	}

	return ir.Bin(ir.Sub, ir.C(0), x), nil
}

func (p *Parser) parsePrimary() (ir.Expr, error) {
	t, err := p.next()
	if err != nil {
		return nil, err
	}

	switch t := t.(type) {
	case number:
		return ir.C(int64(t)), nil
	case ident:
		if t == "mem" {
			idx, err := p.parseIndex()
			if err != nil {
				return nil, err
			}

			return ir.M(idx), nil
		}

		return ir.T(string(t)), nil
	case punct:
		switch t {
		case "@":
			n, err := p.ident()
			if err != nil {
				return nil, err
			}

			return ir.N(n), nil
		case "(":
			x, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}

			if err = p.expect(punct(")")); err != nil {
				return nil, err
			}

			return x, nil
		}
	}

	return nil, p.errorf(errors.New("expression expected, got %v", t))
}

func (p *Parser) parseIndex() (ir.Expr, error) {
	if err := p.expect(punct("[")); err != nil {
		return nil, err
	}

	x, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}

	if err = p.expect(punct("]")); err != nil {
		return nil, err
	}

	return x, nil
}

func levelHas(lvl int, op ir.Op) bool {
	for _, x := range levels[lvl] {
		if x == op {
			return true
		}
	}

	return false
}
