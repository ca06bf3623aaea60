package interp

import (
	"context"
	"strings"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/tiler/compiler/asm"
)

type (
	// Machine executes assembly programs word by word.
	// Every memory access must be 8 byte aligned.
	Machine struct {
		MaxSteps int

		instrs  []asm.Instr
		labels  map[string]int
		globals map[string]int64

		regs map[asm.Reg]int64
		mem  map[int64]int64

		cmpL, cmpR int64

		heap  int64
		ip    int
		steps int

		out strings.Builder
	}

	Result struct {
		RAX    int64
		Output string
		Steps  int
	}
)

const (
	DataStart = 0x1000
	StackTop  = 0x78000000

	// StackSize is reserved below StackTop, heap can't grow into it.
	StackSize = 1 << 20

	DefaultMaxSteps = 10_000_000
)

// returning to exit ends the run.
const exit = -8

var (
	ErrUnaligned    = errors.New("unaligned memory access")
	ErrSegfault     = errors.New("segmentation fault")
	ErrDivByZero    = errors.New("division by zero")
	ErrUnknownLabel = errors.New("unknown label")
	ErrPanic        = errors.New("program panic")
	ErrStepLimit    = errors.New("step limit exceeded")
)

// Run calls entry of p with args and returns rax and everything printed.
func Run(ctx context.Context, p *asm.Program, entry string, args ...int64) (Result, error) {
	m := New(p)

	return m.Call(ctx, entry, args...)
}

// New loads p globals into memory as length-prefixed 8 byte character arrays.
func New(p *asm.Program) *Machine {
	m := &Machine{
		MaxSteps: DefaultMaxSteps,

		instrs:  p.Instrs,
		labels:  make(map[string]int),
		globals: make(map[string]int64),

		regs: make(map[asm.Reg]int64),
		mem:  make(map[int64]int64),

		heap: DataStart,
	}

	for i, x := range p.Instrs {
		if l, ok := x.(asm.Label); ok {
			m.labels[l.Name] = i
		}
	}

	for _, g := range p.Globals {
		addr := m.heap

		m.globals[g.Name] = addr
		m.mem[addr] = int64(len(g.Content))

		for i, c := range []byte(g.Content) {
			m.mem[addr+8+8*int64(i)] = int64(c)
		}

		m.heap += 8 + 8*int64(len(g.Content))
	}

	m.regs[asm.RSP] = StackTop

	return m
}

// Call runs function entry until it returns.
// The first six args go in registers, the rest on the stack.
func (m *Machine) Call(ctx context.Context, entry string, args ...int64) (res Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "interp: call", "entry", entry, "args", args)
	defer tr.Finish("err", &err, "steps", &m.steps)

	ip, ok := m.labels[entry]
	if !ok {
		return res, errors.Wrap(ErrUnknownLabel, "entry %v", entry)
	}

	stack := args
	if len(stack) > len(asm.ArgRegs) {
		stack = stack[len(asm.ArgRegs):]
	} else {
		stack = nil
	}

	if len(stack)%2 != 0 {
		m.regs[asm.RSP] -= 8
	}

	for i := len(args) - 1; i >= 0; i-- {
		if i < len(asm.ArgRegs) {
			m.regs[asm.ArgRegs[i]] = args[i]
			continue
		}

		err = m.push(args[i])
		if err != nil {
			return res, err
		}
	}

	err = m.push(exit)
	if err != nil {
		return res, err
	}

	m.ip = ip

	err = m.loop(ctx, tr)

	res = Result{
		RAX:    m.regs[asm.RAX],
		Output: m.out.String(),
		Steps:  m.steps,
	}

	return res, err
}

func (m *Machine) loop(ctx context.Context, tr tlog.Span) error {
	for m.ip >= 0 {
		if m.MaxSteps != 0 && m.steps >= m.MaxSteps {
			return errors.Wrap(ErrStepLimit, "after %d steps", m.steps)
		}

		if m.steps&0xffff == 0 && ctx.Err() != nil {
			return ctx.Err()
		}

		if m.ip >= len(m.instrs) {
			return errors.Wrap(ErrSegfault, "instruction pointer out of code: %d", m.ip)
		}

		x := m.instrs[m.ip]

		if tr.If("interp_trace") {
			tr.Printw("step", "ip", m.ip, "instr", asm.String(x))
		}

		m.ip++
		m.steps++

		err := m.exec(x)
		if err != nil {
			return errors.Wrap(err, "ip %d: %v", m.ip-1, asm.String(x))
		}
	}

	return nil
}

func (m *Machine) exec(x asm.Instr) (err error) {
	switch x := x.(type) {
	case asm.MovAbs:
		m.regs[x.Dst] = x.Value
	case asm.Mov:
		v, err := m.get(x.Src)
		if err != nil {
			return err
		}

		return m.set(x.Dst, v)
	case asm.Lea:
		a, err := m.addr(x.Src)
		if err != nil {
			return err
		}

		m.regs[x.Dst] = a
	case asm.Cmp:
		m.cmpL, err = m.get(x.L)
		if err != nil {
			return err
		}

		m.cmpR, err = m.get(x.R)
		if err != nil {
			return err
		}
	case asm.Set:
		m.regs[x.Dst] = 0

		if x.Cond.Eval(m.cmpL, m.cmpR) {
			m.regs[x.Dst] = 1
		}
	case asm.Jump:
		if !x.Cond.Eval(m.cmpL, m.cmpR) {
			return nil
		}

		ip, ok := m.labels[x.Label]
		if !ok {
			return errors.Wrap(ErrUnknownLabel, "%v", x.Label)
		}

		m.ip = ip
	case asm.Call:
		return m.call(x)
	case asm.Ret:
		v, err := m.pop()
		if err != nil {
			return err
		}

		m.ip = int(v / 8)
	case asm.BinOp:
		return m.update(x.Dst, x.Src, func(d, s int64) (int64, error) {
			switch x.Op {
			case asm.Add:
				return d + s, nil
			case asm.Sub:
				return d - s, nil
			case asm.Xor:
				return d ^ s, nil
			}

			return 0, errors.New("unsupported op: %v", x.Op)
		})
	case asm.IMul:
		return m.update(x.Dst, x.Src, func(d, s int64) (int64, error) {
			return d * s, nil
		})
	case asm.IMul3:
		s, err := m.get(x.Src)
		if err != nil {
			return err
		}

		m.regs[x.Dst] = s * x.Imm
	case asm.Cqo:
		m.regs[asm.RDX] = 0

		if m.regs[asm.RAX] < 0 {
			m.regs[asm.RDX] = -1
		}
	case asm.IDiv:
		s, err := m.get(x.Src)
		if err != nil {
			return err
		}

		if s == 0 {
			return ErrDivByZero
		}

		a := m.regs[asm.RAX]

		m.regs[asm.RAX] = a / s
		m.regs[asm.RDX] = a % s
	case asm.Neg:
		return m.update(x.Dst, asm.Imm(0), func(d, _ int64) (int64, error) {
			return -d, nil
		})
	case asm.Shl:
		return m.update(x.Dst, asm.Imm(int64(x.Count)), func(d, s int64) (int64, error) {
			return d << uint(s&63), nil
		})
	case asm.Push:
		v, err := m.get(x.Src)
		if err != nil {
			return err
		}

		return m.push(v)
	case asm.PopRBP:
		v, err := m.pop()
		if err != nil {
			return err
		}

		m.regs[asm.RBP] = v
	case asm.Label, asm.Comment:
	default:
		return errors.New("unsupported instruction: %T", x)
	}

	return nil
}

func (m *Machine) call(x asm.Call) error {
	var target int

	if c, ok := x.Target.(asm.Const); ok && c.IsSymbol() {
		if b, ok := builtins[c.Name]; ok {
			return b(m)
		}

		ip, ok := m.labels[c.Name]
		if !ok {
			return errors.Wrap(ErrUnknownLabel, "%v", c.Name)
		}

		target = ip
	} else {
		v, err := m.get(x.Target)
		if err != nil {
			return err
		}

		if v%8 != 0 || v < 0 || v/8 >= int64(len(m.instrs)) {
			return errors.Wrap(ErrSegfault, "call to %#x", v)
		}

		target = int(v / 8)
	}

	err := m.push(int64(m.ip) * 8)
	if err != nil {
		return err
	}

	m.ip = target

	return nil
}

func (m *Machine) update(dst, src asm.Arg, f func(d, s int64) (int64, error)) error {
	d, err := m.get(dst)
	if err != nil {
		return err
	}

	s, err := m.get(src)
	if err != nil {
		return err
	}

	r, err := f(d, s)
	if err != nil {
		return err
	}

	return m.set(dst, r)
}

func (m *Machine) push(v int64) error {
	m.regs[asm.RSP] -= 8

	return m.store(m.regs[asm.RSP], v)
}

func (m *Machine) pop() (int64, error) {
	v, err := m.load(m.regs[asm.RSP])
	if err != nil {
		return 0, err
	}

	m.regs[asm.RSP] += 8

	return v, nil
}

func (m *Machine) get(a asm.Arg) (int64, error) {
	switch a := a.(type) {
	case asm.Const:
		return m.constValue(a)
	case asm.Reg:
		return m.regs[a], nil
	case asm.Mem:
		addr, err := m.addr(a)
		if err != nil {
			return 0, err
		}

		return m.load(addr)
	default:
		return 0, errors.New("unsupported arg: %T", a)
	}
}

func (m *Machine) set(a asm.Arg, v int64) error {
	switch a := a.(type) {
	case asm.Reg:
		m.regs[a] = v
		return nil
	case asm.Mem:
		addr, err := m.addr(a)
		if err != nil {
			return err
		}

		return m.store(addr, v)
	default:
		return errors.New("not assignable: %T", a)
	}
}

// constValue resolves symbols to global addresses or code addresses.
func (m *Machine) constValue(c asm.Const) (int64, error) {
	if !c.IsSymbol() {
		return c.Value, nil
	}

	if a, ok := m.globals[c.Name]; ok {
		return a, nil
	}

	if ip, ok := m.labels[c.Name]; ok {
		return int64(ip) * 8, nil
	}

	return 0, errors.Wrap(ErrUnknownLabel, "%v", c.Name)
}

func (m *Machine) addr(a asm.Mem) (int64, error) {
	var r int64

	if a.Base != "" && a.Base != asm.RIP {
		r += m.regs[a.Base]
	}

	if a.HasIndex() {
		r += m.regs[a.Index] * int64(a.Scale)
	}

	d, err := m.constValue(a.Disp)
	if err != nil {
		return 0, err
	}

	return r + d, nil
}

func (m *Machine) check(addr int64) error {
	if addr%8 != 0 {
		return errors.Wrap(ErrUnaligned, "%#x", addr)
	}

	if addr < DataStart || addr >= StackTop {
		return errors.Wrap(ErrSegfault, "%#x", addr)
	}

	return nil
}

func (m *Machine) load(addr int64) (int64, error) {
	err := m.check(addr)
	if err != nil {
		return 0, err
	}

	return m.mem[addr], nil
}

func (m *Machine) store(addr int64, v int64) error {
	err := m.check(addr)
	if err != nil {
		return err
	}

	m.mem[addr] = v

	return nil
}
