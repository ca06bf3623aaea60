package interp

import (
	"strconv"

	"tlog.app/go/errors"

	"github.com/slowlang/tiler/compiler/asm"
)

type builtin func(m *Machine) error

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"_builtin_println":      printLine,
		"_builtin_malloc":       malloc,
		"_builtin_intToString":  intToString,
		"_builtin_stringToInt":  stringToInt,
		"_builtin_stringConcat": stringConcat,
		"_builtin_throw":        throw,
	}
}

// IsBuiltin reports whether calls to name are served by the machine itself.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func printLine(m *Machine) error {
	s, err := m.readString(m.regs[asm.RDI])
	if err != nil {
		return err
	}

	m.out.WriteString(s)
	m.out.WriteByte('\n')

	return nil
}

func malloc(m *Machine) (err error) {
	m.regs[asm.RAX], err = m.alloc(m.regs[asm.RDI])

	return err
}

func intToString(m *Machine) (err error) {
	s := strconv.FormatInt(m.regs[asm.RDI], 10)

	m.regs[asm.RAX], err = m.allocString(s)

	return err
}

func stringToInt(m *Machine) error {
	s, err := m.readString(m.regs[asm.RDI])
	if err != nil {
		return err
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return errors.Wrap(ErrPanic, "bad string: %q", s)
	}

	m.regs[asm.RAX] = v

	return nil
}

func stringConcat(m *Machine) error {
	a, err := m.readString(m.regs[asm.RDI])
	if err != nil {
		return err
	}

	b, err := m.readString(m.regs[asm.RSI])
	if err != nil {
		return err
	}

	m.regs[asm.RAX], err = m.allocString(a + b)

	return err
}

func throw(m *Machine) error {
	s, err := m.readString(m.regs[asm.RDI])
	if err != nil {
		return err
	}

	return errors.Wrap(ErrPanic, "%s", s)
}

// alloc returns size zeroed bytes from the heap.
func (m *Machine) alloc(size int64) (int64, error) {
	if size < 0 || size%8 != 0 {
		return 0, errors.New("malloc: bad size: %d", size)
	}

	addr := m.heap

	if addr+size > StackTop-StackSize {
		return 0, errors.Wrap(ErrSegfault, "out of memory: %d bytes", size)
	}

	m.heap += size

	for a := addr; a < m.heap; a += 8 {
		delete(m.mem, a)
	}

	return addr, nil
}

func (m *Machine) allocString(s string) (int64, error) {
	addr, err := m.alloc(8 + 8*int64(len(s)))
	if err != nil {
		return 0, err
	}

	m.mem[addr] = int64(len(s))

	for i, c := range []byte(s) {
		m.mem[addr+8+8*int64(i)] = int64(c)
	}

	return addr, nil
}

func (m *Machine) readString(addr int64) (string, error) {
	n, err := m.load(addr)
	if err != nil {
		return "", err
	}

	if n < 0 {
		return "", errors.New("bad string length: %d at %#x", n, addr)
	}

	b := make([]byte, n)

	for i := range b {
		c, err := m.load(addr + 8 + 8*int64(i))
		if err != nil {
			return "", err
		}

		b[i] = byte(c)
	}

	return string(b), nil
}
