package regalloc

import (
	"sort"

	"tlog.app/go/errors"

	"github.com/slowlang/tiler/compiler/asm"
)

type (
	// colorer replaces abstract registers by their colors.
	colorer struct {
		colors map[asm.Reg]asm.Reg

		// unused callee-saved registers and their save temps
		unused map[asm.Reg]bool

		// old slot number to new one, dropped slots are missing
		renum   map[int]int
		dropped map[int]bool
	}
)

// finish applies the final coloring.
// Callee-saved registers nobody got as a color lose their save and restore moves
// together with their slots. Remaining slots are renumbered densely.
func (a *allocator) finish(code []asm.Instr) ([]asm.Instr, int) {
	c := &colorer{
		colors:  make(map[asm.Reg]asm.Reg),
		unused:  make(map[asm.Reg]bool),
		renum:   make(map[int]int),
		dropped: make(map[int]bool),
	}

	used := make(map[asm.Reg]bool)

	for n := a.g.fixed; n < len(a.color); n++ {
		col := a.color[n]
		if col == "" {
			panic(errors.New("register left uncolored: %v", a.live.Vars.Name(n)))
		}

		c.colors[a.live.Vars.Name(n)] = col
		used[col] = true
	}

	for _, r := range asm.CalleeSaved {
		if used[r] {
			continue
		}

		c.unused[r] = true
		c.unused[asm.CalleeSavedTemp(r)] = true

		if id, ok := a.slots[asm.CalleeSavedTemp(r)]; ok {
			c.dropped[id] = true
		}
	}

	ids := make([]int, 0, len(a.slots))

	for _, id := range a.slots {
		if !c.dropped[id] {
			ids = append(ids, id)
		}
	}

	sort.Ints(ids)

	for i, id := range ids {
		c.renum[id] = i + 1
	}

	out := make([]asm.Instr, 0, len(code))

	for _, x := range code {
		if c.drop(x) {
			continue
		}

		x = mapRegs(x, c.reg, c.mem)

		if m, ok := x.(asm.Mov); ok {
			if r, ok := m.Dst.(asm.Reg); ok && m.Src == asm.Arg(r) {
				x = asm.Comment{Text: "'mov " + string(r) + ", " + string(r) + "' is optimized away."}
			}
		}

		CheckNoAbstract(x)

		out = append(out, x)
	}

	return out, len(ids)
}

// drop reports whether x saves or restores an unused callee-saved register.
func (c *colorer) drop(x asm.Instr) bool {
	m, ok := x.(asm.Mov)
	if !ok {
		return false
	}

	touches := func(a asm.Arg) bool {
		switch a := a.(type) {
		case asm.Reg:
			return c.unused[a]
		case asm.Mem:
			id, ok := slotID(a)

			return ok && c.dropped[id]
		}

		return false
	}

	return touches(m.Dst) || touches(m.Src)
}

func (c *colorer) reg(r asm.Reg) asm.Reg {
	if col, ok := c.colors[r]; ok {
		return col
	}

	return r
}

func (c *colorer) mem(m asm.Mem) asm.Mem {
	id, ok := slotID(m)
	if !ok {
		return m
	}

	n, ok := c.renum[id]
	if !ok {
		panic(errors.New("unknown stack slot: %v", m))
	}

	return SlotMem(n)
}

// slotID recognizes [rbp-8*n] spill slots.
func slotID(m asm.Mem) (int, bool) {
	if m.Base != asm.RBP || m.HasIndex() || m.Disp.IsSymbol() {
		return 0, false
	}

	d := m.Disp.Value
	if d >= 0 || d%8 != 0 {
		return 0, false
	}

	return int(-d / 8), true
}

// CheckNoAbstract panics if x refers to a non-machine register.
func CheckNoAbstract(x asm.Instr) {
	mapRegs(x, func(r asm.Reg) asm.Reg {
		if !r.IsMachine() && r != asm.RIP {
			panic(errors.New("abstract register after allocation: %v in %v", r, asm.String(x)))
		}

		return r
	}, nil)
}

// mapRegs rebuilds x with every register replaced by f(r).
// Memory operands are mapped by fm after their registers if fm is not nil.
func mapRegs(x asm.Instr, f func(asm.Reg) asm.Reg, fm func(asm.Mem) asm.Mem) asm.Instr {
	mem := func(m asm.Mem) asm.Mem {
		if m.Base != "" {
			m.Base = f(m.Base)
		}

		if m.HasIndex() {
			m.Index = f(m.Index)
		}

		if fm != nil {
			m = fm(m)
		}

		return m
	}

	arg := func(a asm.Arg) asm.Arg {
		switch a := a.(type) {
		case asm.Reg:
			return f(a)
		case asm.Mem:
			return mem(a)
		}

		return a
	}

	switch x := x.(type) {
	case asm.MovAbs:
		x.Dst = f(x.Dst)
		return x
	case asm.Mov:
		x.Dst, x.Src = arg(x.Dst), arg(x.Src)
		return x
	case asm.Lea:
		x.Dst, x.Src = f(x.Dst), mem(x.Src)
		return x
	case asm.Cmp:
		x.L, x.R = arg(x.L), arg(x.R)
		return x
	case asm.Set:
		x.Dst = f(x.Dst)
		return x
	case asm.Call:
		x.Target = arg(x.Target)
		return x
	case asm.BinOp:
		x.Dst, x.Src = arg(x.Dst), arg(x.Src)
		return x
	case asm.IMul:
		x.Dst, x.Src = f(x.Dst), arg(x.Src)
		return x
	case asm.IMul3:
		x.Dst, x.Src = f(x.Dst), arg(x.Src)
		return x
	case asm.IDiv:
		x.Src = arg(x.Src)
		return x
	case asm.Neg:
		x.Dst = arg(x.Dst)
		return x
	case asm.Shl:
		x.Dst = arg(x.Dst)
		return x
	case asm.Push:
		x.Src = arg(x.Src)
		return x
	}

	return x
}
