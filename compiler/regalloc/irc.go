package regalloc

import (
	"context"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/tiler/compiler/asm"
	"github.com/slowlang/tiler/compiler/df"
	"github.com/slowlang/tiler/compiler/set"
)

type (
	// Result is allocated code and the number of 8 byte stack slots it uses
	// below rbp.
	Result struct {
		Instrs []asm.Instr
		Slots  int
		Rounds int
	}

	nodeState uint8
	moveState uint8

	move struct {
		dst, src int
	}

	allocator struct {
		tr tlog.Span

		check     bool
		hasReturn bool
		temps     *asm.Temps

		// persistent across rounds
		slots map[asm.Reg]int

		// round state
		code []asm.Instr
		live *df.Liveness
		g    *graph

		uses  []int
		state []nodeState
		lists [spillList + 1]set.Bits[int]
		stack []int
		alias []int
		color []asm.Reg

		spilled []int

		moves    []move
		moveIDs  map[move]int
		mstate   []moveState
		mlists   [activeMove + 1]set.Bits[int]
		moveList []set.Bits[int]
	}
)

const (
	precolored nodeState = iota
	initial
	simplifyList
	freezeList
	spillList
	selected
	coalesced
	colored
	spilled
)

const (
	worklistMove moveState = iota
	activeMove
	coalescedMove
	constrainedMove
	frozenMove
)

// Colors lists allocatable registers in preference order.
var Colors = [...]asm.Reg{
	asm.RAX, asm.RCX, asm.RDX, asm.RSI, asm.RDI,
	asm.R8, asm.R9, asm.R10, asm.R11,
	asm.RBX, asm.R12, asm.R13, asm.R14, asm.R15,
}

const K = len(Colors)

// Allocate assigns machine registers to abstract registers of one function
// using iterated register coalescing.
// Spilled registers get slots at [rbp-8*n].
// temps is the function temps source, it's used for spill temporaries.
// check enables work list invariant verification after every step.
func Allocate(ctx context.Context, code []asm.Instr, temps *asm.Temps, hasReturn, check bool) Result {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "regalloc", "instrs", len(code), "check", check)
	defer tr.Finish()

	a := &allocator{
		tr:        tr,
		check:     check,
		hasReturn: hasReturn,
		temps:     temps,
		slots:     make(map[asm.Reg]int),
	}

	var rounds int

	for {
		rounds++

		a.round(code)

		if len(a.spilled) == 0 {
			break
		}

		if tr.If("regalloc") {
			tr.Printw("spill", "round", rounds, "spilled", a.names(a.spilled))
		}

		code = a.rewriteSpills(code)
	}

	code, slots := a.finish(code)

	tr.V("regalloc").Printw("allocated", "rounds", rounds, "slots", slots, "instrs", len(code))

	return Result{
		Instrs: code,
		Slots:  slots,
		Rounds: rounds,
	}
}

func (a *allocator) round(code []asm.Instr) {
	a.code = code
	a.live = df.Analyze(code, a.hasReturn)

	n := a.live.Vars.Len()
	fixed := len(asm.Machine)

	a.g = newGraph(n, fixed)

	a.uses = make([]int, n)
	a.state = make([]nodeState, n)
	a.alias = make([]int, n)
	a.color = make([]asm.Reg, n)

	for i := range a.lists {
		a.lists[i].Reset()
	}

	for i := 0; i < n; i++ {
		a.alias[i] = i

		if i < fixed {
			a.color[i] = asm.Machine[i]
		} else {
			a.state[i] = initial
		}
	}

	a.stack = a.stack[:0]
	a.spilled = a.spilled[:0]

	a.moves = a.moves[:0]
	a.mstate = a.mstate[:0]
	a.moveIDs = make(map[move]int)
	a.moveList = make([]set.Bits[int], n)

	for i := range a.mlists {
		a.mlists[i].Reset()
	}

	a.build()
	a.makeWorkList()
	a.checkInvariant()

loop:
	for {
		switch {
		case !a.lists[simplifyList].Empty():
			a.simplify()
		case !a.mlists[worklistMove].Empty():
			a.coalesce()
		case !a.lists[freezeList].Empty():
			a.freeze()
		case !a.lists[spillList].Empty():
			a.selectSpill()
		default:
			break loop
		}

		a.checkInvariant()
	}

	a.assignColors()
}

func (a *allocator) build() {
	l := a.live

	for i := len(a.code) - 1; i >= 0; i-- {
		live := l.Out[i].Copy()

		if m, ok := a.code[i].(asm.Mov); ok {
			d, dok := m.Dst.(asm.Reg)
			s, sok := m.Src.(asm.Reg)

			if dok && sok {
				live.Substract(l.Uses[i])

				a.addMove(a.id(d), a.id(s))
			}
		}

		live.Merge(l.Defs[i])

		l.Defs[i].Range(func(d int) bool {
			live.Range(func(v int) bool {
				a.g.addEdge(v, d)
				return true
			})

			return true
		})

		l.Uses[i].Range(func(u int) bool {
			a.uses[u]++
			return true
		})

		l.Defs[i].Range(func(d int) bool {
			a.uses[d]++
			return true
		})
	}
}

func (a *allocator) addMove(dst, src int) {
	m := move{dst: dst, src: src}

	id, ok := a.moveIDs[m]
	if !ok {
		id = len(a.moves)

		a.moves = append(a.moves, m)
		a.mstate = append(a.mstate, worklistMove)
		a.moveIDs[m] = id
	}

	a.setMoveState(id, worklistMove)

	a.moveList[dst].Set(id)
	a.moveList[src].Set(id)
}

func (a *allocator) makeWorkList() {
	for n := a.g.fixed; n < len(a.state); n++ {
		switch {
		case a.g.deg[n] >= K:
			a.setState(n, spillList)
		case a.moveRelated(n):
			a.setState(n, freezeList)
		default:
			a.setState(n, simplifyList)
		}
	}
}

func (a *allocator) simplify() {
	n := a.lists[simplifyList].First()

	a.setState(n, selected)
	a.stack = append(a.stack, n)

	a.adjacent(n, a.decrementDegree)
}

func (a *allocator) decrementDegree(m int) {
	if a.g.precolored(m) {
		return
	}

	d := a.g.deg[m]
	a.g.deg[m]--

	if d != K {
		return
	}

	a.enableMoves(m)
	a.adjacent(m, a.enableMoves)

	if a.state[m] != spillList {
		return
	}

	if a.moveRelated(m) {
		a.setState(m, freezeList)
	} else {
		a.setState(m, simplifyList)
	}
}

func (a *allocator) enableMoves(n int) {
	a.nodeMoves(n, func(m int) {
		if a.mstate[m] == activeMove {
			a.setMoveState(m, worklistMove)
		}
	})
}

func (a *allocator) coalesce() {
	m := a.mlists[worklistMove].First()
	mv := a.moves[m]

	x := a.getAlias(mv.dst)
	y := a.getAlias(mv.src)

	u, v := x, y
	if a.g.precolored(y) {
		u, v = y, x
	}

	switch {
	case u == v:
		a.setMoveState(m, coalescedMove)
		a.addWorkList(u)
	case a.g.precolored(v) || a.g.interfere(u, v):
		a.setMoveState(m, constrainedMove)
		a.addWorkList(u)
		a.addWorkList(v)
	case a.g.precolored(u) && a.george(u, v) || !a.g.precolored(u) && a.briggs(u, v):
		a.setMoveState(m, coalescedMove)
		a.combine(u, v)
		a.addWorkList(u)
	default:
		a.setMoveState(m, activeMove)
	}
}

func (a *allocator) addWorkList(u int) {
	if a.g.precolored(u) || a.moveRelated(u) || a.g.deg[u] >= K {
		return
	}

	if a.state[u] == freezeList {
		a.setState(u, simplifyList)
	}
}

// george checks every neighbor of v is harmless for pre-colored u.
func (a *allocator) george(u, v int) bool {
	ok := true

	a.adjacent(v, func(t int) {
		ok = ok && (a.g.deg[t] < K || a.g.precolored(t) || a.g.interfere(t, u))
	})

	return ok
}

// briggs checks merged node has less than K significant neighbors.
func (a *allocator) briggs(u, v int) bool {
	var seen set.Bits[int]
	k := 0

	count := func(t int) {
		if seen.IsSet(t) {
			return
		}

		seen.Set(t)

		if a.g.deg[t] >= K {
			k++
		}
	}

	a.adjacent(u, count)
	a.adjacent(v, count)

	return k < K
}

func (a *allocator) combine(u, v int) {
	a.setState(v, coalesced)
	a.alias[v] = u

	a.moveList[u].Merge(a.moveList[v])
	a.enableMoves(v)

	a.adjacent(v, func(t int) {
		a.g.addEdge(t, u)
		a.decrementDegree(t)
	})

	if a.g.deg[u] >= K && a.state[u] == freezeList {
		a.setState(u, spillList)
	}
}

func (a *allocator) freeze() {
	u := a.lists[freezeList].First()

	a.setState(u, simplifyList)
	a.freezeMoves(u)
}

func (a *allocator) freezeMoves(u int) {
	a.nodeMoves(u, func(m int) {
		mv := a.moves[m]

		v := a.getAlias(mv.src)
		if v == a.getAlias(u) {
			v = a.getAlias(mv.dst)
		}

		a.setMoveState(m, frozenMove)

		if a.state[v] == freezeList && !a.moveRelated(v) && a.g.deg[v] < K {
			a.setState(v, simplifyList)
		}
	})
}

// selectSpill picks the node with the least uses per interference.
func (a *allocator) selectSpill() {
	best := -1
	score := math.Inf(1)

	a.lists[spillList].Range(func(n int) bool {
		s := math.MaxFloat64
		if d := a.g.deg[n]; d > 0 {
			s = float64(a.uses[n]) / float64(d)
		}

		if s < score {
			best, score = n, s
		}

		return true
	})

	a.setState(best, simplifyList)
	a.freezeMoves(best)
}

func (a *allocator) assignColors() {
	index := make(map[asm.Reg]int, K)

	for i, c := range Colors {
		index[c] = i
	}

	for len(a.stack) != 0 {
		last := len(a.stack) - 1
		n := a.stack[last]
		a.stack = a.stack[:last]

		var taken [K]bool

		for _, w := range a.g.list[n] {
			w = a.getAlias(w)

			if a.state[w] != colored && !a.g.precolored(w) {
				continue
			}

			if i, ok := index[a.color[w]]; ok {
				taken[i] = true
			}
		}

		c := -1

		for i := range Colors {
			if !taken[i] {
				c = i
				break
			}
		}

		if c < 0 {
			a.setState(n, spilled)
			a.spilled = append(a.spilled, n)

			continue
		}

		a.setState(n, colored)
		a.color[n] = Colors[c]
	}

	for n := a.g.fixed; n < len(a.state); n++ {
		if a.state[n] == coalesced {
			a.color[n] = a.color[a.getAlias(n)]
		}
	}
}

func (a *allocator) getAlias(n int) int {
	for i := 0; a.state[n] == coalesced; i++ {
		if i > len(a.alias) {
			panic(errors.New("alias cycle at %v", a.live.Vars.Name(n)))
		}

		n = a.alias[n]
	}

	return n
}

// adjacent calls f for n neighbors still in the graph.
func (a *allocator) adjacent(n int, f func(int)) {
	for _, t := range a.g.list[n] {
		if s := a.state[t]; s == selected || s == coalesced {
			continue
		}

		f(t)
	}
}

func (a *allocator) nodeMoves(n int, f func(int)) {
	a.moveList[n].Range(func(m int) bool {
		if s := a.mstate[m]; s == activeMove || s == worklistMove {
			f(m)
		}

		return true
	})
}

func (a *allocator) moveRelated(n int) (r bool) {
	a.moveList[n].Range(func(m int) bool {
		s := a.mstate[m]
		r = s == activeMove || s == worklistMove

		return !r
	})

	return r
}

func (a *allocator) setState(n int, s nodeState) {
	if old := a.state[n]; old >= simplifyList && old <= spillList {
		a.lists[old].Clear(n)
	}

	a.state[n] = s

	if s >= simplifyList && s <= spillList {
		a.lists[s].Set(n)
	}
}

func (a *allocator) setMoveState(m int, s moveState) {
	if old := a.mstate[m]; old <= activeMove {
		a.mlists[old].Clear(m)
	}

	a.mstate[m] = s

	if s <= activeMove {
		a.mlists[s].Set(m)
	}
}

func (a *allocator) id(r asm.Reg) int {
	id, ok := a.live.Vars.Lookup(r)
	if !ok {
		panic(errors.New("unknown register: %v", r))
	}

	return id
}

func (a *allocator) names(ids []int) []asm.Reg {
	r := make([]asm.Reg, len(ids))

	for i, id := range ids {
		r[i] = a.live.Vars.Name(id)
	}

	return r
}

// checkInvariant verifies work list invariants.
// It's a no-op unless checking is enabled.
func (a *allocator) checkInvariant() {
	if !a.check {
		return
	}

	inGraph := func(t int) bool {
		s := a.state[t]
		return a.g.precolored(t) || s >= simplifyList && s <= spillList
	}

	fail := func(n int, what string, args ...any) {
		kvs := []any{"what", what, "node", a.live.Vars.Name(n), "state", a.state[n], "degree", a.g.deg[n], "from", loc.Caller(1)}

		a.tr.Printw("invariant violated", append(kvs, args...)...)

		panic(errors.New("regalloc invariant: %v: %v", what, a.live.Vars.Name(n)))
	}

	for n := a.g.fixed; n < len(a.state); n++ {
		s := a.state[n]

		for l := simplifyList; l <= spillList; l++ {
			if a.lists[l].IsSet(n) != (s == l) {
				fail(n, "node partition")
			}
		}

		if s < simplifyList || s > spillList {
			continue
		}

		deg := 0

		for _, t := range a.g.list[n] {
			if inGraph(t) {
				deg++
			}
		}

		if deg != a.g.deg[n] {
			fail(n, "degree", "want", deg)
		}

		switch s {
		case simplifyList:
			if a.g.deg[n] < K && a.moveRelated(n) {
				fail(n, "simplify")
			}
		case freezeList:
			if a.g.deg[n] >= K || !a.moveRelated(n) {
				fail(n, "freeze")
			}
		case spillList:
			if a.g.deg[n] < K {
				fail(n, "spill")
			}
		}
	}

	for m, s := range a.mstate {
		for l := worklistMove; l <= activeMove; l++ {
			if a.mlists[l].IsSet(m) != (s == l) {
				panic(errors.New("regalloc invariant: move partition: %v", m))
			}
		}
	}
}

func (s nodeState) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, s.String())
}

func (s nodeState) String() string {
	switch s {
	case precolored:
		return "precolored"
	case initial:
		return "initial"
	case simplifyList:
		return "simplify"
	case freezeList:
		return "freeze"
	case spillList:
		return "spill"
	case selected:
		return "selected"
	case coalesced:
		return "coalesced"
	case colored:
		return "colored"
	case spilled:
		return "spilled"
	default:
		return "unknown"
	}
}

func (m move) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendArray(b, 2)
	b = e.AppendInt(b, m.dst)
	b = e.AppendInt(b, m.src)

	return b
}
