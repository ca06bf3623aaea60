package regalloc

import (
	"github.com/slowlang/tiler/compiler/set"
)

type (
	// graph is an interference graph over dense variable ids.
	// Ids below fixed are pre-colored: they have infinite degree
	// and no adjacency list of their own.
	graph struct {
		fixed int

		adj  []set.Bits[int]
		list [][]int
		deg  []int
	}
)

const infDegree = 1 << 30

func newGraph(n, fixed int) *graph {
	g := &graph{
		fixed: fixed,
		adj:   make([]set.Bits[int], n),
		list:  make([][]int, n),
		deg:   make([]int, n),
	}

	for i := 0; i < fixed && i < n; i++ {
		g.deg[i] = infDegree
	}

	return g
}

func (g *graph) precolored(n int) bool { return n < g.fixed }

func (g *graph) interfere(u, v int) bool { return g.adj[u].IsSet(v) }

func (g *graph) addEdge(u, v int) {
	if u == v || g.adj[u].IsSet(v) {
		return
	}

	g.adj[u].Set(v)
	g.adj[v].Set(u)

	if !g.precolored(u) {
		g.list[u] = append(g.list[u], v)
		g.deg[u]++
	}

	if !g.precolored(v) {
		g.list[v] = append(g.list[v], u)
		g.deg[v]++
	}
}
