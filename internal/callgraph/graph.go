// Package callgraph builds the whole-program call graph (spec §4.4's
// Phases A-E), resolves indirect-call candidates (§4.5), and filters it to
// the subgraph reachable from a start node. Rendering happens in
// cmd/callstack once the stack-bound analyzer has filled in each node's Max.
package callgraph

import "github.com/embedded-tools/callstack/internal/graph"

// Node is one function in the call graph: either a real defined symbol, or
// a fictitious node: a dispatch node synthesized during Phase E, or the "?"
// sentinel, which Phases C, D or E create on first use.
type Node struct {
	Name    string
	Local   Local
	Max     Max // filled in by internal/stackbound; zero until then
	Dashed  bool
	SCCID   int // filled in by internal/stackbound; -1 until assigned
}

// Graph is the single arena backing the whole call graph: nodes are dense
// integer indices into Nodes, and edges are adjacency lists keyed the same
// way — the Go analogue of spec §9's "single arena with numeric node
// indices", generalizing the teacher's IntGraph arena style.
type Graph struct {
	Nodes []Node
	out   [][]int32
	in    [][]int32
}

// NewGraph returns an empty graph ready for node/edge insertion.
func NewGraph() *Graph {
	return &Graph{}
}

// AddNode appends a new node and returns its index.
func (g *Graph) AddNode(n Node) int {
	n.SCCID = -1
	g.Nodes = append(g.Nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return len(g.Nodes) - 1
}

// AddEdge adds a directed edge from -> to, if it doesn't already exist.
func (g *Graph) AddEdge(from, to int) {
	for _, e := range g.out[from] {
		if int(e) == to {
			return
		}
	}
	g.out[from] = append(g.out[from], int32(to))
	g.in[to] = append(g.in[to], int32(from))
}

// NumNodes implements internal/graph.Graph.
func (g *Graph) NumNodes() int { return len(g.Nodes) }

// Out implements internal/graph.Graph.
func (g *Graph) Out(i int) []int {
	return widen(g.out[i])
}

// In implements internal/graph.BiGraph.
func (g *Graph) In(i int) []int {
	return widen(g.in[i])
}

func widen(s []int32) []int {
	out := make([]int, len(s))
	for i, v := range s {
		out[i] = int(v)
	}
	return out
}

var _ graph.BiGraph = (*Graph)(nil)
