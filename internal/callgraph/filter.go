package callgraph

import (
	"fmt"

	"github.com/embedded-tools/callstack/internal/demangle"
	"github.com/embedded-tools/callstack/internal/graph"
)

// FindStart resolves a user-named filter root to a node index. It tries an
// exact name match first; failing that, it falls back to a
// prefix-plus-"::h" match against each node's demangled name (hash suffix
// still attached) since users usually type the dehashed display name rather
// than the full mangled symbol. More than one prefix match is reported as an
// error rather than guessed at.
func FindStart(g *Graph, name string) (int, error) {
	for i, n := range g.Nodes {
		if n.Name == name {
			return i, nil
		}
	}

	prefix := name + "::h"
	var matches []int
	for i, n := range g.Nodes {
		display := n.Name
		if d, ok := demangle.Demangle(n.Name); ok {
			display = d
		}
		if hasPrefixAndHash(display, prefix) {
			matches = append(matches, i)
		}
	}
	switch len(matches) {
	case 0:
		return -1, fmt.Errorf("callgraph: no function named %q found", name)
	case 1:
		return matches[0], nil
	default:
		return -1, fmt.Errorf("callgraph: start %q is ambiguous; matches %d functions", name, len(matches))
	}
}

func hasPrefixAndHash(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// Filter replaces g with the subgraph reachable from root by depth-first
// traversal, preserving node payloads but renumbering indices. Called
// before stack-bound analysis runs, per the graph's "build monotonically,
// then filter once" discipline.
func Filter(g *Graph, root int) *Graph {
	reachable := map[int]bool{}
	for _, n := range graph.PreOrder(g, root) {
		reachable[n] = true
	}

	out := NewGraph()
	remap := make(map[int]int, len(reachable))
	for i, n := range g.Nodes {
		if !reachable[i] {
			continue
		}
		remap[i] = out.AddNode(n)
	}
	for i := range g.Nodes {
		from, ok := remap[i]
		if !ok {
			continue
		}
		for _, o := range g.Out(i) {
			to, ok := remap[o]
			if !ok {
				continue
			}
			out.AddEdge(from, to)
		}
	}
	return out
}
