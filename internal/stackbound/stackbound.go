// Package stackbound computes each call-graph node's worst-case stack
// depth (C6): strongly-connected components are collapsed and visited in
// reverse topological order so every node's Max is derived from
// out-neighbors whose Max is already known.
package stackbound

import (
	"github.com/pkg/errors"

	"github.com/embedded-tools/callstack/internal/callgraph"
	"github.com/embedded-tools/callstack/internal/graph"
)

// ErrNoStackInfo is returned when no node in the graph carries any known
// Local stack usage at all, leaving nothing for a bound to be anchored to.
var ErrNoStackInfo = errors.New("stackbound: no node carries a known local stack usage")

// Analyze fills in every node's Max in place.
func Analyze(g *callgraph.Graph) error {
	anyKnown := false
	for _, n := range g.Nodes {
		if n.Local.Known {
			anyKnown = true
			break
		}
	}
	if !anyKnown {
		return ErrNoStackInfo
	}

	sccs := graph.SCC(g)
	for id, members := range sccs {
		for _, n := range members {
			g.Nodes[n].SCCID = id
		}
	}

	hasSelfEdge := make([]bool, g.NumNodes())
	for n := 0; n < g.NumNodes(); n++ {
		for _, o := range g.Out(n) {
			if o == n {
				hasSelfEdge[n] = true
			}
		}
	}

	// sccs is already in reverse topological order: for an edge u->v
	// across components, v's component precedes u's in this list, so by
	// the time a component is visited every out-neighbor outside it has
	// a finished Max.
	for _, members := range sccs {
		if len(members) >= 2 || hasSelfEdge[members[0]] {
			analyzeComponent(g, members)
		} else {
			analyzeSingleton(g, members[0])
		}
	}
	return nil
}

// analyzeComponent handles a non-trivial component: size >= 2, or a single
// self-recursive node. All members share the same resulting Max.
func analyzeComponent(g *callgraph.Graph, members []int) {
	inComponent := make(map[int]bool, len(members))
	for _, m := range members {
		inComponent[m] = true
	}

	sccLocal := g.Nodes[members[0]].Local.AsMax()
	for _, m := range members[1:] {
		sccLocal = callgraph.MaxOf(sccLocal, g.Nodes[m].Local.AsMax())
	}
	// A cycle makes stack usage unbounded in general, even when every
	// member's own frame is known exactly — except an all-zero cycle,
	// which really is exactly zero no matter how many times it repeats.
	if sccLocal.Exact && sccLocal.Bytes > 0 {
		sccLocal = callgraph.LowerBoundMax(sccLocal.Bytes)
	}

	outside, hasOutside := outsideMax(g, members, inComponent)

	var result callgraph.Max
	if hasOutside {
		result = outside.Add(sccLocal)
	} else {
		result = sccLocal
	}
	for _, m := range members {
		g.Nodes[m].Max = result
	}
}

// analyzeSingleton handles a component of exactly one node with no
// self-edge.
func analyzeSingleton(g *callgraph.Graph, n int) {
	outside, hasOutside := outsideMax(g, []int{n}, map[int]bool{n: true})
	if !hasOutside {
		g.Nodes[n].Max = g.Nodes[n].Local.AsMax()
		return
	}
	g.Nodes[n].Max = outside.AddLocal(g.Nodes[n].Local)
}

// outsideMax folds the Max of every out-neighbor of members that is not
// itself a member of the component.
func outsideMax(g *callgraph.Graph, members []int, inComponent map[int]bool) (callgraph.Max, bool) {
	var result callgraph.Max
	found := false
	for _, m := range members {
		for _, o := range g.Out(m) {
			if inComponent[o] {
				continue
			}
			om := g.Nodes[o].Max
			if !found {
				result = om
				found = true
			} else {
				result = callgraph.MaxOf(result, om)
			}
		}
	}
	return result, found
}
