package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/embedded-tools/callstack/internal/callgraph"
	"github.com/embedded-tools/callstack/internal/demangle"
	"github.com/embedded-tools/callstack/internal/graph"
)

// render emits g as a dot digraph, computing each node's display name per
// the ambiguity policy: demangle, then strip the trailing hash suffix only
// when the stripped form is unique across the whole graph.
func render(g *callgraph.Graph, w io.Writer) error {
	labels := computeLabels(g)

	d := graph.Dot{
		Label: func(n int) string {
			return fmt.Sprintf("%s\\n%s\\nlocal: %s", labels[n], g.Nodes[n].Max, g.Nodes[n].Local)
		},
		Dashed: func(n int) bool {
			return g.Nodes[n].Dashed
		},
		Clusters: buildClusters(g),
	}
	return d.Fprint(g, w)
}

func computeLabels(g *callgraph.Graph) []string {
	demangled := make([]string, len(g.Nodes))
	dehashed := make([]string, len(g.Nodes))
	dehashedOK := make([]bool, len(g.Nodes))

	for i, n := range g.Nodes {
		name := n.Name
		if d, ok := demangle.Demangle(name); ok {
			name = d
		}
		demangled[i] = name
		if h, ok := demangle.Dehash(name); ok {
			dehashed[i] = h
			dehashedOK[i] = true
		}
	}

	counts := map[string]int{}
	for i := range g.Nodes {
		if dehashedOK[i] {
			counts[dehashed[i]]++
		}
	}

	labels := make([]string, len(g.Nodes))
	for i := range g.Nodes {
		if dehashedOK[i] && counts[dehashed[i]] == 1 {
			labels[i] = dehashed[i]
		} else {
			labels[i] = demangled[i]
		}
	}
	return labels
}

// buildClusters groups nodes by the SCC index stackbound assigned,
// emitting one cluster per non-trivial component (size >= 2, or a
// singleton with a self-edge) — a trivial singleton's Max already tells
// the whole story, so it gets no cluster box.
func buildClusters(g *callgraph.Graph) []graph.Cluster {
	members := map[int][]int{}
	for i, n := range g.Nodes {
		members[n.SCCID] = append(members[n.SCCID], i)
	}

	selfEdge := make([]bool, g.NumNodes())
	for i := range g.Nodes {
		for _, o := range g.Out(i) {
			if o == i {
				selfEdge[i] = true
			}
		}
	}

	var ids []int
	for id := range members {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var clusters []graph.Cluster
	for _, id := range ids {
		ns := members[id]
		if len(ns) < 2 && !selfEdge[ns[0]] {
			continue
		}
		clusters = append(clusters, graph.Cluster{
			Label: fmt.Sprintf("scc%d", id),
			Nodes: ns,
		})
	}
	return clusters
}
