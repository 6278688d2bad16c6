package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/embedded-tools/callstack/internal/callgraph"
	"github.com/embedded-tools/callstack/internal/stackbound"
)

func TestComputeLabelsDehashesUniqueNames(t *testing.T) {
	g := callgraph.NewGraph()
	g.AddNode(callgraph.Node{Name: "_ZN4core3fmt5Write9write_fmt17h0123456789abcdefE"})

	labels := computeLabels(g)
	require.Equal(t, "core::fmt::Write::write_fmt", labels[0])
}

func TestComputeLabelsKeepsHashWhenDehashedFormCollides(t *testing.T) {
	g := callgraph.NewGraph()
	g.AddNode(callgraph.Node{Name: "_ZN4core3fmt5Write9write_fmt17h0123456789abcdefE"})
	g.AddNode(callgraph.Node{Name: "_ZN4core3fmt5Write9write_fmt17hfedcba9876543210E"})

	labels := computeLabels(g)
	require.Contains(t, labels[0], "::h0123456789abcdef")
	require.Contains(t, labels[1], "::hfedcba9876543210")
}

func TestComputeLabelsFallsBackToRawNameWhenNotMangled(t *testing.T) {
	g := callgraph.NewGraph()
	g.AddNode(callgraph.Node{Name: "__aeabi_memcpy"})

	labels := computeLabels(g)
	require.Equal(t, "__aeabi_memcpy", labels[0])
}

func TestBuildClustersSkipsTrivialSingletons(t *testing.T) {
	g := callgraph.NewGraph()
	a := g.AddNode(callgraph.Node{Name: "A", Local: callgraph.ExactLocal(4)})
	b := g.AddNode(callgraph.Node{Name: "B", Local: callgraph.ExactLocal(0)})
	c := g.AddNode(callgraph.Node{Name: "C", Local: callgraph.ExactLocal(0)})
	g.AddEdge(a, b)
	g.AddEdge(b, c)
	g.AddEdge(c, b)

	require.NoError(t, stackbound.Analyze(g))

	clusters := buildClusters(g)
	require.Len(t, clusters, 1)
	require.ElementsMatch(t, []int{b, c}, clusters[0].Nodes)
}

func TestBuildClustersIncludesSelfRecursiveSingleton(t *testing.T) {
	g := callgraph.NewGraph()
	a := g.AddNode(callgraph.Node{Name: "A", Local: callgraph.ExactLocal(12)})
	g.AddEdge(a, a)

	require.NoError(t, stackbound.Analyze(g))

	clusters := buildClusters(g)
	require.Len(t, clusters, 1)
	require.Equal(t, []int{a}, clusters[0].Nodes)
}

// TestRenderLinearChain exercises the full graph -> stackbound -> render
// pipeline for the linear-chain scenario (A->B->C, locals 4/8/16), checking
// that the emitted dot contains each node's resolved Max and the edges
// between them.
func TestRenderLinearChain(t *testing.T) {
	g := callgraph.NewGraph()
	a := g.AddNode(callgraph.Node{Name: "A", Local: callgraph.ExactLocal(4)})
	b := g.AddNode(callgraph.Node{Name: "B", Local: callgraph.ExactLocal(8)})
	c := g.AddNode(callgraph.Node{Name: "C", Local: callgraph.ExactLocal(16)})
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	require.NoError(t, stackbound.Analyze(g))

	var out strings.Builder
	require.NoError(t, render(g, &out))

	dot := out.String()
	require.Contains(t, dot, "digraph")
	require.Contains(t, dot, "= 28")
	require.Contains(t, dot, "= 24")
	require.Contains(t, dot, "= 16")
	require.Contains(t, dot, "n0 -> n1")
	require.Contains(t, dot, "n1 -> n2")
}

func TestRenderIndirectDispatchNodeIsDashed(t *testing.T) {
	g := callgraph.NewGraph()
	a := g.AddNode(callgraph.Node{Name: "A", Local: callgraph.ExactLocal(4)})
	s := g.AddNode(callgraph.Node{Name: "fn(i32) -> i32*", Local: callgraph.ExactLocal(0), Dashed: true})
	b := g.AddNode(callgraph.Node{Name: "B", Local: callgraph.ExactLocal(10)})
	c := g.AddNode(callgraph.Node{Name: "C", Local: callgraph.ExactLocal(20)})
	g.AddEdge(a, s)
	g.AddEdge(s, b)
	g.AddEdge(s, c)

	require.NoError(t, stackbound.Analyze(g))

	var out strings.Builder
	require.NoError(t, render(g, &out))

	dot := out.String()
	require.Contains(t, dot, "style=dashed")
	require.Contains(t, dot, "= 24")
}
