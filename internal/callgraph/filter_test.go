package callgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterKeepsOnlyReachableSubgraph(t *testing.T) {
	g := NewGraph()
	a := g.AddNode(Node{Name: "A"})
	b := g.AddNode(Node{Name: "B"})
	c := g.AddNode(Node{Name: "C"})
	d := g.AddNode(Node{Name: "D"})
	e := g.AddNode(Node{Name: "E"})
	g.AddEdge(a, b)
	g.AddEdge(a, c)
	g.AddEdge(d, e)

	filtered := Filter(g, a)
	require.Len(t, filtered.Nodes, 3)

	names := map[string]bool{}
	for _, n := range filtered.Nodes {
		names[n.Name] = true
	}
	require.True(t, names["A"])
	require.True(t, names["B"])
	require.True(t, names["C"])
	require.False(t, names["D"])
	require.False(t, names["E"])
}

func TestFindStartExactMatch(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{Name: "foo::bar"})
	idx, err := FindStart(g, "foo::bar")
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestFindStartPrefixHashMatch(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{Name: "foo::bar::h0123456789abcdef0"})
	idx, err := FindStart(g, "foo::bar")
	require.NoError(t, err)
	require.Equal(t, 0, idx)
}

func TestFindStartAmbiguousErrors(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{Name: "foo::bar::h0000000000000001"})
	g.AddNode(Node{Name: "foo::bar::h0000000000000002"})
	_, err := FindStart(g, "foo::bar")
	require.Error(t, err)
}

func TestFindStartNoMatchErrors(t *testing.T) {
	g := NewGraph()
	g.AddNode(Node{Name: "unrelated"})
	_, err := FindStart(g, "missing")
	require.Error(t, err)
}
