package graph

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func sortSCCs(sccs [][]int) [][]int {
	for _, c := range sccs {
		sort.Ints(c)
	}
	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs
}

func TestSCCMuchnickBackEdge(t *testing.T) {
	sccs := SCC(graphMuchnick)
	sccs = sortSCCs(sccs)
	want := [][]int{{0}, {1}, {2, 3}, {4}, {5}, {6}, {7}}
	require.Equal(t, want, sccs)
}

func TestSCCReverseTopological(t *testing.T) {
	// For edge u->v in different components, v's component must come
	// before u's in the result (successors are resolved first).
	g := IntGraph{
		0: {1},
		1: {2},
		2: {},
	}
	sccs := SCC(g)
	require.Len(t, sccs, 3)
	pos := map[int]int{}
	for i, c := range sccs {
		for _, n := range c {
			pos[n] = i
		}
	}
	require.Less(t, pos[2], pos[1])
	require.Less(t, pos[1], pos[0])
}

func TestSCCSelfLoop(t *testing.T) {
	g := IntGraph{
		0: {0, 1},
		1: {},
	}
	sccs := sortSCCs(SCC(g))
	require.Equal(t, [][]int{{0}, {1}}, sccs)
}

func TestSCCCycle(t *testing.T) {
	g := IntGraph{
		0: {1},
		1: {0},
	}
	sccs := SCC(g)
	require.Len(t, sccs, 1)
	require.ElementsMatch(t, []int{0, 1}, sccs[0])
}
