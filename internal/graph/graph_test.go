package graph

// Shared fixture for the traversal/SCC tests in this package: a small graph with one
// back edge (3 -> 2) and a diamond join (4 -> 5, 6 -> 7), from Muchnick,
// "Advanced Compiler Design & Implementation", figure 8.21.
var graphMuchnick = MakeBiGraph(IntGraph{
	0: {1},
	1: {2},
	2: {3, 4},
	3: {2},
	4: {5, 6},
	5: {7},
	6: {7},
	7: {},
})
