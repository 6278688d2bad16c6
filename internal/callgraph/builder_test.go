package callgraph

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/embedded-tools/callstack/internal/ir"
	"github.com/embedded-tools/callstack/internal/objfile"
	"github.com/embedded-tools/callstack/internal/thumb"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func findNode(g *Graph, name string) (int, bool) {
	for i, n := range g.Nodes {
		if n.Name == name {
			return i, true
		}
	}
	return 0, false
}

func hasEdge(g *Graph, from, to int) bool {
	for _, e := range g.Out(from) {
		if e == to {
			return true
		}
	}
	return false
}

func TestBuildDirectCallChain(t *testing.T) {
	items := []ir.Item{
		&ir.Define{
			Name: "main",
			Sig:  ir.Sig{},
			Stmts: []ir.Stmt{
				ir.DirectCall{Callee: "helper"},
			},
		},
		&ir.Define{
			Name:  "helper",
			Sig:   ir.Sig{},
			Stmts: nil,
		},
	}
	in := Input{
		Items: items,
		Defined: []objfile.Sym{
			{Name: "main", Value: 0x100, Size: 8, Kind: objfile.SymText},
			{Name: "helper", Value: 0x108, Size: 4, Kind: objfile.SymText},
		},
		StackSizes: map[string]uint64{"main": 16, "helper": 8},
	}
	b := NewBuilder(in, testLogger())
	g, err := b.Build()
	require.NoError(t, err)

	main, ok := findNode(g, "main")
	require.True(t, ok)
	helper, ok := findNode(g, "helper")
	require.True(t, ok)
	require.True(t, hasEdge(g, main, helper))
	require.Equal(t, ExactLocal(16), g.Nodes[main].Local)
	require.Equal(t, ExactLocal(8), g.Nodes[helper].Local)
}

func TestBuildDanglingCalleeGetsPlaceholder(t *testing.T) {
	items := []ir.Item{
		&ir.Define{
			Name: "main",
			Stmts: []ir.Stmt{
				ir.DirectCall{Callee: "__undefined_extern"},
			},
		},
	}
	in := Input{
		Items:      items,
		Defined:    []objfile.Sym{{Name: "main", Value: 0x200, Size: 4, Kind: objfile.SymText}},
		StackSizes: map[string]uint64{"main": 4},
	}
	b := NewBuilder(in, testLogger())
	g, err := b.Build()
	require.NoError(t, err)

	main, ok := findNode(g, "main")
	require.True(t, ok)
	extern, ok := findNode(g, "__undefined_extern")
	require.True(t, ok)
	require.True(t, hasEdge(g, main, extern))
	require.False(t, g.Nodes[extern].Local.Known)
}

func TestBuildMemIntrinsicFansOutToRuntimeHelpers(t *testing.T) {
	items := []ir.Item{
		&ir.Define{
			Name: "copier",
			Stmts: []ir.Stmt{
				ir.DirectCall{Callee: "llvm.memcpy.p0i8.p0i8.i32"},
			},
		},
		&ir.Define{Name: "memcpy"},
	}
	in := Input{
		Items: items,
		Defined: []objfile.Sym{
			{Name: "copier", Value: 0x10, Size: 4, Kind: objfile.SymText},
			{Name: "memcpy", Value: 0x20, Size: 4, Kind: objfile.SymText},
		},
		StackSizes: map[string]uint64{"copier": 0, "memcpy": 0},
	}
	b := NewBuilder(in, testLogger())
	g, err := b.Build()
	require.NoError(t, err)

	copier, _ := findNode(g, "copier")
	memcpy, _ := findNode(g, "memcpy")
	require.True(t, hasEdge(g, copier, memcpy))
}

func TestBuildNoOpIntrinsicAddsNoEdge(t *testing.T) {
	items := []ir.Item{
		&ir.Define{
			Name: "main",
			Stmts: []ir.Stmt{
				ir.DirectCall{Callee: "llvm.dbg.declare"},
			},
		},
	}
	in := Input{
		Items:      items,
		Defined:    []objfile.Sym{{Name: "main", Value: 0x30, Size: 2, Kind: objfile.SymText}},
		StackSizes: map[string]uint64{"main": 0},
	}
	b := NewBuilder(in, testLogger())
	g, err := b.Build()
	require.NoError(t, err)

	main, _ := findNode(g, "main")
	require.Empty(t, g.Out(main))
}

func TestBuildSignatureDrivenIndirectCall(t *testing.T) {
	sig := ir.Sig{Inputs: []ir.Type{ir.IntType{Bits: 32}}, Output: ir.IntType{Bits: 32}}
	items := []ir.Item{
		&ir.Define{
			Name: "caller",
			Stmts: []ir.Stmt{
				ir.IndirectCall{Sig: sig},
			},
		},
		&ir.Define{Name: "callee", Sig: sig},
	}
	in := Input{
		Items: items,
		Defined: []objfile.Sym{
			{Name: "caller", Value: 0x40, Size: 4, Kind: objfile.SymText},
			{Name: "callee", Value: 0x48, Size: 4, Kind: objfile.SymText},
		},
		StackSizes:      map[string]uint64{"caller": 8, "callee": 4},
		HasCallMetadata: false,
	}
	b := NewBuilder(in, testLogger())
	g, err := b.Build()
	require.NoError(t, err)

	caller, _ := findNode(g, "caller")
	callee, _ := findNode(g, "callee")
	dispatch, ok := findNode(g, sig.String()+"*")
	require.True(t, ok)
	require.True(t, g.Nodes[dispatch].Dashed)
	require.True(t, hasEdge(g, caller, dispatch))
	require.True(t, hasEdge(g, dispatch, callee))
}

func TestBuildMetadataDrivenIndirectCall(t *testing.T) {
	items := []ir.Item{
		&ir.MetadataItem{ID: 1, Kind: ir.FnMeta{SigName: "fn(i32) -> i32"}},
		&ir.Define{
			Name: "caller",
			Stmts: []ir.Stmt{
				ir.IndirectCall{Meta: []ir.MetaRef{{Kind: "rust", ID: 1}}},
			},
		},
		&ir.Define{Name: "callee", Meta: []ir.MetaRef{{Kind: "rust", ID: 1}}},
	}
	in := Input{
		Items: items,
		Defined: []objfile.Sym{
			{Name: "caller", Value: 0x50, Size: 4, Kind: objfile.SymText},
			{Name: "callee", Value: 0x58, Size: 4, Kind: objfile.SymText},
		},
		StackSizes:      map[string]uint64{"caller": 8, "callee": 4},
		HasCallMetadata: true,
	}
	b := NewBuilder(in, testLogger())
	g, err := b.Build()
	require.NoError(t, err)

	caller, _ := findNode(g, "caller")
	callee, _ := findNode(g, "callee")
	dispatch, ok := findNode(g, "fn(i32) -> i32")
	require.True(t, ok)
	require.True(t, hasEdge(g, caller, dispatch))
	require.True(t, hasEdge(g, dispatch, callee))
}

func TestBuildZeroIRLevelEstimateIsOverridableByReconcile(t *testing.T) {
	cur := ExactLocal(0)
	measured := uint64(12)
	b := &Builder{g: NewGraph()}
	node := b.g.AddNode(Node{Name: "f", Local: cur})
	local := measured
	b.reconcileLocal(node, "f", thumb.Result{Local: &local})
	require.Equal(t, ExactLocal(12), b.g.Nodes[node].Local)
}

func TestBuildConsistencyViolationAccumulates(t *testing.T) {
	b := &Builder{g: NewGraph()}
	node := b.g.AddNode(Node{Name: "f", Local: ExactLocal(8)})
	local := uint64(16)
	b.reconcileLocal(node, "f", thumb.Result{Local: &local})
	require.Error(t, b.err.ErrorOrNil())
}

func TestBuildNoStackInfoAtAllIsFatal(t *testing.T) {
	items := []ir.Item{&ir.Define{Name: "main"}}
	in := Input{
		Items:   items,
		Defined: []objfile.Sym{{Name: "main", Value: 0x60, Size: 2, Kind: objfile.SymText}},
	}
	b := NewBuilder(in, testLogger())
	_, err := b.Build()
	require.ErrorIs(t, err, ErrNoStackInfo)
}
