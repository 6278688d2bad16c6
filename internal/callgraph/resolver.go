package callgraph

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/embedded-tools/callstack/internal/ir"
)

// DispatchResolver is the one interface behind spec §4.5's two indirect-
// call resolution strategies: metadata-driven (the compiler attached
// per-call-site metadata) and signature-driven (legacy). Builder picks one
// implementation at construction time, based on whether the IR dump
// carries call-site metadata.
type DispatchResolver interface {
	// QueueCall records one indirect-call statement made by caller.
	QueueCall(b *Builder, caller int, call ir.IndirectCall)
	// Finish synthesizes Phase E's fictitious dispatch nodes for every
	// equivalence class this resolver populated.
	Finish(b *Builder)
}

// metadataResolver implements the metadata-driven strategy.
type metadataResolver struct {
	// sites maps a metadata id to the callers that dispatch through it.
	sites map[int][]int
}

func newMetadataResolver() *metadataResolver {
	return &metadataResolver{sites: map[int][]int{}}
}

// QueueCall requires exactly one !rust metadata reference per call site, per
// spec §7's MetadataMismatch contract: a missing or duplicated reference is
// a compiler/linker contract violation, not something to guess at.
func (r *metadataResolver) QueueCall(b *Builder, caller int, call ir.IndirectCall) {
	var rustRefs []ir.MetaRef
	for _, ref := range call.Meta {
		if ref.Kind == "rust" {
			rustRefs = append(rustRefs, ref)
		}
	}
	if len(rustRefs) != 1 {
		b.recordErr(errors.Wrapf(ErrMetadataMismatch,
			"indirect call site in %s: expected exactly one !rust metadata reference, found %d",
			b.g.Nodes[caller].Name, len(rustRefs)))
		return
	}
	r.sites[rustRefs[0].ID] = append(r.sites[rustRefs[0].ID], caller)
}

func (r *metadataResolver) Finish(b *Builder) {
	for id, callers := range r.sites {
		md, ok := b.metadataByID[id]
		if !ok {
			b.recordErr(errors.Wrapf(ErrMetadataMismatch, "indirect call site references undefined metadata id !%d", id))
			continue
		}
		name, callees := b.resolveMetadataNode(id, md, map[int]bool{})
		node := b.dispatchNode(name)
		for _, c := range callers {
			b.g.AddEdge(c, node)
		}
		for _, c := range callees {
			b.g.AddEdge(node, c)
		}
		if b.hasNonRustSymbols {
			b.g.AddEdge(node, b.sentinelNode())
		}
	}
}

// resolveMetadataNode computes the display name and resolved callee set for
// metadata id, expanding Set nodes to the union of their referents'
// callees. visited guards against a malformed cyclic Set.
func (b *Builder) resolveMetadataNode(id int, md ir.Metadata, visited map[int]bool) (string, []int) {
	switch m := md.(type) {
	case ir.FnMeta:
		return m.SigName, b.metaCallees[id]
	case ir.DynMeta:
		return fmt.Sprintf("(dyn %s).%s", m.Trait, m.Method), b.metaCallees[id]
	case ir.DropMeta:
		return fmt.Sprintf("drop(dyn %s)", m.Trait), b.metaCallees[id]
	case ir.SetMeta:
		if visited[id] {
			b.warnf("metadata !%d is part of a cyclic !Set reference", id)
			return fmt.Sprintf("!%d", id), nil
		}
		visited[id] = true
		var callees []int
		for _, sub := range m.IDs {
			subMD, ok := b.metadataByID[sub]
			if !ok {
				b.warnf("!Set !%d references unknown metadata id !%d", id, sub)
				continue
			}
			_, c := b.resolveMetadataNode(sub, subMD, visited)
			callees = append(callees, c...)
		}
		return fmt.Sprintf("!%d", id), callees
	case ir.OpaqueMeta:
		b.warnf("indirect call site dispatches through unrecognized metadata kind %q (!%d)", m.Kind, id)
		return fmt.Sprintf("!%d", id), nil
	default:
		panic("callgraph: unreachable metadata variant")
	}
}

// signatureResolver implements the legacy, signature-driven strategy.
type signatureResolver struct{}

func (signatureResolver) QueueCall(b *Builder, caller int, call ir.IndirectCall) {
	if call.Sig.FirstInputErased() {
		bk := b.dynamicBucket(call.Sig)
		bk.Called = true
		bk.addCaller(caller)
		if sigIsFormatterResult(call.Sig) {
			b.formatterCallSites = append(b.formatterCallSites, caller)
		}
		return
	}
	bk := b.indirectBucket(call.Sig)
	bk.Called = true
	bk.addCaller(caller)
	if sigIsFormatterResult(call.Sig) {
		b.formatterCallSites = append(b.formatterCallSites, caller)
	}
}

func (signatureResolver) Finish(b *Builder) {
	b.resolveFormatterBucket()

	for key, bk := range b.indirects {
		if !bk.Called {
			continue
		}
		node := b.dispatchNode(bk.Sig.String() + "*")
		for _, c := range bk.Callers {
			b.g.AddEdge(c, node)
		}
		for _, c := range bk.Callees {
			b.g.AddEdge(node, c)
		}
		_ = key
	}
	for key, bk := range b.dynamics {
		if !bk.Called {
			continue
		}
		node := b.dispatchNode(bk.Sig.String())
		for _, c := range bk.Callers {
			b.g.AddEdge(c, node)
		}
		for _, c := range bk.Callees {
			b.g.AddEdge(node, c)
		}
		_ = key
	}
}

// sigIsFormatterResult reports the `fn(*Void, *Formatter) -> i1` shape spec
// §4.4 singles out as the formatting machinery's pseudo-object-safe
// dispatch point.
func sigIsFormatterResult(sig ir.Sig) bool {
	if len(sig.Inputs) != 2 {
		return false
	}
	out, ok := sig.Output.(ir.IntType)
	if !ok || out.Bits != 1 {
		return false
	}
	p0, ok := sig.Inputs[0].(ir.PointerType)
	if !ok {
		return false
	}
	p1, ok := sig.Inputs[1].(ir.PointerType)
	if !ok {
		return false
	}
	alias, ok := p1.Elem.(ir.AliasType)
	if !ok || alias.Name != "core::fmt::Formatter" {
		return false
	}
	_ = p0
	return true
}
