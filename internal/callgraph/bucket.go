package callgraph

import "github.com/embedded-tools/callstack/internal/ir"

// bucket is one indirect-call or dynamic-dispatch equivalence class: every
// call site sharing a signature (or erased signature) resolves to the same
// candidate set. Called is set the first time any call site of this shape
// is observed; Callees is populated in Phase B from the signature
// inventory; Callers accumulates in Phase C as call sites are queued.
type bucket struct {
	Sig     ir.Sig
	Called  bool
	Callees []int
	Callers []int
}

func (b *bucket) addCaller(node int) {
	for _, c := range b.Callers {
		if c == node {
			return
		}
	}
	b.Callers = append(b.Callers, node)
}

func (b *bucket) addCallee(node int) {
	for _, c := range b.Callees {
		if c == node {
			return
		}
	}
	b.Callees = append(b.Callees, node)
}
