package ir

// MetaRef is an attached metadata reference: the metadata kind name (e.g.
// "rust") paired with the numeric id it points at.
type MetaRef struct {
	Kind string
	ID   int
}

// Item is a top-level IR item: a function Definition, a Declaration, or a
// NumberedMetadata node. Closed sum type: Define, Declare, MetadataItem are
// the only implementations.
type Item interface {
	isItem()
}

// Define is a function definition: a mangled name, its signature, its
// statement body, and the metadata references attached to the function
// itself (as opposed to one of its call sites).
type Define struct {
	Name  string
	Sig   Sig
	Stmts []Stmt
	Meta  []MetaRef
}

func (*Define) isItem() {}

// Declare is a function declaration (no body). Sig is nil when the IR
// dump doesn't carry type information for this external symbol.
type Declare struct {
	Name string
	Sig  *Sig
}

func (*Declare) isItem() {}

// MetadataItem is a numbered metadata node, e.g. `!42 = ...`.
type MetadataItem struct {
	ID   int
	Kind Metadata
}

func (*MetadataItem) isItem() {}

// Stmt is one statement inside a function body. Closed sum type: AsmStmt,
// DirectCall, IndirectCall, BitcastCall, OtherStmt are the only
// implementations.
type Stmt interface {
	isStmt()
}

// AsmStmt is an inline-assembly blob. The builder never derives a call
// edge from it; it only warns once per distinct body.
type AsmStmt struct{ Body string }

func (AsmStmt) isStmt() {}

// DirectCall is a call to a callee named verbatim by symbol.
type DirectCall struct{ Callee string }

func (DirectCall) isStmt() {}

// IndirectCall is a call through a function pointer or vtable slot. Sig is
// the reconstructed call-site signature; Meta carries any metadata
// references attached to this specific call site (used in metadata-aware
// mode instead of Sig).
type IndirectCall struct {
	Sig  Sig
	Meta []MetaRef
}

func (IndirectCall) isStmt() {}

// BitcastCall is `(transmute::<*const u8, fn()>(&sym))()`-shaped: a call
// to a symbol reached through a pointer bitcast rather than a direct
// reference. Callee is nil when the bitcast target could not be named.
type BitcastCall struct{ Callee *string }

func (BitcastCall) isStmt() {}

// OtherStmt is any statement the builder has no special handling for
// (labels, comments, data-flow-only instructions). It contributes no edge.
type OtherStmt struct{}

func (OtherStmt) isStmt() {}
