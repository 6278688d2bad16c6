package callgraph

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/embedded-tools/callstack/internal/builtins"
	"github.com/embedded-tools/callstack/internal/demangle"
	"github.com/embedded-tools/callstack/internal/ir"
	"github.com/embedded-tools/callstack/internal/objfile"
	"github.com/embedded-tools/callstack/internal/thumb"
)

// Input is everything the builder needs to run spec §4.4's five phases. It
// deliberately takes plain maps and slices rather than a pre-merged
// composite type: Phase A is where alias grouping and stack-size
// correlation actually happen, so there is no earlier point at which a
// richer type would help.
type Input struct {
	// Items is the full parsed IR item stream (§4.1).
	Items []ir.Item

	// Defined is every defined symbol classified as executable code
	// (objfile.SymText) by the object reader. Multiple entries can share
	// the same Value when the linker folded identical or aliased
	// functions together.
	Defined []objfile.Sym

	// StackSizes maps a symbol name to the exact byte count a build's
	// .stack_sizes section recorded for it. Keyed by name rather than
	// address: the section lives in the relocatable object, whose
	// addresses are section-relative and don't line up with the linked
	// executable's, so the two are correlated by the symbol name they
	// share instead.
	StackSizes map[string]uint64

	// Target is the compiler target triple, used to key the ad-hoc
	// builtins table for symbols with no stack-size record.
	Target string

	// HasCallMetadata selects the resolution strategy: true picks the
	// metadata-driven resolver, false the legacy signature-driven one.
	HasCallMetadata bool

	// NonRustSymbols names defined or undefined symbols known (by the
	// caller, typically because demangling failed) to originate outside
	// the Rust compilation unit, e.g. hand-written assembly or a C
	// library. Their presence makes every metadata-resolved dispatch
	// point a candidate for an unmodeled indirect call.
	NonRustSymbols map[string]bool

	// ThumbCode returns the raw instruction bytes for the function at
	// (addr, size), or nil if no object section covers it (e.g. it was
	// inlined away and only survives as a stack-size record).
	ThumbCode func(addr, size uint64) []byte

	// DataRanges returns the literal-pool byte ranges interleaved with a
	// function's code, keyed the same way as ThumbCode.
	DataRanges func(addr, size uint64) [][2]uint32
}

// Builder assembles one Graph from an Input by running Phases A-E in
// order. It is single-use: call Build once and discard it.
type Builder struct {
	in  Input
	g   *Graph
	log logrus.FieldLogger
	err *multierror.Error

	// nameToNode maps every symbol name observed (a function's canonical
	// name and every alias it was folded with) to its graph node.
	nameToNode map[string]int

	// addrToNode maps a function's Thumb-bit-cleared address to its graph
	// node, for Phase D to resolve a disassembled branch target back to a
	// node without re-deriving the alias grouping.
	addrToNode map[uint64]int

	// irDefined marks nodes that have a corresponding ir.Define: Phase C
	// already walked their statements and resolved any indirect calls it
	// found there, so Phase D's cruder "this function contains some
	// unresolved indirect branch" signal must not also route them to the
	// sentinel on top of that.
	irDefined map[int]bool

	// metadataByID and metaCallees are populated in Phase A-adjacent
	// bookkeeping (actually during the metadata item pass) for the
	// metadata-driven resolver to consult in Phase E.
	metadataByID map[int]ir.Metadata
	metaCallees  map[int][]int

	indirects map[string]*bucket
	dynamics  map[string]*bucket

	formatterCallSites []int

	resolver DispatchResolver

	hasNonRustSymbols bool

	dispatchNodes map[string]int
	sentinel      int

	warned map[string]bool
}

// NewBuilder constructs a Builder over in, selecting the dispatch resolver
// per Input.HasCallMetadata.
func NewBuilder(in Input, log logrus.FieldLogger) *Builder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Builder{
		in:            in,
		g:             NewGraph(),
		log:           log,
		nameToNode:    map[string]int{},
		addrToNode:    map[uint64]int{},
		irDefined:     map[int]bool{},
		metadataByID:  map[int]ir.Metadata{},
		metaCallees:   map[int][]int{},
		indirects:     map[string]*bucket{},
		dynamics:      map[string]*bucket{},
		dispatchNodes: map[string]int{},
		sentinel:      -1,
		warned:        map[string]bool{},
	}
	if in.HasCallMetadata {
		b.resolver = newMetadataResolver()
	} else {
		b.resolver = signatureResolver{}
	}
	b.hasNonRustSymbols = len(in.NonRustSymbols) > 0
	return b
}

// Build runs Phases A-E and returns the finished graph. The returned error
// is non-nil only for a fatal condition (spec §7's "Bug" class); Phase D's
// accumulated consistency violations are attached as a multierror and
// returned alongside a still-usable graph.
func (b *Builder) Build() (*Graph, error) {
	b.phaseA()
	b.phaseMetadataItems()
	b.phaseB()
	b.phaseC()
	b.phaseD()
	b.resolver.Finish(b)

	if err := b.checkHasStackInfo(); err != nil {
		return b.g, err
	}
	return b.g, b.err.ErrorOrNil()
}

func (b *Builder) warnf(format string, args ...interface{}) {
	b.log.Warnf(format, args...)
}

// warnOnce logs format at most once per distinct key, for the "warn once
// per anomaly class" rules spec §4.4/§7 call for around noisy repeated
// conditions (inline asm bodies, intrinsic families).
func (b *Builder) warnOnce(key, format string, args ...interface{}) {
	if b.warned[key] {
		return
	}
	b.warned[key] = true
	b.log.Warnf(format, args...)
}

func (b *Builder) recordErr(err error) {
	b.err = multierror.Append(b.err, err)
}

func (b *Builder) checkHasStackInfo() error {
	for _, n := range b.g.Nodes {
		if n.Local.Known {
			return nil
		}
	}
	return ErrNoStackInfo
}

// Phase A — node materialization. Groups defined-symbol aliases by
// address, picks one canonical display name per address, and seeds each
// node's Local from a stack-size record or, failing that, the ad-hoc
// builtins table.
func (b *Builder) phaseA() {
	groups := map[uint64][]objfile.Sym{}
	var order []uint64
	for _, s := range b.in.Defined {
		if _, ok := groups[s.Value]; !ok {
			order = append(order, s.Value)
		}
		groups[s.Value] = append(groups[s.Value], s)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, addr := range order {
		syms := groups[addr]
		canonical := chooseCanonicalName(syms)

		var local Local
		if size, ok := b.stackSizeOf(syms); ok {
			local = ExactLocal(size)
		} else if size, ok := builtins.Lookup(b.in.Target, canonical); ok {
			local = ExactLocal(size)
			b.warnf("no stack-size record for %q; using built-in table value for %s", canonical, b.in.Target)
		} else {
			local = UnknownLocal
			b.warnf("no stack-size information for %q", canonical)
		}

		node := b.g.AddNode(Node{Name: canonical, Local: local})
		for _, s := range syms {
			b.nameToNode[s.Name] = node
		}
		b.addrToNode[objfile.ClearThumbBit(addr)] = node
	}
}

// stackSizeOf looks up a stack-size record under any of a folded-symbol
// group's aliases.
func (b *Builder) stackSizeOf(syms []objfile.Sym) (uint64, bool) {
	for _, s := range syms {
		if size, ok := b.in.StackSizes[s.Name]; ok {
			return size, true
		}
	}
	return 0, false
}

// chooseCanonicalName picks a display name among a group of symbols the
// linker folded onto the same address: skip compiler-emitted mapping
// markers ($a/$t/$d) when any non-marker alias exists, and otherwise keep
// the first name in symbol-table order so the choice is deterministic.
func chooseCanonicalName(syms []objfile.Sym) string {
	for _, s := range syms {
		if !objfile.IsLocationMarker(s.Name) {
			return s.Name
		}
	}
	return syms[0].Name
}

// phaseMetadataItems indexes every numbered metadata item up front so
// Phase E's resolver can look any of them up by id regardless of where in
// the item stream it appeared (metadata can be defined after the call
// sites that reference it).
func (b *Builder) phaseMetadataItems() {
	for _, it := range b.in.Items {
		m, ok := it.(*ir.MetadataItem)
		if !ok {
			continue
		}
		b.metadataByID[m.ID] = m.Kind
	}

	// A function-level !rust metadata reference names the set of
	// functions this attachment point can resolve to: any FnMeta/DynMeta
	// reached from that id identifies the attaching function itself as a
	// callee candidate for that dispatch point, mirroring the Set
	// expansion the resolver performs for call sites.
	for _, it := range b.in.Items {
		def, ok := it.(*ir.Define)
		if !ok {
			continue
		}
		node, ok := b.nameToNode[def.Name]
		if !ok {
			continue
		}
		for _, ref := range def.Meta {
			if ref.Kind != "rust" {
				continue
			}
			b.metaCallees[ref.ID] = append(b.metaCallees[ref.ID], node)
		}
	}
}

// Phase B — signature inventory. Every defined function becomes a
// candidate callee of either the dynamic-dispatch bucket for its erased
// signature (if it looks like an object-safe trait method) or the plain
// indirect-call bucket for its exact signature. Declared-but-undefined
// symbols with a known signature are added as indirect-call candidates
// too, via a dangling placeholder node.
func (b *Builder) phaseB() {
	for _, it := range b.in.Items {
		switch item := it.(type) {
		case *ir.Define:
			node, ok := b.nameToNode[item.Name]
			if !ok {
				continue
			}
			if isPolymorphicMethod(item) {
				b.dynamicBucket(item.Sig.Erase()).addCallee(node)
			} else {
				b.indirectBucket(item.Sig).addCallee(node)
			}
		case *ir.Declare:
			if item.Sig == nil {
				continue
			}
			node := b.danglingNode(item.Name)
			b.indirectBucket(*item.Sig).addCallee(node)
		}
	}
}

// isPolymorphicMethod reports whether def has the shape of an object-safe
// trait method: a pointer-typed receiver as its first parameter, and a
// demangled name of the `<Type as Trait>::method` form.
func isPolymorphicMethod(def *ir.Define) bool {
	if len(def.Sig.Inputs) == 0 {
		return false
	}
	ptr, ok := def.Sig.Inputs[0].(ir.PointerType)
	if !ok {
		return false
	}
	if _, isFunc := ptr.Elem.(ir.FuncType); isFunc {
		return false
	}
	display, ok := demangle.Demangle(def.Name)
	if !ok {
		return false
	}
	return demangle.IsTraitImplMethod(display)
}

var memIntrinsicPrefixes = []string{"llvm.memcpy.", "llvm.memset.", "llvm.memmove."}

var memRuntimeNames = []string{
	"memcpy", "memset", "memmove",
	"__aeabi_memcpy", "__aeabi_memcpy4", "__aeabi_memcpy8",
	"__aeabi_memset", "__aeabi_memset4", "__aeabi_memset8",
	"__aeabi_memclr", "__aeabi_memclr4", "__aeabi_memclr8",
}

var noOpIntrinsicPrefixes = []string{"llvm.dbg.", "llvm.lifetime.start", "llvm.lifetime.end"}
var noOpIntrinsicNames = map[string]bool{"llvm.trap": true, "llvm.assume": true}

// Phase C — edge discovery from IR statements. Walks every function body
// and turns each statement into a graph edge, a queued indirect-call
// candidate, or nothing, per spec §4.4's per-statement-kind rules.
func (b *Builder) phaseC() {
	for _, it := range b.in.Items {
		def, ok := it.(*ir.Define)
		if !ok {
			continue
		}
		caller, ok := b.nameToNode[def.Name]
		if !ok {
			continue
		}
		b.irDefined[caller] = true
		for _, stmt := range def.Stmts {
			b.walkStmt(caller, stmt)
		}
	}
}

func (b *Builder) walkStmt(caller int, stmt ir.Stmt) {
	switch s := stmt.(type) {
	case ir.AsmStmt:
		b.warnOnce("asm:"+s.Body, "function body contains inline assembly; no call edges derived from it")
	case ir.DirectCall:
		b.directCallEdge(caller, s.Callee)
	case ir.BitcastCall:
		if s.Callee == nil {
			b.warnOnce("bitcast-unresolved", "bitcast call target could not be named; routing to the unresolved sentinel")
			b.g.AddEdge(caller, b.sentinelNode())
			return
		}
		b.directCallEdge(caller, *s.Callee)
	case ir.IndirectCall:
		b.resolver.QueueCall(b, caller, s)
	case ir.OtherStmt:
		// Contributes no edge.
	default:
		panic("callgraph: unreachable statement variant")
	}
}

func (b *Builder) directCallEdge(caller int, callee string) {
	if isNoOpIntrinsic(callee) {
		return
	}
	if hasAnyPrefix(callee, memIntrinsicPrefixes) {
		for _, name := range memRuntimeNames {
			if idx, ok := b.nameToNode[name]; ok {
				b.g.AddEdge(caller, idx)
			}
		}
		return
	}
	b.g.AddEdge(caller, b.danglingNode(callee))
}

func isNoOpIntrinsic(name string) bool {
	if noOpIntrinsicNames[name] {
		return true
	}
	return hasAnyPrefix(name, noOpIntrinsicPrefixes)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(s) >= len(p) && s[:len(p)] == p {
			return true
		}
	}
	return false
}

// danglingNode returns the node for name, creating an Unknown-local
// placeholder the first time a caller references a symbol with no
// defined-symbol entry of its own (an undefined or stripped callee).
func (b *Builder) danglingNode(name string) int {
	if idx, ok := b.nameToNode[name]; ok {
		return idx
	}
	idx := b.g.AddNode(Node{Name: name, Local: UnknownLocal})
	b.nameToNode[name] = idx
	return idx
}

// dispatchNode returns the fictitious node representing an indirect-call
// or dynamic-dispatch equivalence class, creating it (dashed, zero-cost —
// the dispatch itself performs no stack allocation) the first time name is
// requested.
func (b *Builder) dispatchNode(name string) int {
	if idx, ok := b.dispatchNodes[name]; ok {
		return idx
	}
	idx := b.g.AddNode(Node{Name: name, Local: ExactLocal(0), Dashed: true})
	b.dispatchNodes[name] = idx
	return idx
}

// sentinelNode returns the single "?" node standing in for every call
// whose target could not be resolved at all.
func (b *Builder) sentinelNode() int {
	if b.sentinel < 0 {
		b.sentinel = b.g.AddNode(Node{Name: "?", Local: UnknownLocal, Dashed: true})
	}
	return b.sentinel
}

func (b *Builder) indirectBucket(sig ir.Sig) *bucket {
	key := sig.String()
	bk, ok := b.indirects[key]
	if !ok {
		bk = &bucket{Sig: sig}
		b.indirects[key] = bk
	}
	return bk
}

func (b *Builder) dynamicBucket(erased ir.Sig) *bucket {
	key := erased.String()
	bk, ok := b.dynamics[key]
	if !ok {
		bk = &bucket{Sig: erased}
		b.dynamics[key] = bk
	}
	return bk
}

// Phase D — machine-code refinement. Disassembles every live function
// with recovered Thumb code and reconciles the result against what Phase A
// already recorded: a zero IR-level estimate is replaced outright, a
// non-zero IR-level estimate that differs from the disassembly is a
// consistency violation, and a
// function whose body contains an indirect branch not already accounted
// for by an IR-level indirect call is routed to the sentinel, since its
// real targets (typically a compiler-generated jump table) are invisible
// at the IR level.
func (b *Builder) phaseD() {
	if b.in.ThumbCode == nil {
		return
	}
	for _, s := range b.in.Defined {
		if objfile.IsLocationMarker(s.Name) || s.Size == 0 {
			continue
		}
		node, ok := b.nameToNode[s.Name]
		if !ok {
			continue
		}
		addr := objfile.ClearThumbBit(s.Value)
		code := b.in.ThumbCode(addr, s.Size)
		if code == nil {
			continue
		}
		var ranges [][2]uint32
		if b.in.DataRanges != nil {
			ranges = b.in.DataRanges(addr, s.Size)
		}

		res, err := thumb.Analyze(code, uint32(addr), ranges)
		if err != nil {
			b.recordErr(errors.Wrapf(err, "disassembling %s", s.Name))
			continue
		}
		b.reconcileLocal(node, s.Name, res)

		for _, target := range res.Direct {
			b.addThumbCallEdge(node, s.Name, target, "BL")
		}
		for _, target := range res.TailCalls {
			b.addThumbCallEdge(node, s.Name, target, "tail-call B")
		}

		// A function Phase C already walked (it has an ir.Define) resolved
		// its own indirect calls through the dispatch mechanism; routing it
		// to the sentinel too would needlessly downgrade an otherwise-exact
		// Max. Only a function with no IR body of its own — one Phase D is
		// the sole source of control-flow information for — gets this.
		if res.Indirect && !b.irDefined[node] {
			b.g.AddEdge(node, b.sentinelNode())
		}
	}
}

// addThumbCallEdge resolves a disassembled branch target to its graph node
// and adds the edge, or records an ErrUnresolvedSymbol if the target address
// matches no known function — a compiler/linker contract violation, not an
// anomaly to downgrade and continue past.
func (b *Builder) addThumbCallEdge(caller int, callerName string, target uint32, kind string) {
	callee, ok := b.addrToNode[uint64(target)]
	if !ok {
		b.recordErr(errors.Wrapf(ErrUnresolvedSymbol, "%s: %s target 0x%x has no corresponding symbol", callerName, kind, target))
		return
	}
	b.g.AddEdge(caller, callee)
}

func (b *Builder) reconcileLocal(node int, name string, res thumb.Result) {
	if res.Local == nil {
		return
	}
	measured := *res.Local
	cur := b.g.Nodes[node].Local
	switch {
	case !cur.Known:
		b.g.Nodes[node].Local = ExactLocal(measured)
	case cur.Bytes == 0 && measured > 0:
		b.g.Nodes[node].Local = ExactLocal(measured)
	case cur.Bytes != measured:
		b.recordErr(errors.Wrapf(ErrConsistencyViolation, "%s: IR-level estimate %d bytes disagrees with disassembly %d bytes", name, cur.Bytes, measured))
	}
}
