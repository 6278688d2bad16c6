package callgraph

import "github.com/pkg/errors"

// ErrUnresolvedSymbol is wrapped when Phase D finds a Thumb BL target, or an
// out-of-function tail-call B target, with no corresponding graph node.
var ErrUnresolvedSymbol = errors.New("callgraph: unresolved symbol")

// ErrMetadataMismatch is wrapped when an indirect call site doesn't carry
// exactly one !rust metadata reference, or references an id with no
// matching metadata item.
var ErrMetadataMismatch = errors.New("callgraph: metadata mismatch")

// ErrConsistencyViolation is wrapped when Phase D's IR-vs-disassembly
// reconciliation finds a non-zero IR-level stack size for a function that
// differs from the size its disassembly gives.
var ErrConsistencyViolation = errors.New("callgraph: consistency violation")

// ErrNoStackInfo is returned by Build when no node in the finished graph
// carries any exact local stack usage at all — the stack-bound analyzer
// has nothing to anchor a bound to.
var ErrNoStackInfo = errors.New("callgraph: no node has known stack usage")
