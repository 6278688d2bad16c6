package callgraph

import (
	"strings"

	"github.com/embedded-tools/callstack/internal/ir"
)

// voidAliasSuffix is the name every concrete stand-in for `fmt::Void` ends
// in; the alias itself is unstable across compilations (its full path can
// be `core::fmt::Void` or carry a disambiguating `.NN` suffix), so it must
// be found by shape rather than matched literally.
const voidAliasSuffix = "fmt::Void"

// resolveFormatterBucket implements spec §4.4's formatter special case
// (signature-driven path only): find the single indirect-call bucket whose
// signature is `fn(*Void, *Formatter) -> i1`, and merge it with the
// separately tracked set of formatter call sites so those calls are not
// left dangling just because the `Void` alias name varies.
func (b *Builder) resolveFormatterBucket() {
	if len(b.formatterCallSites) == 0 {
		return
	}

	var candidates []*bucket
	for _, bk := range b.indirects {
		if !sigIsFormatterResult(bk.Sig) {
			continue
		}
		ptr, ok := bk.Sig.Inputs[0].(ir.PointerType)
		if !ok {
			continue
		}
		alias, ok := ptr.Elem.(ir.AliasType)
		if ok && isVoidAlias(alias.Name) {
			candidates = append(candidates, bk)
		}
	}

	var target *bucket
	switch {
	case len(candidates) == 1:
		target = candidates[0]
	case len(candidates) == 0:
		// No bucket matches the Void shape by name at all. Per the
		// recorded open-question decision, this is logged and left
		// unresolved rather than guessing a receiver type.
		b.warnf("formatter call sites present but no fmt::Void-shaped indirect-call bucket found; leaving %d call site(s) unresolved", len(b.formatterCallSites))
		return
	default:
		// More than one candidate: spec allows picking the single
		// candidate only when exactly one exists; otherwise refuse to
		// guess, same as the zero-candidate case.
		b.warnf("multiple fmt::Void-shaped indirect-call buckets found (%d); leaving formatter call sites unresolved", len(candidates))
		return
	}

	target.Called = true
	for _, caller := range b.formatterCallSites {
		target.addCaller(caller)
	}
}

func isVoidAlias(name string) bool {
	if isNumericSuffix(name) {
		name = name[:strings.LastIndexByte(name, '.')]
	}
	if !strings.HasSuffix(name, voidAliasSuffix) {
		return false
	}
	rest := strings.TrimSuffix(name, voidAliasSuffix)
	return rest == "" || rest == "core::"
}

func isNumericSuffix(rest string) bool {
	// "<alias>.NN" form: strip a trailing ".NN" disambiguator.
	i := strings.LastIndexByte(rest, '.')
	if i < 0 {
		return false
	}
	for _, r := range rest[i+1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
