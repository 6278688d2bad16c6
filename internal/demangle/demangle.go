// Package demangle turns Rust's mangled symbol names into display names
// and strips the compiler's disambiguating hash suffix where it would
// otherwise make two printings of "the same" function look distinct.
package demangle

import "strings"

// hashLength is the length of a Rust legacy-mangling hash suffix:
// "::h" followed by 16 lowercase hex digits.
const hashLength = 19

// Dehash removes a trailing "::h<16 hex digits>" hash suffix from a
// demangled name, if present, matching the original tool's ambiguity-
// resolution heuristic: two symbols that only differ by their compiler-
// generated hash are almost always "the same" function from a human's
// point of view (e.g. two monomorphizations), so the hash is not part of
// the display identity.
func Dehash(demangled string) (string, bool) {
	if len(demangled) <= hashLength {
		return demangled, false
	}
	suffix := demangled[len(demangled)-hashLength:]
	if !strings.HasPrefix(suffix, "::h") {
		return demangled, false
	}
	hex := suffix[3:]
	for _, r := range hex {
		if !isHexDigit(r) {
			return demangled, false
		}
	}
	return demangled[:len(demangled)-hashLength], true
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}
