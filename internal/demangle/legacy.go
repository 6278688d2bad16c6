package demangle

import (
	"strconv"
	"strings"
)

// Demangle decodes a Rust "legacy" mangled symbol (the `_ZN...E` scheme:
// an underscore, then length-prefixed path components, closed by `E`) into
// its `::`-joined display form. It reports false for anything that isn't
// shaped like a legacy Rust symbol (C symbols, compiler-builtins names,
// etc.), in which case the name is returned unchanged.
//
// This only handles the legacy scheme, not the newer v0 (`_R...`) mangling
// — every target this analyzer has been exercised against is pre-v0 rustc,
// and a non-Rust or v0 name simply fails to demangle and is displayed as
// given.
func Demangle(mangled string) (string, bool) {
	name := mangled
	if strings.HasPrefix(name, "_ZN") {
		name = name[1:] // drop the "_" of "_Z"; "__ZN" (an extra underscore) is handled below
	} else if strings.HasPrefix(name, "__ZN") {
		name = name[2:]
	} else {
		return mangled, false
	}
	if !strings.HasPrefix(name, "ZN") {
		return mangled, false
	}
	name = name[2:]

	var parts []string
	for len(name) > 0 {
		if name[0] == 'E' {
			name = name[1:]
			break
		}
		n := 0
		i := 0
		for i < len(name) && name[i] >= '0' && name[i] <= '9' {
			n = n*10 + int(name[i]-'0')
			i++
		}
		if i == 0 || n == 0 || i+n > len(name) {
			return mangled, false
		}
		parts = append(parts, unescapeComponent(name[i:i+n]))
		name = name[i+n:]
	}
	if len(parts) == 0 {
		return mangled, false
	}
	return strings.Join(parts, "::"), true
}

var escapes = map[string]string{
	"$LT$":  "<",
	"$GT$":  ">",
	"$RF$":  "&",
	"$BP$":  "*",
	"$C$":   ",",
	"$u20$": " ",
	"$u27$": "'",
	"$u3b$": ";",
	"$u7b$": "{",
	"$u7d$": "}",
	"$u5b$": "[",
	"$u5d$": "]",
	"$SP$":  "@",
}

// unescapeComponent expands a mangled path component's escape sequences
// ("$LT$", "$u20$", "..", generic "$uXXXX$") the way rustc's legacy mangler
// encodes characters that aren't valid in a plain symbol name.
func unescapeComponent(s string) string {
	s = strings.ReplaceAll(s, "..", "::")
	var b strings.Builder
	for i := 0; i < len(s); {
		if s[i] == '$' {
			if end := strings.IndexByte(s[i+1:], '$'); end >= 0 {
				tag := s[i : i+1+end+1]
				if lit, ok := escapes[tag]; ok {
					b.WriteString(lit)
					i += len(tag)
					continue
				}
				if r, ok := decodeUnicodeEscape(tag); ok {
					b.WriteRune(r)
					i += len(tag)
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}

// decodeUnicodeEscape decodes rustc's generic "$uXXXX$" hex-codepoint
// escape.
func decodeUnicodeEscape(tag string) (rune, bool) {
	if !strings.HasPrefix(tag, "$u") || !strings.HasSuffix(tag, "$") {
		return 0, false
	}
	hex := tag[2 : len(tag)-1]
	v, err := strconv.ParseInt(hex, 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// IsTraitImplMethod reports whether a demangled name has the
// "<Type as Trait>::method" shape rustc emits for a trait-impl method —
// used by the call-graph builder's Phase B to decide whether a candidate
// belongs in the dynamic-dispatch bucket.
func IsTraitImplMethod(display string) bool {
	i := strings.Index(display, "<")
	j := strings.LastIndex(display, ">::")
	if i < 0 || j < 0 || j <= i {
		return false
	}
	inner := display[i+1 : j]
	return strings.Contains(inner, " as ")
}
