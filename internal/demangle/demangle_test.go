package demangle

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDehashStripsTrailingHash(t *testing.T) {
	stripped, ok := Dehash("example::function::hfc5adc5d79855638")
	require.True(t, ok)
	require.Equal(t, "example::function", stripped)
}

func TestDehashLeavesNonHashAlone(t *testing.T) {
	_, ok := Dehash("example::function")
	require.False(t, ok)

	_, ok = Dehash("short")
	require.False(t, ok)
}

func TestDemangleSimplePath(t *testing.T) {
	// _ZN4core3fmt5Write9write_str17h0123456789abcdefE
	mangled := "_ZN4core3fmt5Write9write_str17h0123456789abcdefE"
	display, ok := Demangle(mangled)
	require.True(t, ok)
	require.Equal(t, "core::fmt::Write::write_str::h0123456789abcdef", display)

	stripped, dehashed := Dehash(display)
	require.True(t, dehashed)
	require.Equal(t, "core::fmt::Write::write_str", stripped)
}

func TestDemangleNonRustName(t *testing.T) {
	_, ok := Demangle("memcpy")
	require.False(t, ok)
}

func TestDemangleEscapes(t *testing.T) {
	// _ZN ... "<Counter as core..fmt..Debug>" ... "fmt" E
	mangled := "_ZN54_$LT$counters..Counter$u20$as$u20$core..fmt..Debug$GT$3fmt17habcdef0123456789E"
	display, ok := Demangle(mangled)
	require.True(t, ok)
	require.Contains(t, display, "<counters::Counter as core::fmt::Debug>::fmt")
	require.True(t, IsTraitImplMethod(display))
}

func TestIsTraitImplMethodFalseForPlainFn(t *testing.T) {
	require.False(t, IsTraitImplMethod("core::fmt::Write::write_str"))
}
