package objfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildArchive assembles a minimal valid ar archive from (name, body) pairs,
// for tests only.
func buildArchive(t *testing.T, members [][2]string) []byte {
	t.Helper()
	var b strings.Builder
	b.WriteString(archMagic)
	for _, m := range members {
		name, body := m[0], m[1]
		header := make([]byte, archHeaderLen)
		copy(header, []byte(name+"/"))
		for i := len(name) + 1; i < 16; i++ {
			header[i] = ' '
		}
		for i := 16; i < 48; i++ {
			header[i] = ' '
		}
		sizeStr := []byte(padRight(len(body), 10))
		copy(header[48:58], sizeStr)
		header[58] = '`'
		header[59] = '\n'
		b.Write(header)
		b.WriteString(body)
		if len(body)%2 == 1 {
			b.WriteByte('\n')
		}
	}
	return []byte(b.String())
}

func padRight(n, width int) string {
	s := itoa(n)
	for len(s) < width {
		s += " "
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestReadArchiveRoundTrip(t *testing.T) {
	data := buildArchive(t, [][2]string{
		{"libcore.o", "object-bytes-1"},
		{"libmem.o", "object-bytes-22"},
	})
	members, err := ReadArchive(data)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "libcore.o", members[0].Name)
	require.Equal(t, "object-bytes-1", string(members[0].Data))
	require.Equal(t, "libmem.o", members[1].Name)
	require.Equal(t, "object-bytes-22", string(members[1].Data))
}

func TestReadArchiveBadMagic(t *testing.T) {
	_, err := ReadArchive([]byte("not an archive"))
	require.Error(t, err)
}

func TestStripVersionSuffix(t *testing.T) {
	require.Equal(t, "memcpy", StripVersionSuffix("memcpy@GLIBC_2.4"))
	require.Equal(t, "memcpy", StripVersionSuffix("memcpy@@GLIBC_2.4"))
	require.Equal(t, "memcpy", StripVersionSuffix("memcpy"))
}

func TestIsLocationMarker(t *testing.T) {
	require.True(t, IsLocationMarker("$t"))
	require.True(t, IsLocationMarker("$t.12"))
	require.True(t, IsLocationMarker("$d"))
	require.False(t, IsLocationMarker("main"))
	require.False(t, IsLocationMarker(""))
}
