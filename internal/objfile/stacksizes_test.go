package objfile

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadStackSizes(t *testing.T) {
	var data []byte

	addr1 := make([]byte, 4)
	binary.LittleEndian.PutUint32(addr1, 0x1000)
	data = append(data, addr1...)
	data = append(data, 16) // ULEB128 for 16 (fits in one byte)

	addr2 := make([]byte, 4)
	binary.LittleEndian.PutUint32(addr2, 0x2000)
	data = append(data, addr2...)
	data = appendUvarint(data, 300) // needs 2 ULEB128 bytes

	entries, err := ReadStackSizes(data)
	require.NoError(t, err)
	require.Equal(t, []StackSizeEntry{
		{Addr: 0x1000, Size: 16},
		{Addr: 0x2000, Size: 300},
	}, entries)

	m := StackSizeMap(entries)
	require.Equal(t, uint64(16), m[0x1000])
	require.Equal(t, uint64(300), m[0x2000])
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func TestReadStackSizesTruncated(t *testing.T) {
	_, err := ReadStackSizes([]byte{0x01, 0x02})
	require.Error(t, err)
}
