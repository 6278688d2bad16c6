package objfile

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// StackSizeEntry is one record from a `.stack_sizes` section: the address
// of the function it describes and its compiler-computed local stack
// usage in bytes.
type StackSizeEntry struct {
	Addr uint64
	Size uint64
}

// ReadStackSizes decodes a `.stack_sizes` section: repeated records of a
// fixed-width address (4 bytes for 32-bit targets, the only width these
// embedded targets use) followed by a ULEB128-encoded byte count. The
// format is emitted by `-fstack-usage`/`-Z emit-stack-sizes` and is
// otherwise undocumented outside compiler source; `encoding/binary`'s
// Uvarint decodes LEB128 unsigned integers directly, so no dedicated LEB128
// library is needed.
func ReadStackSizes(data []byte) ([]StackSizeEntry, error) {
	var out []StackSizeEntry
	pos := 0
	for pos < len(data) {
		if pos+4 > len(data) {
			return nil, errors.New("objfile: truncated .stack_sizes address field")
		}
		addr := uint64(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4

		size, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, errors.New("objfile: malformed .stack_sizes ULEB128 size field")
		}
		pos += n

		out = append(out, StackSizeEntry{Addr: ClearThumbBit(addr), Size: size})
	}
	return out, nil
}

// StackSizeMap indexes ReadStackSizes' output by address, for the builder's
// Phase A lookup ("the compiler emitted a size record for this symbol").
func StackSizeMap(entries []StackSizeEntry) map[uint64]uint64 {
	m := make(map[uint64]uint64, len(entries))
	for _, e := range entries {
		m[e.Addr] = e.Size
	}
	return m
}
