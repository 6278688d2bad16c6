package objfile

import (
	"debug/elf"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Executable wraps a linked ELF executable and answers the two C3 queries
// spec §4.3 needs from it: the defined-symbol table and the set of
// undefined external symbol names.
type Executable struct {
	f        *elf.File
	Mappings []Mapping // sorted by Addr
}

// OpenExecutable reads symbol and mapping-symbol data from a linked ELF
// executable. Grounded on the teacher's elfFile.Symbols, generalized to
// also classify ARM mapping symbols ($a/$t/$d).
func OpenExecutable(r readerAt) (*Executable, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, errors.Wrap(err, "objfile: opening ELF executable")
	}
	e := &Executable{f: f}
	if err := e.loadMappings(); err != nil {
		return nil, err
	}
	return e, nil
}

type readerAt interface {
	ReadAt(p []byte, off int64) (n int, err error)
}

func (e *Executable) loadMappings() error {
	syms, err := e.f.Symbols()
	if err != nil {
		// No symbol table at all is not fatal for mapping-symbol purposes;
		// the caller will simply get no mapping info.
		return nil
	}
	for _, s := range syms {
		kind, ok := mappingKindOf(s.Name)
		if !ok {
			continue
		}
		e.Mappings = append(e.Mappings, Mapping{Addr: ClearThumbBit(s.Value), Kind: kind})
	}
	sort.Slice(e.Mappings, func(i, j int) bool { return e.Mappings[i].Addr < e.Mappings[j].Addr })
	return nil
}

// mappingKindOf reports whether name is an ARM mapping symbol ($a, $t, $d,
// optionally suffixed ".<n>" to disambiguate repeats at the same address)
// and if so, which kind.
func mappingKindOf(name string) (MappingKind, bool) {
	base := name
	if i := strings.IndexByte(name, '.'); i >= 0 {
		base = name[:i]
	}
	switch base {
	case "$a":
		return MapARM, true
	case "$t":
		return MapThumb, true
	case "$d":
		return MapData, true
	}
	return 0, false
}

// IsLocationMarker reports whether name is a compiler-emitted location
// marker rather than a real symbol name: a mapping symbol, or any name
// beginning with "$a"/"$t"/"$d"/"$x" with an optional ".<n>" suffix. Spec
// §4.4 Phase A skips these when choosing a canonical name for a symbol.
func IsLocationMarker(name string) bool {
	if name == "" {
		return false
	}
	if name[0] != '$' {
		return false
	}
	_, ok := mappingKindOf(name)
	if ok {
		return true
	}
	return len(name) >= 2 && name[1] == 'x'
}

// DefinedSymbols returns every defined (non-undefined) symbol, with its
// Thumb-mode address bit already cleared.
func (e *Executable) DefinedSymbols() ([]Sym, error) {
	syms, err := e.f.Symbols()
	if err != nil {
		return nil, errors.Wrap(err, "objfile: reading ELF symbols")
	}
	var out []Sym
	for _, s := range syms {
		if s.Section == elf.SHN_UNDEF {
			continue
		}
		kind := classify(e.f, s)
		out = append(out, Sym{
			Name:    s.Name,
			Value:   ClearThumbBit(s.Value),
			Size:    s.Size,
			Kind:    kind,
			Local:   elf.ST_BIND(s.Info) == elf.STB_LOCAL,
			Section: int(s.Section),
		})
	}
	return out, nil
}

// UndefinedSymbols returns the names of external symbols this executable
// references but does not define, with any "@version" or "@@version" suffix
// the linker attaches stripped off.
func (e *Executable) UndefinedSymbols() ([]string, error) {
	syms, err := e.f.Symbols()
	if err != nil {
		return nil, errors.Wrap(err, "objfile: reading ELF symbols")
	}
	seen := map[string]bool{}
	var out []string
	for _, s := range syms {
		if s.Section != elf.SHN_UNDEF || s.Name == "" {
			continue
		}
		name := StripVersionSuffix(s.Name)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

// StripVersionSuffix removes a linker symbol-versioning suffix
// ("name@VERS" or "name@@VERS") from name.
func StripVersionSuffix(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

func classify(f *elf.File, s elf.Symbol) SymKind {
	switch s.Section {
	case elf.SHN_COMMON:
		return SymBSS
	}
	if int(s.Section) < 0 || int(s.Section) >= len(f.Sections) {
		return SymUnknown
	}
	sect := f.Sections[s.Section]
	switch sect.Flags & (elf.SHF_WRITE | elf.SHF_ALLOC | elf.SHF_EXECINSTR) {
	case elf.SHF_ALLOC | elf.SHF_EXECINSTR:
		return SymText
	case elf.SHF_ALLOC:
		return SymROData
	case elf.SHF_ALLOC | elf.SHF_WRITE:
		return SymData
	}
	return SymUnknown
}

// SectionBytes returns the raw bytes of the named section, or nil if the
// executable has no such section.
func (e *Executable) SectionBytes(name string) ([]byte, error) {
	sect := e.f.Section(name)
	if sect == nil {
		return nil, nil
	}
	return sect.Data()
}

// CodeAt returns the size bytes starting at addr (already Thumb-bit
// cleared), found by locating whichever loaded section's address range
// contains it. Returns nil if no section covers the range.
func (e *Executable) CodeAt(addr, size uint64) ([]byte, error) {
	for _, sect := range e.f.Sections {
		if sect.Flags&elf.SHF_ALLOC == 0 {
			continue
		}
		if addr < sect.Addr || addr+size > sect.Addr+sect.Size {
			continue
		}
		data, err := sect.Data()
		if err != nil {
			return nil, errors.Wrapf(err, "objfile: reading section %s", sect.Name)
		}
		off := addr - sect.Addr
		if off+size > uint64(len(data)) {
			return nil, nil
		}
		return data[off : off+size], nil
	}
	return nil, nil
}

// DataRangesIn returns every MapData mapping-symbol range overlapping
// [addr, addr+size), translated to absolute byte-offset windows relative
// to 0 (i.e. plain addresses, the form internal/thumb.Analyze expects).
func (e *Executable) DataRangesIn(addr, size uint64) [][2]uint32 {
	var out [][2]uint32
	end := addr + size
	for i, m := range e.Mappings {
		if m.Kind != MapData {
			continue
		}
		rangeEnd := end
		if i+1 < len(e.Mappings) {
			rangeEnd = e.Mappings[i+1].Addr
		}
		start := m.Addr
		if start >= end || rangeEnd <= addr {
			continue
		}
		if start < addr {
			start = addr
		}
		if rangeEnd > end {
			rangeEnd = end
		}
		out = append(out, [2]uint32{uint32(start), uint32(rangeEnd)})
	}
	return out
}
