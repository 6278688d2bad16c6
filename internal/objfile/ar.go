package objfile

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// archMagic is the System V/GNU ar global header every archive starts with.
const archMagic = "!<arch>\n"

// archHeaderLen is the fixed size of each per-member header.
const archHeaderLen = 60

// ArMember is one object file extracted from a `.a` archive (a static
// library of relocatable objects, e.g. compiler-builtins).
type ArMember struct {
	Name string
	Data []byte
}

// ReadArchive parses a System V/GNU `ar` archive and returns its members in
// archive order. No package anywhere in the example corpus reads this
// format, so this is a from-scratch implementation of the (small, stable)
// container: a global magic, then a sequence of 60-byte member headers each
// immediately followed by that member's data, padded to an even length.
func ReadArchive(data []byte) ([]ArMember, error) {
	if len(data) < len(archMagic) || string(data[:len(archMagic)]) != archMagic {
		return nil, errors.New("objfile: not an ar archive (bad magic)")
	}
	pos := len(archMagic)

	var longNames string
	var members []ArMember

	for pos < len(data) {
		if pos+archHeaderLen > len(data) {
			return nil, errors.New("objfile: truncated ar member header")
		}
		hdr := data[pos : pos+archHeaderLen]
		pos += archHeaderLen

		name := strings.TrimRight(string(hdr[0:16]), " ")
		sizeField := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.Atoi(sizeField)
		if err != nil {
			return nil, errors.Wrapf(err, "objfile: malformed ar member size %q", sizeField)
		}
		if string(hdr[58:60]) != "`\n" {
			return nil, errors.New("objfile: malformed ar member header terminator")
		}

		if pos+size > len(data) {
			return nil, errors.New("objfile: ar member data runs past end of archive")
		}
		body := data[pos : pos+size]
		pos += size
		if size%2 == 1 {
			pos++ // members are padded to an even length
		}

		switch {
		case name == "/" || name == "//":
			// GNU symbol table ("/") or long-name table ("//"): not a real
			// member. The long-name table is kept so later "/<offset>"
			// names can be resolved.
			if name == "//" {
				longNames = string(body)
			}
			continue
		case strings.HasPrefix(name, "/") && len(name) > 1:
			off, err := strconv.Atoi(name[1:])
			if err != nil {
				return nil, errors.Wrapf(err, "objfile: malformed ar long-name reference %q", name)
			}
			name = extractLongName(longNames, off)
		default:
			name = strings.TrimSuffix(name, "/")
		}

		members = append(members, ArMember{Name: name, Data: body})
	}
	return members, nil
}

func extractLongName(table string, offset int) string {
	if offset < 0 || offset >= len(table) {
		return ""
	}
	rest := table[offset:]
	if i := strings.IndexAny(rest, "/\n"); i >= 0 {
		return rest[:i]
	}
	return rest
}
