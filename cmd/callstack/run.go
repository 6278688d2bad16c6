package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/embedded-tools/callstack/internal/callgraph"
	"github.com/embedded-tools/callstack/internal/demangle"
	"github.com/embedded-tools/callstack/internal/ir"
	"github.com/embedded-tools/callstack/internal/objfile"
	"github.com/embedded-tools/callstack/internal/stackbound"
)

func run(start string) error {
	if opts.bin != "" {
		log.Infof("analyzing bin target %q", opts.bin)
	} else if opts.example != "" {
		log.Infof("analyzing example target %q", opts.example)
	}

	exe, err := openExecutable(opts.elfPath)
	if err != nil {
		return err
	}
	stackSizes, err := readStackSizes(opts.objectPath)
	if err != nil {
		return err
	}
	items, err := readIR(opts.irPath)
	if err != nil {
		return err
	}

	defined, err := exe.DefinedSymbols()
	if err != nil {
		return errors.Wrap(err, "reading executable symbols")
	}
	var liveFns []objfile.Sym
	for _, s := range defined {
		if s.Kind == objfile.SymText {
			liveFns = append(liveFns, s)
		}
	}

	if opts.builtinsArchive != "" {
		archiveFns, archiveSizes, err := readBuiltinsArchive(opts.builtinsArchive)
		if err != nil {
			return err
		}
		liveFns = append(liveFns, archiveFns...)
		for name, size := range archiveSizes {
			if _, ok := stackSizes[name]; !ok {
				stackSizes[name] = size
			}
		}
	}

	undefined, err := exe.UndefinedSymbols()
	if err != nil {
		return errors.Wrap(err, "reading executable undefined symbols")
	}
	nonRust := map[string]bool{}
	for _, name := range undefined {
		if _, ok := demangle.Demangle(name); !ok {
			nonRust[name] = true
		}
	}
	for _, s := range liveFns {
		if _, ok := demangle.Demangle(s.Name); !ok {
			nonRust[s.Name] = true
		}
	}

	in := callgraph.Input{
		Items:           items,
		Defined:         liveFns,
		StackSizes:      stackSizes,
		Target:          opts.target,
		HasCallMetadata: hasCallMetadata(items),
		NonRustSymbols:  nonRust,
		ThumbCode: func(addr, size uint64) []byte {
			code, err := exe.CodeAt(addr, size)
			if err != nil {
				log.Warnf("reading code at 0x%x: %v", addr, err)
				return nil
			}
			return code
		},
		DataRanges: func(addr, size uint64) [][2]uint32 {
			return exe.DataRangesIn(addr, size)
		},
	}

	b := callgraph.NewBuilder(in, log)
	g, err := b.Build()
	if err != nil {
		return errors.Wrap(err, "building call graph")
	}

	if start != "" {
		idx, ferr := callgraph.FindStart(g, start)
		if ferr != nil {
			log.Warnf("not filtering: %v", ferr)
		} else {
			g = callgraph.Filter(g, idx)
		}
	}

	if err := stackbound.Analyze(g); err != nil {
		return errors.Wrap(err, "computing stack bounds")
	}

	return render(g, os.Stdout)
}

func hasCallMetadata(items []ir.Item) bool {
	for _, it := range items {
		if _, ok := it.(*ir.MetadataItem); ok {
			return true
		}
	}
	return false
}

func openExecutable(path string) (*objfile.Executable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening ELF executable")
	}
	defer f.Close()
	return objfile.OpenExecutable(f)
}

func readStackSizes(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening relocatable object")
	}
	defer f.Close()

	obj, err := objfile.OpenExecutable(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading relocatable object")
	}
	data, err := obj.SectionBytes(".stack_sizes")
	if err != nil {
		return nil, errors.Wrap(err, "reading .stack_sizes section")
	}
	if data == nil {
		log.Warnf(".stack_sizes section not found in %s", path)
		return map[string]uint64{}, nil
	}
	entries, err := objfile.ReadStackSizes(data)
	if err != nil {
		return nil, errors.Wrap(err, "decoding .stack_sizes section")
	}
	byAddr := objfile.StackSizeMap(entries)

	syms, err := obj.DefinedSymbols()
	if err != nil {
		return nil, errors.Wrap(err, "reading relocatable object symbols")
	}
	byName := make(map[string]uint64, len(byAddr))
	for _, s := range syms {
		if size, ok := byAddr[s.Value]; ok {
			byName[s.Name] = size
		}
	}
	return byName, nil
}

func readIR(path string) ([]ir.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening IR dump")
	}
	defer f.Close()

	seq, err := ir.Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, "parsing IR dump")
	}
	var items []ir.Item
	for it := range seq {
		items = append(items, it)
	}
	return items, nil
}

// readBuiltinsArchive reads every ELF member of an `ar` archive of runtime
// helpers, returning their text symbols and any .stack_sizes records they
// carry.
func readBuiltinsArchive(path string) ([]objfile.Sym, map[string]uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading builtins archive")
	}
	members, err := objfile.ReadArchive(data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing builtins archive")
	}

	var fns []objfile.Sym
	sizes := map[string]uint64{}
	for _, m := range members {
		exe, err := objfile.OpenExecutable(memberReader(m.Data))
		if err != nil {
			log.Warnf("skipping archive member %s: %v", m.Name, err)
			continue
		}
		defined, err := exe.DefinedSymbols()
		if err != nil {
			log.Warnf("skipping archive member %s: %v", m.Name, err)
			continue
		}
		for _, s := range defined {
			if s.Kind == objfile.SymText {
				fns = append(fns, s)
			}
		}
		if data, err := exe.SectionBytes(".stack_sizes"); err == nil && data != nil {
			entries, err := objfile.ReadStackSizes(data)
			if err != nil {
				log.Warnf("archive member %s has malformed .stack_sizes: %v", m.Name, err)
				continue
			}
			byAddr := objfile.StackSizeMap(entries)
			for _, s := range defined {
				if size, ok := byAddr[s.Value]; ok {
					sizes[s.Name] = size
				}
			}
		}
	}
	return fns, sizes, nil
}

type memberReader []byte

func (m memberReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(m)) {
		return 0, errors.New("objfile: read past end of archive member")
	}
	n := copy(p, m[off:])
	if n < len(p) {
		return n, errors.New("objfile: short read from archive member")
	}
	return n, nil
}
