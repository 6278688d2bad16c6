package thumb

// Result is the outcome of analyzing one function's Thumb code, matching
// spec §4.2's (direct_branches, indirect_branches, modifies_sp, local_stack)
// tuple.
type Result struct {
	// Direct holds the absolute target address of every BL (branch-and-
	// link, i.e. a call with return) instruction found in the body, resolved
	// by Analyze from each instruction's own PC-relative offset.
	Direct []uint32

	// TailCalls holds the absolute target address of every unconditional B
	// instruction whose target lies outside this function: a tail call
	// reached by branch rather than BL, but still a call edge for the graph.
	TailCalls []uint32

	// Indirect is true if the body contains at least one register-indirect
	// or table branch whose target cannot be resolved statically.
	Indirect bool

	// ModifiesSP is true if any instruction adjusts SP (push, pop, or an
	// explicit add/sub sp).
	ModifiesSP bool

	// Local is the exact maximum local stack growth, or nil if the
	// function's control flow prevents a single definitive answer.
	Local *uint64
}

// decodeFunction decodes every instruction in code, whose first byte sits at
// addr. dataRanges lists [start, end) byte ranges (already translated to
// absolute addresses) that are data, not instructions, per the object's
// mapping symbols ($a/$t vs $d) — Analyze skips over them without decoding.
func decodeFunction(code []byte, addr uint32, dataRanges [][2]uint32) ([]Inst, error) {
	var insts []Inst
	pos := 0
	for pos < len(code) {
		cur := addr + uint32(pos)
		if inRanges(cur, dataRanges) {
			pos++
			continue
		}
		in, err := DecodeOne(code[pos:], cur)
		if err != nil {
			return nil, err
		}
		insts = append(insts, in)
		pos += in.Len
	}
	return insts, nil
}

func inRanges(addr uint32, ranges [][2]uint32) bool {
	for _, r := range ranges {
		if addr >= r[0] && addr < r[1] {
			return true
		}
	}
	return false
}

// Analyze decodes one function's Thumb body and answers spec §4.2's
// question. addr is the function's base address (with the Thumb mode bit
// already cleared by the caller). dataRanges are literal-pool byte ranges
// interleaved with the code, per the object's $a/$t/$d mapping symbols.
func Analyze(code []byte, addr uint32, dataRanges [][2]uint32) (Result, error) {
	insts, err := decodeFunction(code, addr, dataRanges)
	if err != nil {
		return Result{}, err
	}
	if len(insts) == 0 {
		zero := uint64(0)
		return Result{Local: &zero}, nil
	}

	end := addr + uint32(len(code))
	var res Result
	for _, in := range insts {
		switch in.Kind {
		case Call:
			res.Direct = append(res.Direct, branchTarget(in))
		case Branch:
			if in.Conditional {
				continue
			}
			if target := branchTarget(in); target < addr || target >= end {
				res.TailCalls = append(res.TailCalls, target)
			}
		case IndirectBranch:
			res.Indirect = true
		case Push, Pop, SPAdjust:
			res.ModifiesSP = true
		}
	}

	blocks := basicBlocks(insts)
	local, ok := walkStackDepth(insts, blocks)
	if ok {
		res.Local = &local
	}
	return res, nil
}

// walkStackDepth walks the basic-block graph from the entry block,
// accumulating SP depth along every path. It returns (depth, true), where
// depth is the highest SP depth reached along any path, only if every path
// reaches a definite end (a return, or control leaving the function)
// without passing an indirect branch, and the graph has no back edges (a
// loop forces Unknown, matching spec's policy for "complex control flow").
// Paths need not agree on their depth.
func walkStackDepth(insts []Inst, blocks []block) (uint64, bool) {
	if len(blocks) == 0 {
		return 0, false
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, len(blocks))
	var maxDepth int64
	var sawReturn bool
	ok := true

	// visit walks the graph from block id, threading the current SP depth
	// and the highest depth reached so far along this path (peakIn). It
	// updates maxDepth at every path's end, not just at the depth the path
	// happens to end on — the deepest point of a function is usually mid-
	// body (after the prologue's push/sub), not at its return.
	var visit func(id int, depthIn, peakIn int64)
	visit = func(id int, depthIn, peakIn int64) {
		if !ok {
			return
		}
		if color[id] == gray {
			// Back edge: a loop. The spec asks for Unknown on any back edge.
			ok = false
			return
		}
		color[id] = gray

		b := blocks[id]
		depth, peak := depthIn, peakIn
		for i := b.Start; i < b.End; i++ {
			switch insts[i].Kind {
			case SPAdjust:
				depth += int64(insts[i].Delta)
			case Push:
				depth += int64(insts[i].PushPopBytes())
			case Pop:
				depth -= int64(insts[i].PushPopBytes())
			default:
				continue
			}
			if depth > peak {
				peak = depth
			}
		}

		if b.Indirect {
			// An unresolved indirect branch (BX LR included; no return
			// shape is singled out): the walk can't continue past it.
			ok = false
			color[id] = black
			return
		}
		if b.Returns || len(b.Succs) == 0 {
			sawReturn = true
			if peak > maxDepth {
				maxDepth = peak
			}
			color[id] = black
			return
		}
		for _, s := range b.Succs {
			visit(s, depth, peak)
		}
		color[id] = black
	}

	visit(0, 0, 0)
	if !ok || !sawReturn || maxDepth < 0 {
		return 0, false
	}
	return uint64(maxDepth), true
}
