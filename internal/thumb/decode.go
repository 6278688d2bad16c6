package thumb

import "fmt"

// DecodeError reports a byte range too short to hold the instruction its
// first halfword commits to.
type DecodeError struct {
	Addr uint32
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("thumb: %#x: %s", e.Addr, e.Msg)
}

func u16(b []byte, i int) uint16 {
	return uint16(b[i]) | uint16(b[i+1])<<8
}

// is32BitFirstHalf reports whether h is the first halfword of a 32-bit
// Thumb-2 instruction. This is the one piece of the encoding that is exact
// regardless of which specific 32-bit instruction it is: bits [15:11] of
// 0b11101, 0b11110 or 0b11111 commit to a second halfword.
func is32BitFirstHalf(h uint16) bool {
	top5 := h >> 11
	return top5 == 0x1D || top5 == 0x1E || top5 == 0x1F
}

// DecodeOne decodes the single instruction at the start of code, which is
// assumed to begin at address addr. It returns the instruction and its
// length in bytes (2 or 4); unrecognized encodings decode as Other with the
// correct length so the caller can keep stepping through the stream.
func DecodeOne(code []byte, addr uint32) (Inst, error) {
	if len(code) < 2 {
		return Inst{}, &DecodeError{Addr: addr, Msg: "truncated halfword"}
	}
	h1 := u16(code, 0)

	if is32BitFirstHalf(h1) {
		if len(code) < 4 {
			return Inst{}, &DecodeError{Addr: addr, Msg: "truncated 32-bit instruction"}
		}
		h2 := u16(code, 2)
		return decode32(addr, h1, h2), nil
	}
	return decode16(addr, h1), nil
}

func decode16(addr uint32, h uint16) Inst {
	base := Inst{Addr: addr, Len: 2, Kind: Other}

	switch {
	// PUSH: 1011 010 M rrrrrrrr
	case h&0xFE00 == 0xB400:
		base.Kind = Push
		base.Regs = h & 0x00FF
		base.LR = h&0x0100 != 0
		return base

	// POP: 1011 110 P rrrrrrrr
	case h&0xFE00 == 0xBC00:
		base.Kind = Pop
		base.Regs = h & 0x00FF
		base.PC = h&0x0100 != 0
		return base

	// SUB sp, sp, #imm7<<2 (T2)
	case h&0xFF80 == 0xB080:
		base.Kind = SPAdjust
		base.Delta = int(h&0x7F) * 4
		return base

	// ADD sp, sp, #imm7<<2 (T2)
	case h&0xFF80 == 0xB000:
		base.Kind = SPAdjust
		base.Delta = -int(h&0x7F) * 4
		return base

	// BX/BLX Rm: 0100 0111 L Rm(4) (000)
	case h&0xFF00 == 0x4700:
		base.Kind = IndirectBranch
		return base

	// B (unconditional, T2): 1110 0 imm11
	case h&0xF800 == 0xE000:
		imm11 := h & 0x07FF
		base.Kind = Branch
		base.Offset = signExtend(uint32(imm11)<<1, 12)
		return base

	// Bcc (conditional, T1): 1101 cond imm8, cond not 1110/1111
	case h&0xF000 == 0xD000:
		cond := (h >> 8) & 0xF
		if cond == 0xE || cond == 0xF {
			// 0xE: permanently-undefined; 0xF: SVC. Neither is a branch.
			return base
		}
		imm8 := h & 0x00FF
		base.Kind = Branch
		base.Conditional = true
		base.Offset = signExtend(uint32(imm8)<<1, 9)
		return base

	default:
		return base
	}
}

func decode32(addr uint32, h1, h2 uint16) Inst {
	base := Inst{Addr: addr, Len: 4, Kind: Other}

	// BL: 11110 S imm10 / 11 J1 1 J2 imm11
	if h1&0xF800 == 0xF000 && h2&0xD000 == 0xD000 {
		base.Kind = Call
		base.Offset = decodeBLOffset(h1, h2)
		return base
	}

	// B.W (unconditional, T4): 11110 S imm10 / 10 J1 1 J2 imm11
	if h1&0xF800 == 0xF000 && h2&0xD000 == 0x9000 {
		base.Kind = Branch
		base.Offset = decodeBLOffset(h1, h2)
		return base
	}

	// Bcc.W (conditional, T3): 11110 S cond imm6 / 10 J1 0 J2 imm11
	if h1&0xF800 == 0xF000 && h2&0xD000 == 0x8000 {
		cond := (h1 >> 6) & 0xF
		if cond < 0xE {
			base.Kind = Branch
			base.Conditional = true
			base.Offset = decodeBccWOffset(h1, h2)
			return base
		}
	}

	// TBB/TBH: 1110 1000 1101 Rn(4) / 1111 0000 0000 H Rm(4)
	if h1&0xFFF0 == 0xE8D0 && h2&0xFFE0 == 0xF000 {
		base.Kind = IndirectBranch
		base.IsTableBranch = true
		return base
	}

	return base
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func decodeBLOffset(h1, h2 uint16) int32 {
	s := uint32((h1 >> 10) & 1)
	imm10 := uint32(h1 & 0x03FF)
	j1 := uint32((h2 >> 13) & 1)
	j2 := uint32((h2 >> 11) & 1)
	imm11 := uint32(h2 & 0x07FF)
	i1 := (j1 ^ s ^ 1) & 1
	i2 := (j2 ^ s ^ 1) & 1
	imm := (s << 24) | (i1 << 23) | (i2 << 22) | (imm10 << 12) | (imm11 << 1)
	return signExtend(imm, 25)
}

func decodeBccWOffset(h1, h2 uint16) int32 {
	s := uint32((h1 >> 10) & 1)
	imm6 := uint32(h1 & 0x003F)
	j1 := uint32((h2 >> 13) & 1)
	j2 := uint32((h2 >> 11) & 1)
	imm11 := uint32(h2 & 0x07FF)
	imm := (s << 20) | (j2 << 19) | (j1 << 18) | (imm6 << 12) | (imm11 << 1)
	return signExtend(imm, 21)
}
