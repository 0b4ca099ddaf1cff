package insts

// RVC expansion for RV64. Each 16-bit form is rewritten into the 32-bit
// instruction it aliases; the decoder then handles it like any other word.

// 3-bit register fields map to x8-x15 (f8-f15 for FP forms).
func cRegP(insn uint16, shift uint) uint32 {
	return uint32((insn>>shift)&0x7) + 8
}

func cRdFull(insn uint16) uint32  { return uint32((insn >> 7) & 0x1f) }
func cRs2Full(insn uint16) uint32 { return uint32((insn >> 2) & 0x1f) }

// Instruction word assembly.
func asmI(imm uint32, rs1 uint32, f3 uint32, rd uint32, opcode uint32) uint32 {
	return (imm&0xfff)<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

func asmR(f7 uint32, rs2 uint32, rs1 uint32, f3 uint32, rd uint32, opcode uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

func asmS(imm uint32, rs2 uint32, rs1 uint32, f3 uint32, opcode uint32) uint32 {
	return (imm>>5&0x7f)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (imm&0x1f)<<7 | opcode
}

func asmB(imm uint32, rs2 uint32, rs1 uint32, f3 uint32, opcode uint32) uint32 {
	return (imm>>12&0x1)<<31 | (imm>>5&0x3f)<<25 | rs2<<20 | rs1<<15 |
		f3<<12 | (imm>>1&0xf)<<8 | (imm>>11&0x1)<<7 | opcode
}

func asmU(imm uint32, rd uint32, opcode uint32) uint32 {
	return imm&0xfffff000 | rd<<7 | opcode
}

func asmJ(imm uint32, rd uint32, opcode uint32) uint32 {
	return (imm>>20&0x1)<<31 | (imm>>1&0x3ff)<<21 | (imm>>11&0x1)<<20 |
		(imm>>12&0xff)<<12 | rd<<7 | opcode
}

// signExt6 sign-extends the 6-bit immediate of CI-format instructions.
func signExt6(v uint32) uint32 {
	if v&0x20 != 0 {
		v |= 0xffffffc0
	}
	return v
}

// expandCompressed rewrites a 16-bit instruction into its 32-bit
// equivalent. The all-zero halfword and other reserved encodings report
// !ok and decode as illegal.
func expandCompressed(insn uint16) (uint32, bool) {
	if insn == 0 {
		return 0, false
	}
	switch insn & 0x3 {
	case 0b00:
		return expandQ0(insn)
	case 0b01:
		return expandQ1(insn)
	case 0b10:
		return expandQ2(insn)
	}
	return 0, false
}

func expandQ0(insn uint16) (uint32, bool) {
	f3 := (insn >> 13) & 0x7
	rdP := cRegP(insn, 2)
	rs1P := cRegP(insn, 7)

	switch f3 {
	case 0b000: // C.ADDI4SPN
		imm := uint32(insn>>6&0x1)<<2 | uint32(insn>>5&0x1)<<3 |
			uint32(insn>>11&0x3)<<4 | uint32(insn>>7&0xf)<<6
		if imm == 0 {
			return 0, false
		}
		return asmI(imm, 2, 0b000, rdP, 0b0010011), true
	case 0b001: // C.FLD
		imm := uint32(insn>>10&0x7)<<3 | uint32(insn>>5&0x3)<<6
		return asmI(imm, rs1P, 0b011, rdP, 0b0000111), true
	case 0b010: // C.LW
		imm := uint32(insn>>6&0x1)<<2 | uint32(insn>>10&0x7)<<3 |
			uint32(insn>>5&0x1)<<6
		return asmI(imm, rs1P, 0b010, rdP, 0b0000011), true
	case 0b011: // C.LD
		imm := uint32(insn>>10&0x7)<<3 | uint32(insn>>5&0x3)<<6
		return asmI(imm, rs1P, 0b011, rdP, 0b0000011), true
	case 0b101: // C.FSD
		imm := uint32(insn>>10&0x7)<<3 | uint32(insn>>5&0x3)<<6
		return asmS(imm, rdP, rs1P, 0b011, 0b0100111), true
	case 0b110: // C.SW
		imm := uint32(insn>>6&0x1)<<2 | uint32(insn>>10&0x7)<<3 |
			uint32(insn>>5&0x1)<<6
		return asmS(imm, rdP, rs1P, 0b010, 0b0100011), true
	case 0b111: // C.SD
		imm := uint32(insn>>10&0x7)<<3 | uint32(insn>>5&0x3)<<6
		return asmS(imm, rdP, rs1P, 0b011, 0b0100011), true
	}
	return 0, false
}

func expandQ1(insn uint16) (uint32, bool) {
	f3 := (insn >> 13) & 0x7
	rd := cRdFull(insn)
	imm6 := signExt6(uint32(insn>>12&0x1)<<5 | uint32(insn>>2&0x1f))

	switch f3 {
	case 0b000: // C.NOP / C.ADDI
		return asmI(imm6, rd, 0b000, rd, 0b0010011), true
	case 0b001: // C.ADDIW
		if rd == 0 {
			return 0, false
		}
		return asmI(imm6, rd, 0b000, rd, 0b0011011), true
	case 0b010: // C.LI
		return asmI(imm6, 0, 0b000, rd, 0b0010011), true
	case 0b011:
		if rd == 2 { // C.ADDI16SP
			imm := uint32(insn>>12&0x1)<<9 | uint32(insn>>6&0x1)<<4 |
				uint32(insn>>5&0x1)<<6 | uint32(insn>>3&0x3)<<7 |
				uint32(insn>>2&0x1)<<5
			if imm == 0 {
				return 0, false
			}
			if imm&0x200 != 0 {
				imm |= 0xfffffc00
			}
			return asmI(imm, 2, 0b000, 2, 0b0010011), true
		}
		// C.LUI
		if imm6 == 0 || rd == 0 {
			return 0, false
		}
		return asmU(imm6<<12, rd, 0b0110111), true
	case 0b100:
		rs1P := cRegP(insn, 7)
		switch (insn >> 10) & 0x3 {
		case 0b00: // C.SRLI
			shamt := uint32(insn>>12&0x1)<<5 | uint32(insn>>2&0x1f)
			return asmI(shamt, rs1P, 0b101, rs1P, 0b0010011), true
		case 0b01: // C.SRAI
			shamt := uint32(insn>>12&0x1)<<5 | uint32(insn>>2&0x1f)
			return asmI(0x400|shamt, rs1P, 0b101, rs1P, 0b0010011), true
		case 0b10: // C.ANDI
			return asmI(imm6, rs1P, 0b111, rs1P, 0b0010011), true
		case 0b11:
			rs2P := cRegP(insn, 2)
			hi := insn >> 12 & 0x1
			switch (insn >> 5) & 0x3 {
			case 0b00:
				if hi == 0 { // C.SUB
					return asmR(0x20, rs2P, rs1P, 0b000, rs1P, 0b0110011), true
				}
				// C.SUBW
				return asmR(0x20, rs2P, rs1P, 0b000, rs1P, 0b0111011), true
			case 0b01:
				if hi == 0 { // C.XOR
					return asmR(0x00, rs2P, rs1P, 0b100, rs1P, 0b0110011), true
				}
				// C.ADDW
				return asmR(0x00, rs2P, rs1P, 0b000, rs1P, 0b0111011), true
			case 0b10:
				if hi == 0 { // C.OR
					return asmR(0x00, rs2P, rs1P, 0b110, rs1P, 0b0110011), true
				}
			case 0b11:
				if hi == 0 { // C.AND
					return asmR(0x00, rs2P, rs1P, 0b111, rs1P, 0b0110011), true
				}
			}
		}
	case 0b101: // C.J
		imm := uint32(insn>>12&0x1)<<11 | uint32(insn>>11&0x1)<<4 |
			uint32(insn>>9&0x3)<<8 | uint32(insn>>8&0x1)<<10 |
			uint32(insn>>7&0x1)<<6 | uint32(insn>>6&0x1)<<7 |
			uint32(insn>>3&0x7)<<1 | uint32(insn>>2&0x1)<<5
		if imm&0x800 != 0 {
			imm |= 0xfffff000
		}
		return asmJ(imm, 0, 0b1101111), true
	case 0b110, 0b111: // C.BEQZ / C.BNEZ
		rs1P := cRegP(insn, 7)
		imm := uint32(insn>>12&0x1)<<8 | uint32(insn>>10&0x3)<<3 |
			uint32(insn>>5&0x3)<<6 | uint32(insn>>3&0x3)<<1 |
			uint32(insn>>2&0x1)<<5
		if imm&0x100 != 0 {
			imm |= 0xfffffe00
		}
		bf3 := uint32(0b000)
		if f3 == 0b111 {
			bf3 = 0b001
		}
		return asmB(imm, 0, rs1P, bf3, 0b1100011), true
	}
	return 0, false
}

func expandQ2(insn uint16) (uint32, bool) {
	f3 := (insn >> 13) & 0x7
	rd := cRdFull(insn)
	rs2 := cRs2Full(insn)

	switch f3 {
	case 0b000: // C.SLLI
		shamt := uint32(insn>>12&0x1)<<5 | uint32(insn>>2&0x1f)
		return asmI(shamt, rd, 0b001, rd, 0b0010011), true
	case 0b001: // C.FLDSP
		imm := uint32(insn>>12&0x1)<<5 | uint32(insn>>5&0x3)<<3 |
			uint32(insn>>2&0x7)<<6
		return asmI(imm, 2, 0b011, rd, 0b0000111), true
	case 0b010: // C.LWSP
		if rd == 0 {
			return 0, false
		}
		imm := uint32(insn>>12&0x1)<<5 | uint32(insn>>4&0x7)<<2 |
			uint32(insn>>2&0x3)<<6
		return asmI(imm, 2, 0b010, rd, 0b0000011), true
	case 0b011: // C.LDSP
		if rd == 0 {
			return 0, false
		}
		imm := uint32(insn>>12&0x1)<<5 | uint32(insn>>5&0x3)<<3 |
			uint32(insn>>2&0x7)<<6
		return asmI(imm, 2, 0b011, rd, 0b0000011), true
	case 0b100:
		if insn>>12&0x1 == 0 {
			if rs2 == 0 { // C.JR
				if rd == 0 {
					return 0, false
				}
				return asmI(0, rd, 0b000, 0, 0b1100111), true
			}
			// C.MV
			return asmR(0x00, rs2, 0, 0b000, rd, 0b0110011), true
		}
		if rs2 == 0 {
			if rd == 0 { // C.EBREAK
				return 0x00100073, true
			}
			// C.JALR
			return asmI(0, rd, 0b000, 1, 0b1100111), true
		}
		// C.ADD
		return asmR(0x00, rs2, rd, 0b000, rd, 0b0110011), true
	case 0b101: // C.FSDSP
		imm := uint32(insn>>10&0x7)<<3 | uint32(insn>>7&0x7)<<6
		return asmS(imm, rs2, 2, 0b011, 0b0100111), true
	case 0b110: // C.SWSP
		imm := uint32(insn>>9&0xf)<<2 | uint32(insn>>7&0x3)<<6
		return asmS(imm, rs2, 2, 0b010, 0b0100011), true
	case 0b111: // C.SDSP
		imm := uint32(insn>>10&0x7)<<3 | uint32(insn>>7&0x7)<<6
		return asmS(imm, rs2, 2, 0b011, 0b0100011), true
	}
	return 0, false
}
