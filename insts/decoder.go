// Package insts provides RV64 instruction definitions and decoding.
package insts

// Decoder decodes RV64IMAFDC machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV64 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes an instruction word fetched at some PC. If the low two
// bits are not 11 the word is treated as a 16-bit compressed instruction
// and expanded to its 32-bit equivalent before decoding; the result is
// flagged Compressed so the fetch stage advances PC by 2.
func (d *Decoder) Decode(word uint32) *Instruction {
	if word&0x3 != 0x3 {
		half := uint16(word)
		expanded, ok := expandCompressed(half)
		if !ok {
			return illegal(uint32(half))
		}
		inst := d.decode32(expanded)
		inst.Compressed = true
		inst.Raw = uint32(half)
		return inst
	}
	return d.decode32(word)
}

func illegal(raw uint32) *Instruction {
	return &Instruction{Class: ClassIllegal, Op: OpIllegal, Raw: raw}
}

// Field extraction helpers.
func rdField(w uint32) uint8  { return uint8((w >> 7) & 0x1f) }
func rs1Field(w uint32) uint8 { return uint8((w >> 15) & 0x1f) }
func rs2Field(w uint32) uint8 { return uint8((w >> 20) & 0x1f) }
func rs3Field(w uint32) uint8 { return uint8((w >> 27) & 0x1f) }
func f3Field(w uint32) uint8  { return uint8((w >> 12) & 0x7) }
func f7Field(w uint32) uint8  { return uint8(w >> 25) }

// Immediate extraction, sign-extended to 64 bits.
func immI(w uint32) int64 { return int64(int32(w)) >> 20 }

func immS(w uint32) int64 {
	imm := int64(int32(w&0xfe000000)) >> 20
	return imm | int64((w>>7)&0x1f)
}

func immB(w uint32) int64 {
	imm := int64(int32(w&0x80000000)) >> 19 // bit 12
	imm |= int64((w>>25)&0x3f) << 5
	imm |= int64((w>>8)&0xf) << 1
	imm |= int64((w>>7)&0x1) << 11
	return imm
}

func immU(w uint32) int64 { return int64(int32(w & 0xfffff000)) }

func immJ(w uint32) int64 {
	imm := int64(int32(w&0x80000000)) >> 11 // bit 20
	imm |= int64((w>>21)&0x3ff) << 1
	imm |= int64((w>>20)&0x1) << 11
	imm |= int64((w>>12)&0xff) << 12
	return imm
}

func (d *Decoder) decode32(w uint32) *Instruction {
	inst := &Instruction{
		Raw:    w,
		Rd:     rdField(w),
		Rs1:    rs1Field(w),
		Rs2:    rs2Field(w),
		Funct3: f3Field(w),
		Funct7: f7Field(w),
	}

	switch w & 0x7f {
	case 0b0110111: // LUI
		inst.Class, inst.Op, inst.Imm = ClassALUImm, OpLUI, immU(w)
		inst.Rs1, inst.Rs2 = 0, 0
	case 0b0010111: // AUIPC
		inst.Class, inst.Op, inst.Imm = ClassALUImm, OpAUIPC, immU(w)
		inst.Rs1, inst.Rs2 = 0, 0
	case 0b1101111: // JAL
		inst.Class, inst.Op, inst.Imm = ClassJAL, OpJAL, immJ(w)
		inst.Rs1, inst.Rs2 = 0, 0
	case 0b1100111: // JALR
		if inst.Funct3 != 0 {
			return illegal(w)
		}
		inst.Class, inst.Op, inst.Imm = ClassJALR, OpJALR, immI(w)
		inst.Rs2 = 0
	case 0b1100011:
		d.decodeBranch(w, inst)
	case 0b0000011:
		d.decodeLoad(w, inst)
	case 0b0100011:
		d.decodeStore(w, inst)
	case 0b0010011:
		d.decodeOpImm(w, inst)
	case 0b0011011:
		d.decodeOpImm32(w, inst)
	case 0b0110011:
		d.decodeOp(w, inst)
	case 0b0111011:
		d.decodeOp32(w, inst)
	case 0b0001111:
		d.decodeMiscMem(w, inst)
	case 0b1110011:
		d.decodeSystem(w, inst)
	case 0b0101111:
		d.decodeAtomic(w, inst)
	case 0b0000111:
		d.decodeLoadFP(w, inst)
	case 0b0100111:
		d.decodeStoreFP(w, inst)
	case 0b1010011:
		d.decodeOpFP(w, inst)
	case 0b1000011, 0b1000111, 0b1001011, 0b1001111:
		d.decodeFMA(w, inst)
	default:
		return illegal(w)
	}

	if inst.Class == ClassIllegal {
		return illegal(w)
	}
	return inst
}

func (d *Decoder) decodeBranch(w uint32, inst *Instruction) {
	ops := [8]Op{OpBEQ, OpBNE, 0, 0, OpBLT, OpBGE, OpBLTU, OpBGEU}
	op := ops[inst.Funct3]
	if op == 0 {
		return
	}
	inst.Class, inst.Op, inst.Imm = ClassBranch, op, immB(w)
	inst.Rd = 0
}

func (d *Decoder) decodeLoad(w uint32, inst *Instruction) {
	ops := [8]Op{OpLB, OpLH, OpLW, OpLD, OpLBU, OpLHU, OpLWU, 0}
	widths := [8]uint8{1, 2, 4, 8, 1, 2, 4, 0}
	op := ops[inst.Funct3]
	if op == 0 {
		return
	}
	inst.Class, inst.Op, inst.Imm = ClassLoad, op, immI(w)
	inst.Width = widths[inst.Funct3]
	inst.Rs2 = 0
}

func (d *Decoder) decodeStore(w uint32, inst *Instruction) {
	ops := [8]Op{OpSB, OpSH, OpSW, OpSD, 0, 0, 0, 0}
	widths := [8]uint8{1, 2, 4, 8, 0, 0, 0, 0}
	op := ops[inst.Funct3]
	if op == 0 {
		return
	}
	inst.Class, inst.Op, inst.Imm = ClassStore, op, immS(w)
	inst.Width = widths[inst.Funct3]
	inst.Rd = 0
}

func (d *Decoder) decodeOpImm(w uint32, inst *Instruction) {
	inst.Class, inst.Imm = ClassALUImm, immI(w)
	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		// 6-bit shamt on RV64; bit 25 belongs to the shift amount.
		if inst.Funct7>>1 != 0 {
			inst.Class = ClassIllegal
			return
		}
		inst.Op, inst.Imm = OpSLLI, int64((w>>20)&0x3f)
	case 0b101:
		shamt := int64((w >> 20) & 0x3f)
		switch inst.Funct7 &^ 0x1 {
		case 0x00:
			inst.Op, inst.Imm = OpSRLI, shamt
		case 0x20:
			inst.Op, inst.Imm = OpSRAI, shamt
		default:
			inst.Class = ClassIllegal
		}
	}
	inst.Rs2 = 0
}

func (d *Decoder) decodeOpImm32(w uint32, inst *Instruction) {
	inst.Class, inst.Imm = ClassALUImm, immI(w)
	switch inst.Funct3 {
	case 0b000:
		inst.Op = OpADDIW
	case 0b001:
		if inst.Funct7 != 0 {
			inst.Class = ClassIllegal
			return
		}
		inst.Op, inst.Imm = OpSLLIW, int64((w>>20)&0x1f)
	case 0b101:
		shamt := int64((w >> 20) & 0x1f)
		switch inst.Funct7 {
		case 0x00:
			inst.Op, inst.Imm = OpSRLIW, shamt
		case 0x20:
			inst.Op, inst.Imm = OpSRAIW, shamt
		default:
			inst.Class = ClassIllegal
		}
	default:
		inst.Class = ClassIllegal
	}
	inst.Rs2 = 0
}

func (d *Decoder) decodeOp(w uint32, inst *Instruction) {
	inst.Class = ClassALU
	type key struct{ f7, f3 uint8 }
	ops := map[key]Op{
		{0x00, 0b000}: OpADD, {0x20, 0b000}: OpSUB,
		{0x00, 0b001}: OpSLL, {0x00, 0b010}: OpSLT,
		{0x00, 0b011}: OpSLTU, {0x00, 0b100}: OpXOR,
		{0x00, 0b101}: OpSRL, {0x20, 0b101}: OpSRA,
		{0x00, 0b110}: OpOR, {0x00, 0b111}: OpAND,
		{0x01, 0b000}: OpMUL, {0x01, 0b001}: OpMULH,
		{0x01, 0b010}: OpMULHSU, {0x01, 0b011}: OpMULHU,
		{0x01, 0b100}: OpDIV, {0x01, 0b101}: OpDIVU,
		{0x01, 0b110}: OpREM, {0x01, 0b111}: OpREMU,
	}
	op, ok := ops[key{inst.Funct7, inst.Funct3}]
	if !ok {
		inst.Class = ClassIllegal
		return
	}
	inst.Op = op
}

func (d *Decoder) decodeOp32(w uint32, inst *Instruction) {
	inst.Class = ClassALU
	type key struct{ f7, f3 uint8 }
	ops := map[key]Op{
		{0x00, 0b000}: OpADDW, {0x20, 0b000}: OpSUBW,
		{0x00, 0b001}: OpSLLW, {0x00, 0b101}: OpSRLW,
		{0x20, 0b101}: OpSRAW,
		{0x01, 0b000}: OpMULW, {0x01, 0b100}: OpDIVW,
		{0x01, 0b101}: OpDIVUW, {0x01, 0b110}: OpREMW,
		{0x01, 0b111}: OpREMUW,
	}
	op, ok := ops[key{inst.Funct7, inst.Funct3}]
	if !ok {
		inst.Class = ClassIllegal
		return
	}
	inst.Op = op
}

func (d *Decoder) decodeMiscMem(w uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0b000:
		inst.Class, inst.Op = ClassFence, OpFENCE
	case 0b001:
		inst.Class, inst.Op = ClassFence, OpFENCEI
	}
}

func (d *Decoder) decodeSystem(w uint32, inst *Instruction) {
	if inst.Funct3 == 0 {
		switch {
		case w == 0x00000073:
			inst.Class, inst.Op = ClassSystem, OpECALL
		case w == 0x00100073:
			inst.Class, inst.Op = ClassSystem, OpEBREAK
		case w == 0x30200073:
			inst.Class, inst.Op = ClassSystem, OpMRET
		case w == 0x10200073:
			inst.Class, inst.Op = ClassSystem, OpSRET
		case w == 0x10500073:
			inst.Class, inst.Op = ClassSystem, OpWFI
		case inst.Funct7 == 0x09 && inst.Rd == 0:
			inst.Class, inst.Op = ClassSystem, OpSFENCEVMA
		}
		return
	}

	ops := [8]Op{0, OpCSRRW, OpCSRRS, OpCSRRC, 0, OpCSRRWI, OpCSRRSI, OpCSRRCI}
	op := ops[inst.Funct3]
	if op == 0 {
		return
	}
	inst.Class, inst.Op = ClassCSR, op
	// The CSR address occupies the I-type immediate field. Immediate
	// forms carry their 5-bit zero-extended operand in the rs1 field.
	inst.Imm = int64((w >> 20) & 0xfff)
	inst.Rs2 = 0
}

func (d *Decoder) decodeAtomic(w uint32, inst *Instruction) {
	var width uint8
	switch inst.Funct3 {
	case 0b010:
		width = 4
	case 0b011:
		width = 8
	default:
		return
	}

	funct5 := inst.Funct7 >> 2
	ops := map[uint8]Op{
		0x02: OpLR, 0x03: OpSC, 0x01: OpAMOSWAP, 0x00: OpAMOADD,
		0x04: OpAMOXOR, 0x0c: OpAMOAND, 0x08: OpAMOOR,
		0x10: OpAMOMIN, 0x14: OpAMOMAX, 0x18: OpAMOMINU, 0x1c: OpAMOMAXU,
	}
	op, ok := ops[funct5]
	if !ok {
		return
	}
	if op == OpLR && inst.Rs2 != 0 {
		return
	}
	inst.Class, inst.Op, inst.Width = ClassAtomic, op, width
}

func (d *Decoder) decodeLoadFP(w uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0b010:
		inst.Class, inst.Op, inst.Width = ClassFPLoad, OpFLW, 4
	case 0b011:
		inst.Class, inst.Op, inst.Width = ClassFPLoad, OpFLD, 8
	default:
		return
	}
	inst.Imm = immI(w)
	inst.Rs2 = 0
}

func (d *Decoder) decodeStoreFP(w uint32, inst *Instruction) {
	switch inst.Funct3 {
	case 0b010:
		inst.Class, inst.Op, inst.Width = ClassFPStore, OpFSW, 4
	case 0b011:
		inst.Class, inst.Op, inst.Width = ClassFPStore, OpFSD, 8
	default:
		return
	}
	inst.Imm = immS(w)
	inst.Rd = 0
}

func (d *Decoder) decodeFMA(w uint32, inst *Instruction) {
	fmt := (w >> 25) & 0x3
	switch fmt {
	case 0:
		inst.Width = 4
	case 1:
		inst.Width = 8
	default:
		return
	}
	inst.Rs3 = rs3Field(w)
	inst.Class = ClassFP
	switch w & 0x7f {
	case 0b1000011:
		inst.Op = OpFMADD
	case 0b1000111:
		inst.Op = OpFMSUB
	case 0b1001011:
		inst.Op = OpFNMSUB
	case 0b1001111:
		inst.Op = OpFNMADD
	}
}

func (d *Decoder) decodeOpFP(w uint32, inst *Instruction) {
	fmt := inst.Funct7 & 0x3
	switch fmt {
	case 0:
		inst.Width = 4
	case 1:
		inst.Width = 8
	default:
		return
	}
	inst.Class = ClassFP

	switch inst.Funct7 >> 2 {
	case 0x00:
		inst.Op = OpFADD
	case 0x01:
		inst.Op = OpFSUB
	case 0x02:
		inst.Op = OpFMUL
	case 0x03:
		inst.Op = OpFDIV
	case 0x0b:
		if inst.Rs2 != 0 {
			inst.Class = ClassIllegal
			return
		}
		inst.Op = OpFSQRT
	case 0x04:
		switch inst.Funct3 {
		case 0:
			inst.Op = OpFSGNJ
		case 1:
			inst.Op = OpFSGNJN
		case 2:
			inst.Op = OpFSGNJX
		default:
			inst.Class = ClassIllegal
		}
	case 0x05:
		switch inst.Funct3 {
		case 0:
			inst.Op = OpFMIN
		case 1:
			inst.Op = OpFMAX
		default:
			inst.Class = ClassIllegal
		}
	case 0x14:
		switch inst.Funct3 {
		case 0:
			inst.Op = OpFLE
		case 1:
			inst.Op = OpFLT
		case 2:
			inst.Op = OpFEQ
		default:
			inst.Class = ClassIllegal
		}
	case 0x18: // fcvt.{w,wu,l,lu}.{s,d}
		inst.Op = OpFCVTToInt
	case 0x1a: // fcvt.{s,d}.{w,wu,l,lu}
		inst.Op = OpFCVTFromInt
	case 0x08: // fcvt.s.d / fcvt.d.s
		inst.Op = OpFCVTFloat
	case 0x1c:
		switch inst.Funct3 {
		case 0:
			inst.Op = OpFMVToInt
		case 1:
			inst.Op = OpFCLASS
		default:
			inst.Class = ClassIllegal
		}
	case 0x1e:
		if inst.Funct3 != 0 {
			inst.Class = ClassIllegal
			return
		}
		inst.Op = OpFMVFromInt
	default:
		inst.Class = ClassIllegal
	}
}
