// Package insts provides RV64 instruction definitions and decoding.
package insts

// Class groups instructions by the pipeline resources they use.
type Class uint8

// Instruction classes.
const (
	ClassIllegal Class = iota
	ClassALU           // Register-register integer ops
	ClassALUImm        // Register-immediate integer ops (incl. LUI/AUIPC)
	ClassLoad          // Integer loads
	ClassStore         // Integer stores
	ClassBranch        // Conditional branches
	ClassJAL           // Direct jumps
	ClassJALR          // Indirect jumps
	ClassSystem        // ECALL/EBREAK/xRET/WFI/SFENCE.VMA
	ClassCSR           // CSR read-modify-write ops
	ClassFP            // Floating-point compute
	ClassFPLoad        // Floating-point loads
	ClassFPStore       // Floating-point stores
	ClassAtomic        // LR/SC and AMOs
	ClassFence         // FENCE / FENCE.I
)

// Op identifies a specific operation.
type Op uint16

// RV64IMAFDC operations.
const (
	OpIllegal Op = iota

	// RV64I
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLD
	OpLBU
	OpLHU
	OpLWU
	OpSB
	OpSH
	OpSW
	OpSD
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADDIW
	OpSLLIW
	OpSRLIW
	OpSRAIW
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpADDW
	OpSUBW
	OpSLLW
	OpSRLW
	OpSRAW
	OpFENCE
	OpFENCEI
	OpECALL
	OpEBREAK
	OpMRET
	OpSRET
	OpWFI
	OpSFENCEVMA

	// Zicsr
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI

	// RV64M
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpMULW
	OpDIVW
	OpDIVUW
	OpREMW
	OpREMUW

	// RV64A
	OpLR
	OpSC
	OpAMOSWAP
	OpAMOADD
	OpAMOXOR
	OpAMOAND
	OpAMOOR
	OpAMOMIN
	OpAMOMAX
	OpAMOMINU
	OpAMOMAXU

	// RV64F/D. Width distinguishes single (4) from double (8) precision.
	OpFLW
	OpFLD
	OpFSW
	OpFSD
	OpFADD
	OpFSUB
	OpFMUL
	OpFDIV
	OpFSQRT
	OpFMADD
	OpFMSUB
	OpFNMSUB
	OpFNMADD
	OpFSGNJ
	OpFSGNJN
	OpFSGNJX
	OpFMIN
	OpFMAX
	OpFEQ
	OpFLT
	OpFLE
	OpFCLASS
	OpFCVTToInt   // fcvt.{w,wu,l,lu}.{s,d}; Rs2 selects the integer type
	OpFCVTFromInt // fcvt.{s,d}.{w,wu,l,lu}; Rs2 selects the integer type
	OpFCVTFloat   // fcvt.s.d / fcvt.d.s; Rs2 selects the source format
	OpFMVToInt    // fmv.x.w / fmv.x.d
	OpFMVFromInt  // fmv.w.x / fmv.d.x
)

// Integer type selectors for FCVT (the rs2 field of the encoding).
const (
	CvtW  = 0
	CvtWU = 1
	CvtL  = 2
	CvtLU = 3
)

// DynamicRM is the rm field value selecting the rounding mode from frm.
const DynamicRM = 7

// Instruction is a decoded RV64 instruction.
type Instruction struct {
	Class Class
	Op    Op

	// Register fields. Rs3 is only meaningful for fused multiply-add.
	Rd  uint8
	Rs1 uint8
	Rs2 uint8
	Rs3 uint8

	// Imm is the immediate, sign-extended to 64 bits.
	Imm int64

	// Raw function fields, kept for CSR addresses (Imm), AMO ordering
	// bits, and the FP rounding-mode field (Funct3).
	Funct3 uint8
	Funct7 uint8

	// Width is the memory access or FP operand width in bytes.
	Width uint8

	// Compressed is true if the instruction came from a 16-bit encoding,
	// so the PC advances by 2 instead of 4.
	Compressed bool

	// Raw holds the original instruction bits (the 16-bit halfword for
	// compressed forms), for mtval on an illegal-instruction trap.
	Raw uint32
}

// Size returns the instruction size in bytes.
func (i *Instruction) Size() uint64 {
	if i.Compressed {
		return 2
	}
	return 4
}

// CSR returns the CSR address of a Zicsr instruction.
func (i *Instruction) CSR() uint16 {
	return uint16(i.Imm) & 0xfff
}

// CSRImmediate reports whether a Zicsr instruction uses the immediate
// form (CSRRWI/CSRRSI/CSRRCI), where rs1 holds a 5-bit literal.
func (i *Instruction) CSRImmediate() bool {
	return i.Op == OpCSRRWI || i.Op == OpCSRRSI || i.Op == OpCSRRCI
}

// ReadsIntRs1 reports whether rs1 names an integer register source.
func (i *Instruction) ReadsIntRs1() bool {
	switch i.Class {
	case ClassIllegal, ClassJAL, ClassFence:
		return false
	case ClassCSR:
		return !i.CSRImmediate()
	case ClassALUImm:
		return i.Op != OpLUI && i.Op != OpAUIPC
	case ClassSystem:
		return i.Op == OpSFENCEVMA
	case ClassFP:
		return !i.ReadsFPRs1() && (i.Op == OpFCVTFromInt || i.Op == OpFMVFromInt)
	}
	return true
}

// ReadsIntRs2 reports whether rs2 names an integer register source.
func (i *Instruction) ReadsIntRs2() bool {
	switch i.Class {
	case ClassALU, ClassBranch, ClassStore:
		return true
	case ClassAtomic:
		return i.Op != OpLR
	case ClassSystem:
		return i.Op == OpSFENCEVMA
	}
	return false
}

// Aq reports the acquire ordering bit of an atomic instruction.
func (i *Instruction) Aq() bool { return i.Funct7&0x2 != 0 }

// Rl reports the release ordering bit of an atomic instruction.
func (i *Instruction) Rl() bool { return i.Funct7&0x1 != 0 }

// IsBranch reports whether the instruction redirects control flow.
func (i *Instruction) IsBranch() bool {
	return i.Class == ClassBranch || i.Class == ClassJAL || i.Class == ClassJALR
}

// WritesIntReg reports whether the instruction writes an integer register.
func (i *Instruction) WritesIntReg() bool {
	switch i.Class {
	case ClassALU, ClassALUImm, ClassLoad, ClassJAL, ClassJALR, ClassCSR,
		ClassAtomic:
		return i.Rd != 0
	case ClassFP:
		switch i.Op {
		case OpFEQ, OpFLT, OpFLE, OpFCLASS, OpFMVToInt, OpFCVTToInt:
			return i.Rd != 0
		}
	}
	return false
}

// WritesFPReg reports whether the instruction writes a floating-point
// register.
func (i *Instruction) WritesFPReg() bool {
	switch i.Class {
	case ClassFPLoad:
		return true
	case ClassFP:
		switch i.Op {
		case OpFEQ, OpFLT, OpFLE, OpFCLASS, OpFMVToInt, OpFCVTToInt:
			return false
		}
		return true
	}
	return false
}

// ReadsFPRs1 reports whether rs1 names a floating-point register.
func (i *Instruction) ReadsFPRs1() bool {
	if i.Class != ClassFP {
		return false
	}
	switch i.Op {
	case OpFCVTFromInt, OpFMVFromInt:
		return false
	}
	return true
}

// ReadsFPRs2 reports whether rs2 names a floating-point register.
func (i *Instruction) ReadsFPRs2() bool {
	if i.Class == ClassFPStore {
		return true
	}
	if i.Class != ClassFP {
		return false
	}
	switch i.Op {
	case OpFADD, OpFSUB, OpFMUL, OpFDIV, OpFSGNJ, OpFSGNJN, OpFSGNJX,
		OpFMIN, OpFMAX, OpFEQ, OpFLT, OpFLE,
		OpFMADD, OpFMSUB, OpFNMSUB, OpFNMADD:
		return true
	}
	return false
}

// IsLoad reports whether the instruction reads memory into a register.
func (i *Instruction) IsLoad() bool {
	return i.Class == ClassLoad || i.Class == ClassFPLoad ||
		(i.Class == ClassAtomic && i.Op != OpSC)
}

// IsStore reports whether the instruction writes memory.
func (i *Instruction) IsStore() bool {
	return i.Class == ClassStore || i.Class == ClassFPStore ||
		(i.Class == ClassAtomic && i.Op != OpLR)
}
