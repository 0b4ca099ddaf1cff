package emu

import (
	"math"

	"github.com/sarchlab/rvsim/insts"
)

// fflags bits.
const (
	FlagNX = uint8(1) << 0 // inexact
	FlagUF = uint8(1) << 1 // underflow
	FlagOF = uint8(1) << 2 // overflow
	FlagDZ = uint8(1) << 3 // divide by zero
	FlagNV = uint8(1) << 4 // invalid operation
)

// Rounding modes.
const (
	RoundNearestEven = 0 // RNE
	RoundTowardZero  = 1 // RTZ
	RoundDown        = 2 // RDN
	RoundUp          = 3 // RUP
	RoundNearestMax  = 4 // RMM
)

// FPU implements IEEE-754 single and double precision operations over
// NaN-boxed operand bits. Operands arrive as raw register values so the
// pipeline can forward in-flight results; exception flags are returned
// with the result and committed to fflags at writeback. Arithmetic
// rounds to nearest-even (the host mode); directed rounding is honored
// where it is architecturally most visible, in float-to-integer
// conversions.
type FPU struct {
	csr *CSRFile
}

// NewFPU creates an FPU resolving dynamic rounding modes against csr.
func NewFPU(csr *CSRFile) *FPU {
	return &FPU{csr: csr}
}

// FPResult is the outcome of an FP operation.
type FPResult struct {
	// Bits is the raw result destined for an FP register (NaN-boxed
	// for single precision), or the value for an integer register.
	Bits uint64

	// ToInt is true when the destination is an integer register.
	ToInt bool

	// Flags are the IEEE exception flags raised by the operation.
	Flags uint8

	// Trap is set for an invalid rounding-mode encoding or an
	// unrecognized operation (illegal instruction).
	Trap *Trap
}

// roundingMode resolves the instruction rm field against frm.
func (f *FPU) roundingMode(rm uint8) (uint8, *Trap) {
	if rm == insts.DynamicRM {
		rm = f.csr.Frm
	}
	if rm > RoundNearestMax {
		return 0, NewTrap(CauseIllegalInst, 0)
	}
	return rm, nil
}

func boxF32(bits uint32) uint64 { return nanBoxHigh | uint64(bits) }

// unboxF32 extracts single-precision bits from a register value. A
// value that is not properly NaN-boxed reads as the canonical NaN.
func unboxF32(v uint64) uint32 {
	if v&nanBoxHigh != nanBoxHigh {
		return canonicalNaN32
	}
	return uint32(v)
}

func canonS(v float32) uint32 {
	if v != v {
		return canonicalNaN32
	}
	return math.Float32bits(v)
}

func canonD(v float64) uint64 {
	if v != v {
		return canonicalNaN64
	}
	return math.Float64bits(v)
}

func isSNaN32(bits uint32) bool {
	return bits&0x7f800000 == 0x7f800000 && bits&0x007fffff != 0 &&
		bits&0x00400000 == 0
}

func isSNaN64(bits uint64) bool {
	return bits&0x7ff0000000000000 == 0x7ff0000000000000 &&
		bits&0x000fffffffffffff != 0 && bits&0x0008000000000000 == 0
}

// Execute runs an FP instruction. a, b, c are the raw bits of the FP
// operands (rs1, rs2, rs3); intOperand carries the integer rs1 value
// for the from-integer moves and conversions.
func (f *FPU) Execute(inst *insts.Instruction, a, b, c uint64, intOperand uint64) FPResult {
	rm, trap := f.resolveRM(inst)
	if trap != nil {
		return FPResult{Trap: trap}
	}

	if inst.Width == 4 {
		return f.executeS(inst, a, b, c, intOperand, rm)
	}
	return f.executeD(inst, a, b, c, intOperand, rm)
}

// resolveRM resolves the rounding mode for ops that use one.
func (f *FPU) resolveRM(inst *insts.Instruction) (uint8, *Trap) {
	switch inst.Op {
	case insts.OpFADD, insts.OpFSUB, insts.OpFMUL, insts.OpFDIV,
		insts.OpFSQRT, insts.OpFMADD, insts.OpFMSUB, insts.OpFNMSUB,
		insts.OpFNMADD, insts.OpFCVTToInt, insts.OpFCVTFromInt,
		insts.OpFCVTFloat:
		return f.roundingMode(inst.Funct3)
	}
	return RoundNearestEven, nil
}

func (f *FPU) executeS(inst *insts.Instruction, ra, rb, rc uint64, intOperand uint64, rm uint8) FPResult {
	aBits := unboxF32(ra)
	bBits := unboxF32(rb)
	a := math.Float32frombits(aBits)
	b := math.Float32frombits(bBits)

	var flags uint8
	snanFlag := func(bitsList ...uint32) {
		for _, bits := range bitsList {
			if isSNaN32(bits) {
				flags |= FlagNV
			}
		}
	}
	out := func(v float32) FPResult {
		return FPResult{Bits: boxF32(canonS(v)), Flags: flags}
	}

	switch inst.Op {
	case insts.OpFADD:
		snanFlag(aBits, bBits)
		return out(a + b)
	case insts.OpFSUB:
		snanFlag(aBits, bBits)
		return out(a - b)
	case insts.OpFMUL:
		snanFlag(aBits, bBits)
		if (math.IsInf(float64(a), 0) && b == 0) || (a == 0 && math.IsInf(float64(b), 0)) {
			flags |= FlagNV
		}
		return out(a * b)
	case insts.OpFDIV:
		snanFlag(aBits, bBits)
		if b == 0 && a == a && a != 0 && !math.IsInf(float64(a), 0) {
			flags |= FlagDZ
		}
		return out(a / b)
	case insts.OpFSQRT:
		snanFlag(aBits)
		if a < 0 {
			flags |= FlagNV
		}
		return out(float32(math.Sqrt(float64(a))))
	case insts.OpFMADD, insts.OpFMSUB, insts.OpFNMSUB, insts.OpFNMADD:
		cBits := unboxF32(rc)
		snanFlag(aBits, bBits, cBits)
		cv := math.Float32frombits(cBits)
		return out(float32(fmaD(inst.Op, float64(a), float64(b), float64(cv))))
	case insts.OpFSGNJ:
		return FPResult{Bits: boxF32(bBits&0x80000000 | aBits&0x7fffffff)}
	case insts.OpFSGNJN:
		return FPResult{Bits: boxF32(^bBits&0x80000000 | aBits&0x7fffffff)}
	case insts.OpFSGNJX:
		return FPResult{Bits: boxF32((aBits^bBits)&0x80000000 | aBits&0x7fffffff)}
	case insts.OpFMIN, insts.OpFMAX:
		bits, fl := minMaxS(inst.Op, aBits, bBits)
		return FPResult{Bits: boxF32(bits), Flags: fl}
	case insts.OpFEQ:
		snanFlag(aBits, bBits)
		return boolResult(a == b, flags)
	case insts.OpFLT:
		if a != a || b != b {
			flags |= FlagNV
		}
		return boolResult(a < b, flags)
	case insts.OpFLE:
		if a != a || b != b {
			flags |= FlagNV
		}
		return boolResult(a <= b, flags)
	case insts.OpFCLASS:
		return FPResult{Bits: uint64(classifyS(aBits)), ToInt: true}
	case insts.OpFCVTToInt:
		bits, fl := cvtToInt(float64(a), a != a, inst.Rs2, rm)
		return FPResult{Bits: bits, ToInt: true, Flags: fl}
	case insts.OpFCVTFromInt:
		return FPResult{Bits: boxF32(canonS(cvtFromIntS(intOperand, inst.Rs2)))}
	case insts.OpFCVTFloat:
		// fcvt.s.d
		dBits := ra
		if isSNaN64(dBits) {
			flags |= FlagNV
		}
		d := math.Float64frombits(dBits)
		return FPResult{Bits: boxF32(canonS(float32(d))), Flags: flags}
	case insts.OpFMVToInt:
		return FPResult{Bits: uint64(int64(int32(unboxF32(ra)))), ToInt: true}
	case insts.OpFMVFromInt:
		return FPResult{Bits: boxF32(uint32(intOperand))}
	}
	return FPResult{Trap: NewTrap(CauseIllegalInst, uint64(inst.Raw))}
}

func (f *FPU) executeD(inst *insts.Instruction, ra, rb, rc uint64, intOperand uint64, rm uint8) FPResult {
	aBits := ra
	bBits := rb
	a := math.Float64frombits(aBits)
	b := math.Float64frombits(bBits)

	var flags uint8
	snanFlag := func(bitsList ...uint64) {
		for _, bits := range bitsList {
			if isSNaN64(bits) {
				flags |= FlagNV
			}
		}
	}
	out := func(v float64) FPResult {
		return FPResult{Bits: canonD(v), Flags: flags}
	}

	switch inst.Op {
	case insts.OpFADD:
		snanFlag(aBits, bBits)
		return out(a + b)
	case insts.OpFSUB:
		snanFlag(aBits, bBits)
		return out(a - b)
	case insts.OpFMUL:
		snanFlag(aBits, bBits)
		if (math.IsInf(a, 0) && b == 0) || (a == 0 && math.IsInf(b, 0)) {
			flags |= FlagNV
		}
		return out(a * b)
	case insts.OpFDIV:
		snanFlag(aBits, bBits)
		if b == 0 && a == a && a != 0 && !math.IsInf(a, 0) {
			flags |= FlagDZ
		}
		return out(a / b)
	case insts.OpFSQRT:
		snanFlag(aBits)
		if a < 0 {
			flags |= FlagNV
		}
		return out(math.Sqrt(a))
	case insts.OpFMADD, insts.OpFMSUB, insts.OpFNMSUB, insts.OpFNMADD:
		snanFlag(aBits, bBits, rc)
		cv := math.Float64frombits(rc)
		return out(fmaD(inst.Op, a, b, cv))
	case insts.OpFSGNJ:
		return FPResult{Bits: bBits&(1<<63) | aBits&^(uint64(1)<<63)}
	case insts.OpFSGNJN:
		return FPResult{Bits: ^bBits&(1<<63) | aBits&^(uint64(1)<<63)}
	case insts.OpFSGNJX:
		return FPResult{Bits: (aBits^bBits)&(1<<63) | aBits&^(uint64(1)<<63)}
	case insts.OpFMIN, insts.OpFMAX:
		bits, fl := minMaxD(inst.Op, aBits, bBits)
		return FPResult{Bits: bits, Flags: fl}
	case insts.OpFEQ:
		snanFlag(aBits, bBits)
		return boolResult(a == b, flags)
	case insts.OpFLT:
		if a != a || b != b {
			flags |= FlagNV
		}
		return boolResult(a < b, flags)
	case insts.OpFLE:
		if a != a || b != b {
			flags |= FlagNV
		}
		return boolResult(a <= b, flags)
	case insts.OpFCLASS:
		return FPResult{Bits: uint64(classifyD(aBits)), ToInt: true}
	case insts.OpFCVTToInt:
		bits, fl := cvtToInt(a, a != a, inst.Rs2, rm)
		return FPResult{Bits: bits, ToInt: true, Flags: fl}
	case insts.OpFCVTFromInt:
		return FPResult{Bits: canonD(cvtFromIntD(intOperand, inst.Rs2))}
	case insts.OpFCVTFloat:
		// fcvt.d.s
		sBits := unboxF32(ra)
		if isSNaN32(sBits) {
			flags |= FlagNV
		}
		s := math.Float32frombits(sBits)
		return FPResult{Bits: canonD(float64(s)), Flags: flags}
	case insts.OpFMVToInt:
		return FPResult{Bits: ra, ToInt: true}
	case insts.OpFMVFromInt:
		return FPResult{Bits: intOperand}
	}
	return FPResult{Trap: NewTrap(CauseIllegalInst, uint64(inst.Raw))}
}

func boolResult(v bool, flags uint8) FPResult {
	if v {
		return FPResult{Bits: 1, ToInt: true, Flags: flags}
	}
	return FPResult{Bits: 0, ToInt: true, Flags: flags}
}

func fmaD(op insts.Op, a, b, c float64) float64 {
	switch op {
	case insts.OpFMADD:
		return math.FMA(a, b, c)
	case insts.OpFMSUB:
		return math.FMA(a, b, -c)
	case insts.OpFNMSUB:
		return math.FMA(-a, b, c)
	case insts.OpFNMADD:
		return math.FMA(-a, b, -c)
	}
	return 0
}

// minMaxS implements fmin.s/fmax.s NaN semantics: a quiet NaN operand
// is ignored unless both operands are NaN, in which case the result is
// the canonical NaN. Signaling NaNs raise NV.
func minMaxS(op insts.Op, aBits, bBits uint32) (uint32, uint8) {
	a := math.Float32frombits(aBits)
	b := math.Float32frombits(bBits)
	var flags uint8
	if isSNaN32(aBits) || isSNaN32(bBits) {
		flags |= FlagNV
	}
	aNaN, bNaN := a != a, b != b
	switch {
	case aNaN && bNaN:
		return canonicalNaN32, flags
	case aNaN:
		return bBits, flags
	case bNaN:
		return aBits, flags
	}
	// -0.0 orders below +0.0.
	if a == 0 && b == 0 {
		negA := aBits&0x80000000 != 0
		if (op == insts.OpFMIN) == negA {
			return aBits, flags
		}
		return bBits, flags
	}
	if (op == insts.OpFMIN) == (a < b) {
		return aBits, flags
	}
	return bBits, flags
}

func minMaxD(op insts.Op, aBits, bBits uint64) (uint64, uint8) {
	a := math.Float64frombits(aBits)
	b := math.Float64frombits(bBits)
	var flags uint8
	if isSNaN64(aBits) || isSNaN64(bBits) {
		flags |= FlagNV
	}
	aNaN, bNaN := a != a, b != b
	switch {
	case aNaN && bNaN:
		return canonicalNaN64, flags
	case aNaN:
		return bBits, flags
	case bNaN:
		return aBits, flags
	}
	if a == 0 && b == 0 {
		negA := aBits&(1<<63) != 0
		if (op == insts.OpFMIN) == negA {
			return aBits, flags
		}
		return bBits, flags
	}
	if (op == insts.OpFMIN) == (a < b) {
		return aBits, flags
	}
	return bBits, flags
}

// FP classification result bits.
const (
	classNegInf = 1 << iota
	classNegNormal
	classNegSubnormal
	classNegZero
	classPosZero
	classPosSubnormal
	classPosNormal
	classPosInf
	classSNaN
	classQNaN
)

func classifyS(bits uint32) uint32 {
	sign := bits&0x80000000 != 0
	exp := bits >> 23 & 0xff
	frac := bits & 0x7fffff

	switch {
	case exp == 0xff && frac != 0:
		if isSNaN32(bits) {
			return classSNaN
		}
		return classQNaN
	case exp == 0xff:
		if sign {
			return classNegInf
		}
		return classPosInf
	case exp == 0 && frac == 0:
		if sign {
			return classNegZero
		}
		return classPosZero
	case exp == 0:
		if sign {
			return classNegSubnormal
		}
		return classPosSubnormal
	default:
		if sign {
			return classNegNormal
		}
		return classPosNormal
	}
}

func classifyD(bits uint64) uint32 {
	sign := bits&(1<<63) != 0
	exp := bits >> 52 & 0x7ff
	frac := bits & 0xfffffffffffff

	switch {
	case exp == 0x7ff && frac != 0:
		if isSNaN64(bits) {
			return classSNaN
		}
		return classQNaN
	case exp == 0x7ff:
		if sign {
			return classNegInf
		}
		return classPosInf
	case exp == 0 && frac == 0:
		if sign {
			return classNegZero
		}
		return classPosZero
	case exp == 0:
		if sign {
			return classNegSubnormal
		}
		return classPosSubnormal
	default:
		if sign {
			return classNegNormal
		}
		return classPosNormal
	}
}

// round applies the rounding mode to a value about to be truncated to
// an integer.
func round(v float64, rm uint8) float64 {
	switch rm {
	case RoundTowardZero:
		return math.Trunc(v)
	case RoundDown:
		return math.Floor(v)
	case RoundUp:
		return math.Ceil(v)
	case RoundNearestMax:
		return math.Round(v)
	default:
		return math.RoundToEven(v)
	}
}

// cvtToInt converts to the integer type selected by the rs2 field with
// RISC-V saturation: NaN and out-of-range values clamp to the type
// extremes and raise NV.
func cvtToInt(v float64, isNaN bool, sel uint8, rm uint8) (uint64, uint8) {
	var flags uint8
	rounded := round(v, rm)
	if !isNaN && rounded != v {
		flags |= FlagNX
	}
	v = rounded

	switch sel {
	case insts.CvtW:
		switch {
		case isNaN, v >= 1<<31:
			return uint64(int64(math.MaxInt32)), flags | FlagNV
		case v < -(1 << 31):
			minInt32 := int64(math.MinInt32)
			return uint64(minInt32), flags | FlagNV
		}
		return uint64(int64(int32(v))), flags
	case insts.CvtWU:
		switch {
		case isNaN, v >= 1<<32:
			return ^uint64(0), flags | FlagNV
		case v <= -1:
			return 0, flags | FlagNV
		}
		return uint64(int64(int32(uint32(v)))), flags
	case insts.CvtL:
		switch {
		case isNaN, v >= 1<<63:
			return uint64(math.MaxInt64), flags | FlagNV
		case v < -(1 << 63):
			minInt64 := int64(math.MinInt64)
			return uint64(minInt64), flags | FlagNV
		}
		return uint64(int64(v)), flags
	case insts.CvtLU:
		switch {
		case isNaN, v >= 1<<64:
			return ^uint64(0), flags | FlagNV
		case v <= -1:
			return 0, flags | FlagNV
		}
		return uint64(v), flags
	}
	return 0, flags
}

func cvtFromIntS(v uint64, sel uint8) float32 {
	switch sel {
	case insts.CvtW:
		return float32(int32(v))
	case insts.CvtWU:
		return float32(uint32(v))
	case insts.CvtL:
		return float32(int64(v))
	case insts.CvtLU:
		return float32(v)
	}
	return 0
}

func cvtFromIntD(v uint64, sel uint8) float64 {
	switch sel {
	case insts.CvtW:
		return float64(int32(v))
	case insts.CvtWU:
		return float64(uint32(v))
	case insts.CvtL:
		return float64(int64(v))
	case insts.CvtLU:
		return float64(v)
	}
	return 0
}
