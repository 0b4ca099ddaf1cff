package emu

import (
	"math/bits"

	"github.com/sarchlab/rvsim/insts"
)

// ALU performs combinational RV64IM integer arithmetic. It holds no
// state; operand fetch and result commit belong to the pipeline.
type ALU struct{}

// NewALU creates a new integer ALU.
func NewALU() *ALU {
	return &ALU{}
}

// signExt32 sign-extends the low 32 bits of v to 64 bits.
func signExt32(v uint64) uint64 {
	return uint64(int64(int32(v)))
}

// Execute computes op over the two 64-bit operands. Shift amounts mask
// to 6 bits (5 for W-suffixed ops); division follows the RISC-V rules:
// division by zero yields all-ones (quotient) or the dividend
// (remainder), and INT_MIN / -1 wraps with no exception.
func (a *ALU) Execute(op insts.Op, x, y uint64) uint64 {
	switch op {
	case insts.OpADD, insts.OpADDI:
		return x + y
	case insts.OpSUB:
		return x - y
	case insts.OpSLL, insts.OpSLLI:
		return x << (y & 0x3f)
	case insts.OpSLT, insts.OpSLTI:
		if int64(x) < int64(y) {
			return 1
		}
		return 0
	case insts.OpSLTU, insts.OpSLTIU:
		if x < y {
			return 1
		}
		return 0
	case insts.OpXOR, insts.OpXORI:
		return x ^ y
	case insts.OpSRL, insts.OpSRLI:
		return x >> (y & 0x3f)
	case insts.OpSRA, insts.OpSRAI:
		return uint64(int64(x) >> (y & 0x3f))
	case insts.OpOR, insts.OpORI:
		return x | y
	case insts.OpAND, insts.OpANDI:
		return x & y

	case insts.OpADDW, insts.OpADDIW:
		return signExt32(x + y)
	case insts.OpSUBW:
		return signExt32(x - y)
	case insts.OpSLLW, insts.OpSLLIW:
		return signExt32(x << (y & 0x1f))
	case insts.OpSRLW, insts.OpSRLIW:
		return signExt32(uint64(uint32(x) >> (y & 0x1f)))
	case insts.OpSRAW, insts.OpSRAIW:
		return uint64(int64(int32(x) >> (y & 0x1f)))

	case insts.OpMUL:
		return x * y
	case insts.OpMULH:
		hi, _ := bits.Mul64(x, y)
		if int64(x) < 0 {
			hi -= y
		}
		if int64(y) < 0 {
			hi -= x
		}
		return hi
	case insts.OpMULHU:
		hi, _ := bits.Mul64(x, y)
		return hi
	case insts.OpMULHSU:
		hi, _ := bits.Mul64(x, y)
		if int64(x) < 0 {
			hi -= y
		}
		return hi
	case insts.OpMULW:
		return signExt32(x * y)

	case insts.OpDIV:
		if y == 0 {
			return ^uint64(0)
		}
		if int64(x) == -1<<63 && int64(y) == -1 {
			return x
		}
		return uint64(int64(x) / int64(y))
	case insts.OpDIVU:
		if y == 0 {
			return ^uint64(0)
		}
		return x / y
	case insts.OpREM:
		if y == 0 {
			return x
		}
		if int64(x) == -1<<63 && int64(y) == -1 {
			return 0
		}
		return uint64(int64(x) % int64(y))
	case insts.OpREMU:
		if y == 0 {
			return x
		}
		return x % y
	case insts.OpDIVW:
		xw, yw := int32(x), int32(y)
		if yw == 0 {
			return ^uint64(0)
		}
		if xw == -1<<31 && yw == -1 {
			return signExt32(uint64(uint32(xw)))
		}
		return uint64(int64(xw / yw))
	case insts.OpDIVUW:
		xw, yw := uint32(x), uint32(y)
		if yw == 0 {
			return ^uint64(0)
		}
		return signExt32(uint64(xw / yw))
	case insts.OpREMW:
		xw, yw := int32(x), int32(y)
		if yw == 0 {
			return uint64(int64(xw))
		}
		if xw == -1<<31 && yw == -1 {
			return 0
		}
		return uint64(int64(xw % yw))
	case insts.OpREMUW:
		xw, yw := uint32(x), uint32(y)
		if yw == 0 {
			return signExt32(uint64(xw))
		}
		return signExt32(uint64(xw % yw))
	}
	return 0
}

// BranchTaken evaluates a conditional branch over its two operands.
func (a *ALU) BranchTaken(op insts.Op, x, y uint64) bool {
	switch op {
	case insts.OpBEQ:
		return x == y
	case insts.OpBNE:
		return x != y
	case insts.OpBLT:
		return int64(x) < int64(y)
	case insts.OpBGE:
		return int64(x) >= int64(y)
	case insts.OpBLTU:
		return x < y
	case insts.OpBGEU:
		return x >= y
	}
	return false
}

// AMOCompute applies an AMO operation to the old memory value and the
// register operand at the given width.
func (a *ALU) AMOCompute(op insts.Op, old, operand uint64, width uint8) uint64 {
	if width == 4 {
		old = signExt32(old)
		operand = signExt32(operand)
	}

	var result uint64
	switch op {
	case insts.OpAMOSWAP:
		result = operand
	case insts.OpAMOADD:
		result = old + operand
	case insts.OpAMOXOR:
		result = old ^ operand
	case insts.OpAMOAND:
		result = old & operand
	case insts.OpAMOOR:
		result = old | operand
	case insts.OpAMOMIN:
		result = old
		if int64(operand) < int64(old) {
			result = operand
		}
	case insts.OpAMOMAX:
		result = old
		if int64(operand) > int64(old) {
			result = operand
		}
	case insts.OpAMOMINU:
		result = old
		if operand < old {
			result = operand
		}
	case insts.OpAMOMAXU:
		result = old
		if operand > old {
			result = operand
		}
	}
	return result
}
