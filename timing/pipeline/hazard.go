package pipeline

import "github.com/sarchlab/rvsim/insts"

// operandSpace distinguishes the integer and FP register namespaces for
// dependency matching. x0 never participates.
type operandSpace struct {
	reg uint8
	fp  bool
	use bool
}

// sourceOperands lists the register sources an instruction reads.
func sourceOperands(inst *insts.Instruction) [3]operandSpace {
	var ops [3]operandSpace
	if inst == nil {
		return ops
	}
	ops[0] = operandSpace{reg: inst.Rs1, fp: inst.ReadsFPRs1(),
		use: inst.ReadsIntRs1() || inst.ReadsFPRs1()}
	ops[1] = operandSpace{reg: inst.Rs2, fp: inst.ReadsFPRs2(),
		use: inst.ReadsIntRs2() || inst.ReadsFPRs2()}
	if inst.Class == insts.ClassFP {
		switch inst.Op {
		case insts.OpFMADD, insts.OpFMSUB, insts.OpFNMSUB, insts.OpFNMADD:
			ops[2] = operandSpace{reg: inst.Rs3, fp: true, use: true}
		}
	}
	return ops
}

// matches reports whether a producer write (rd, fp) satisfies a source.
func (o operandSpace) matches(rd uint8, fp bool) bool {
	if !o.use || o.fp != fp {
		return false
	}
	if !o.fp && o.reg == 0 {
		return false
	}
	return o.reg == rd
}

// StallResult contains stall and flush control signals.
type StallResult struct {
	// StallIF holds the current fetch.
	StallIF bool
	// StallID holds the current decode.
	StallID bool
	// InsertBubbleEX turns the ID/EX latch into a bubble.
	InsertBubbleEX bool
	// FlushIF squashes the fetched instruction (branch redirect).
	FlushIF bool
	// FlushID squashes the decoded instruction.
	FlushID bool
}

// HazardUnit detects data hazards and computes forwarding decisions.
type HazardUnit struct{}

// NewHazardUnit creates a hazard detection unit.
func NewHazardUnit() *HazardUnit {
	return &HazardUnit{}
}

// DetectLoadUse reports a load-use hazard between the instruction in
// ID/EX (a load whose data is not available until after MEM) and the
// instruction being decoded. The consumer must stall for one cycle; a
// forward from a load still in flight is not a valid forward.
func (h *HazardUnit) DetectLoadUse(idex *IDEXRegister, next *insts.Instruction) bool {
	if !idex.Valid || idex.Inst == nil || !idex.Inst.IsLoad() || next == nil {
		return false
	}

	rd := idex.Inst.Rd
	fp := idex.Inst.WritesFPReg()
	if !fp && rd == 0 {
		return false
	}
	if !fp && !idex.Inst.WritesIntReg() {
		// SC with rd=x0 and similar.
		return false
	}

	for _, src := range sourceOperands(next) {
		if src.matches(rd, fp) {
			return true
		}
	}
	return false
}

// ForwardOperand returns the freshest value for a source operand,
// checking the just-completed memory result (one instruction ahead)
// and the retiring writeback latch (two ahead) before falling back to
// the value read from the register file at decode.
func (h *HazardUnit) ForwardOperand(
	src operandSpace,
	regValue uint64,
	fresh *MEMWBRegister,
	retiring *MEMWBRegister,
) uint64 {
	value := regValue

	if retiring.Valid && retiring.Trap == nil {
		if (retiring.RegWrite && src.matches(retiring.Rd, false)) ||
			(retiring.FPRegWrite && src.matches(retiring.Rd, true)) {
			value = retiring.Result
		}
	}
	if fresh.Valid && fresh.Trap == nil {
		if (fresh.RegWrite && src.matches(fresh.Rd, false)) ||
			(fresh.FPRegWrite && src.matches(fresh.Rd, true)) {
			value = fresh.Result
		}
	}
	return value
}

// ComputeStalls folds hazard conditions into stage control signals.
func (h *HazardUnit) ComputeStalls(loadUse, serialize, redirect bool) StallResult {
	var result StallResult

	if loadUse || serialize {
		result.StallIF = true
		result.StallID = true
		result.InsertBubbleEX = true
	}
	if redirect {
		result.FlushIF = true
		result.FlushID = true
	}
	return result
}
