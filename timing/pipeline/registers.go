// Package pipeline provides the five-stage in-order pipeline model.
package pipeline

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// IFIDRegister holds state between Fetch and Decode. An invalid latch
// is a bubble: it advances without side effects.
type IFIDRegister struct {
	// Valid indicates if this pipeline register contains an instruction.
	Valid bool

	// PC is the program counter of the fetched instruction.
	PC uint64

	// Inst is the decoded instruction. Fetch decodes because it needs
	// the instruction length for the PC increment.
	Inst *insts.Instruction

	// PredictedTaken indicates the branch predictor outcome at fetch.
	PredictedTaken bool

	// PredictedTarget is the predicted target address (from the BTB).
	PredictedTarget uint64

	// Trap carries a fetch-time fault (page or access fault) to the
	// writeback stage, where it is taken.
	Trap *emu.Trap
}

// Clear resets the IF/ID register to a bubble.
func (r *IFIDRegister) Clear() {
	*r = IFIDRegister{}
}

// IDEXRegister holds state between Decode and Execute.
type IDEXRegister struct {
	Valid bool
	PC    uint64
	Inst  *insts.Instruction

	// Operand values read from the register files. Rv1/Rv2 hold the
	// integer or raw FP value depending on which file the instruction
	// names; Rv3 is the third FMA operand.
	Rv1 uint64
	Rv2 uint64
	Rv3 uint64

	PredictedTaken  bool
	PredictedTarget uint64

	Trap *emu.Trap
}

// Clear resets the ID/EX register to a bubble.
func (r *IDEXRegister) Clear() {
	*r = IDEXRegister{}
}

// EXMEMRegister holds state between Execute and Memory.
type EXMEMRegister struct {
	Valid bool
	PC    uint64

	// NextPC is the architectural successor (branch target for taken
	// branches), used as the interrupt return address at retirement.
	NextPC uint64

	Inst *insts.Instruction

	// Result is the ALU/FPU output, or the effective address for
	// memory operations.
	Result uint64

	// StoreValue is the value a store writes to memory.
	StoreValue uint64

	// Rd and the write-enable flags drive forwarding and writeback.
	Rd         uint8
	RegWrite   bool
	FPRegWrite bool

	// FPFlags are the accumulated IEEE flags, committed at writeback.
	FPFlags uint8

	Trap *emu.Trap
}

// Clear resets the EX/MEM register to a bubble.
func (r *EXMEMRegister) Clear() {
	*r = EXMEMRegister{}
}

// MEMWBRegister holds state between Memory and Writeback.
type MEMWBRegister struct {
	Valid  bool
	PC     uint64
	NextPC uint64
	Inst   *insts.Instruction

	// Result is the final destination value, including load data.
	Result uint64

	Rd         uint8
	RegWrite   bool
	FPRegWrite bool
	FPFlags    uint8

	Trap *emu.Trap
}

// Clear resets the MEM/WB register to a bubble.
func (r *MEMWBRegister) Clear() {
	*r = MEMWBRegister{}
}
