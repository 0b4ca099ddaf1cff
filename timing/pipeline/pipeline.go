package pipeline

import (
	"fmt"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

// FetchResult is the outcome of an instruction fetch through the MMU
// and I-cache.
type FetchResult struct {
	// Inst is the decoded instruction; nil when Trap is set.
	Inst *insts.Instruction
	// Latency is the fetch latency in cycles (at least 1).
	Latency uint64
	// Trap carries a fetch page fault or access fault.
	Trap *emu.Trap
}

// Fetcher supplies decoded instructions to the fetch stage.
type Fetcher interface {
	Fetch(pc uint64) FetchResult
}

// MemRequest describes a MEM-stage memory operation.
type MemRequest struct {
	Inst *insts.Instruction
	// Addr is the effective virtual address.
	Addr uint64
	// StoreValue is the register value for stores, SC, and AMOs.
	StoreValue uint64
}

// MemResult is the outcome of a MEM-stage operation.
type MemResult struct {
	// Data is the destination register value: extended load data, the
	// SC success flag, or the old memory value for AMOs.
	Data uint64
	// Latency is the access latency in cycles (at least 1).
	Latency uint64
	// Trap carries misaligned, access, or page faults.
	Trap *emu.Trap
}

// MemoryUnit services MEM-stage operations (the LSU).
type MemoryUnit interface {
	Access(req MemRequest) MemResult
}

// Hooks are maintenance callbacks into the memory subsystem.
type Hooks struct {
	// FenceI invalidates the I-cache (FENCE.I).
	FenceI func()
	// SFenceVMA flushes TLB state. flushAll is set when rs1 is x0;
	// otherwise vaddr selects the page.
	SFenceVMA func(vaddr uint64, flushAll bool)
}

// Statistics holds pipeline performance statistics.
type Statistics struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Stalls counts load-use and serialization stall cycles.
	Stalls uint64
	// FetchStalls counts cycles lost to I-cache misses.
	FetchStalls uint64
	// MemStalls counts cycles lost to D-cache misses and bus latency.
	MemStalls uint64
	// Flushes counts pipeline flushes from redirects and traps.
	Flushes uint64
	// Traps counts taken exceptions.
	Traps uint64
	// Interrupts counts taken interrupts.
	Interrupts uint64
	// BranchPredictions, BranchCorrect, and BranchMispredictions track
	// control-flow prediction outcomes.
	BranchPredictions    uint64
	BranchCorrect        uint64
	BranchMispredictions uint64
}

// CPI returns cycles per retired instruction.
func (s Statistics) CPI() float64 {
	if s.Instructions == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Instructions)
}

// Option is a functional option for configuring the Pipeline.
type Option func(*Pipeline)

// WithPredictor replaces the default bimodal predictor.
func WithPredictor(p Predictor) Option {
	return func(pl *Pipeline) { pl.predictor = p }
}

// WithHooks installs the fence/TLB maintenance callbacks.
func WithHooks(h Hooks) Option {
	return func(pl *Pipeline) { pl.hooks = h }
}

// WithTrace enables retired-instruction tracing through fn.
func WithTrace(fn func(pc uint64, inst *insts.Instruction)) Option {
	return func(pl *Pipeline) { pl.trace = fn }
}

// Pipeline is the five-stage in-order pipeline: IF → ID → EX → MEM → WB
// with operand forwarding, load-use stalls, branch prediction, and
// precise traps. Stages are evaluated in reverse order each cycle so a
// stage reads its input latch before the upstream stage overwrites it.
type Pipeline struct {
	ifid  IFIDRegister
	idex  IDEXRegister
	exmem EXMEMRegister
	memwb MEMWBRegister

	regFile   *emu.RegFile
	fpRegFile *emu.FPRegFile
	csr       *emu.CSRFile

	alu *emu.ALU
	fpu *emu.FPU

	hazard    *HazardUnit
	predictor Predictor
	fetcher   Fetcher
	memUnit   MemoryUnit
	hooks     Hooks

	pc uint64

	// WFI state: fetch is suppressed until an interrupt pends.
	wfi bool

	// In-flight fetch (multi-cycle I-cache miss).
	fetchPending *FetchResult
	fetchWait    uint64
	fetchFaulted bool

	// In-flight memory operation (multi-cycle D-cache miss).
	memPending bool
	memResult  MemResult
	memWait    uint64

	trace func(pc uint64, inst *insts.Instruction)

	stats Statistics
}

// NewPipeline creates a pipeline over the given architectural state,
// fetch path, and memory unit.
func NewPipeline(
	regFile *emu.RegFile,
	fpRegFile *emu.FPRegFile,
	csr *emu.CSRFile,
	fetcher Fetcher,
	memUnit MemoryUnit,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		regFile:   regFile,
		fpRegFile: fpRegFile,
		csr:       csr,
		alu:       emu.NewALU(),
		fpu:       emu.NewFPU(csr),
		hazard:    NewHazardUnit(),
		predictor: NewPredictor(DefaultPredictorConfig()),
		fetcher:   fetcher,
		memUnit:   memUnit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PC returns the fetch program counter.
func (p *Pipeline) PC() uint64 { return p.pc }

// SetPC redirects fetch, discarding any in-flight fetch.
func (p *Pipeline) SetPC(pc uint64) {
	p.pc = pc
	p.fetchPending = nil
	p.fetchWait = 0
	p.fetchFaulted = false
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Statistics { return p.stats }

// Predictor returns the branch predictor for statistics reporting.
func (p *Pipeline) Predictor() Predictor { return p.predictor }

// WaitingForInterrupt reports whether the pipeline is parked in WFI.
func (p *Pipeline) WaitingForInterrupt() bool { return p.wfi }

// Empty reports whether no instruction is in flight.
func (p *Pipeline) Empty() bool {
	return !p.ifid.Valid && !p.idex.Valid && !p.exmem.Valid && !p.memwb.Valid
}

// GetIFID returns the IF/ID latch, for inspection.
func (p *Pipeline) GetIFID() *IFIDRegister { return &p.ifid }

// GetIDEX returns the ID/EX latch, for inspection.
func (p *Pipeline) GetIDEX() *IDEXRegister { return &p.idex }

// GetEXMEM returns the EX/MEM latch, for inspection.
func (p *Pipeline) GetEXMEM() *EXMEMRegister { return &p.exmem }

// GetMEMWB returns the MEM/WB latch, for inspection.
func (p *Pipeline) GetMEMWB() *MEMWBRegister { return &p.memwb }

// needsSerialize reports whether an instruction must execute with the
// pipeline drained ahead of it. CSR and system instructions commit
// system state at EX; fences must observe all prior stores.
func needsSerialize(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Class {
	case insts.ClassCSR, insts.ClassSystem, insts.ClassFence:
		return true
	}
	return false
}

// isMemOp reports whether the instruction occupies the memory stage.
func isMemOp(inst *insts.Instruction) bool {
	if inst == nil {
		return false
	}
	switch inst.Class {
	case insts.ClassLoad, insts.ClassStore, insts.ClassFPLoad,
		insts.ClassFPStore, insts.ClassAtomic:
		return true
	}
	return false
}

// takeTrap performs the architectural trap transition and squashes
// every in-flight instruction.
func (p *Pipeline) takeTrap(t *emu.Trap, epc uint64) {
	handler := p.csr.TakeTrap(t, epc)
	p.SetPC(handler)
	p.flushAll()
	p.wfi = false
	p.stats.Flushes++
	if t.IsInterrupt() {
		p.stats.Interrupts++
	} else {
		p.stats.Traps++
	}
}

func (p *Pipeline) flushAll() {
	p.ifid.Clear()
	p.idex.Clear()
	p.exmem.Clear()
	p.memwb.Clear()
	p.memPending = false
	p.memWait = 0
}

// Tick advances the pipeline by one cycle.
func (p *Pipeline) Tick() {
	p.stats.Cycles++

	// A parked pipeline wakes when any interrupt pends, regardless of
	// the global enable bits; it only traps for deliverable ones.
	if p.wfi {
		if p.Empty() {
			if !p.csr.AnyInterruptPending() {
				return
			}
			p.wfi = false
			if t := p.csr.PendingInterrupt(); t != nil {
				p.takeTrap(t, p.pc)
			}
			return
		}
		// The WFI instruction itself is still draining.
	}

	// Hazard conditions are judged on the latch state at cycle start.
	loadUse := p.hazard.DetectLoadUse(&p.idex, p.ifid.Inst)
	serialize := p.ifid.Valid && needsSerialize(p.ifid.Inst) &&
		(p.idex.Valid || p.exmem.Valid || p.memwb.Valid)
	if (loadUse || serialize) && p.ifid.Valid {
		p.stats.Stalls++
	}
	stall := p.hazard.ComputeStalls(loadUse, serialize, false)

	// Stage 5: Writeback.
	retiring := p.memwb
	if p.memwb.Valid {
		if p.memwb.Trap != nil {
			p.takeTrap(p.memwb.Trap, p.memwb.PC)
			return
		}

		if p.memwb.RegWrite {
			p.regFile.Write(p.memwb.Rd, p.memwb.Result)
		}
		if p.memwb.FPRegWrite {
			p.fpRegFile.Write(p.memwb.Rd, p.memwb.Result)
			p.csr.MarkFSDirty()
		}
		p.csr.AccumFlags(p.memwb.FPFlags)
		p.csr.InstretIncrement()
		p.stats.Instructions++
		if p.trace != nil {
			p.trace(p.memwb.PC, p.memwb.Inst)
		}

		// Interrupts are sampled at the retirement boundary; the
		// retiring instruction completes and the next instruction
		// begins execution at the handler.
		if t := p.csr.PendingInterrupt(); t != nil {
			p.takeTrap(t, p.memwb.NextPC)
			return
		}
	}

	// Stage 4: Memory.
	var nextMEMWB MEMWBRegister
	memStall := false
	if p.exmem.Valid {
		switch {
		case p.exmem.Trap != nil || !isMemOp(p.exmem.Inst):
			nextMEMWB = MEMWBRegister{
				Valid:      true,
				PC:         p.exmem.PC,
				NextPC:     p.exmem.NextPC,
				Inst:       p.exmem.Inst,
				Result:     p.exmem.Result,
				Rd:         p.exmem.Rd,
				RegWrite:   p.exmem.RegWrite,
				FPRegWrite: p.exmem.FPRegWrite,
				FPFlags:    p.exmem.FPFlags,
				Trap:       p.exmem.Trap,
			}
		default:
			if !p.memPending {
				p.memResult = p.memUnit.Access(MemRequest{
					Inst:       p.exmem.Inst,
					Addr:       p.exmem.Result,
					StoreValue: p.exmem.StoreValue,
				})
				p.memPending = true
				if p.memResult.Latency > 1 {
					p.memWait = p.memResult.Latency - 1
				}
			}
			if p.memWait > 0 {
				p.memWait--
				memStall = true
				p.stats.MemStalls++
			} else {
				p.memPending = false
				nextMEMWB = MEMWBRegister{
					Valid:      true,
					PC:         p.exmem.PC,
					NextPC:     p.exmem.NextPC,
					Inst:       p.exmem.Inst,
					Result:     p.memResult.Data,
					Rd:         p.exmem.Rd,
					RegWrite:   p.exmem.RegWrite,
					FPRegWrite: p.exmem.FPRegWrite,
					FPFlags:    p.exmem.FPFlags,
					Trap:       p.memResult.Trap,
				}
			}
		}
	}

	if memStall {
		// Hold EX and upstream; a bubble drains into WB. The retiring
		// result leaves the bypass network now, so fold it into the
		// operands the held EX instruction will use.
		if p.idex.Valid && p.idex.Inst != nil {
			srcs := sourceOperands(p.idex.Inst)
			p.idex.Rv1 = p.hazard.ForwardOperand(srcs[0], p.idex.Rv1, &nextMEMWB, &retiring)
			p.idex.Rv2 = p.hazard.ForwardOperand(srcs[1], p.idex.Rv2, &nextMEMWB, &retiring)
			p.idex.Rv3 = p.hazard.ForwardOperand(srcs[2], p.idex.Rv3, &nextMEMWB, &retiring)
		}
		p.memwb.Clear()
		return
	}

	// Stage 3: Execute.
	var nextEXMEM EXMEMRegister
	redirect := false
	var redirectPC uint64
	if p.idex.Valid {
		nextEXMEM, redirect, redirectPC = p.execute(&nextMEMWB, &retiring)
	}

	// Stage 2: Decode.
	var nextIDEX IDEXRegister
	if p.ifid.Valid && !stall.StallID {
		nextIDEX = p.decode()
	}

	// Stage 1: Fetch.
	var nextIFID IFIDRegister
	if !stall.StallIF && !p.wfi && !p.fetchFaulted {
		nextIFID = p.fetch()
	}

	// Latch.
	p.memwb = nextMEMWB
	p.exmem = nextEXMEM
	if stall.InsertBubbleEX {
		p.idex.Clear()
	} else {
		p.idex = nextIDEX
	}
	if !stall.StallIF {
		p.ifid = nextIFID
	}

	if redirect {
		p.SetPC(redirectPC)
		p.ifid.Clear()
		p.idex.Clear()
		p.stats.Flushes++
	}
}

// fetch runs the IF stage: translate and read through the I-cache,
// consult the predictor for control-flow instructions, and speculate
// the next PC.
func (p *Pipeline) fetch() IFIDRegister {
	if p.fetchPending == nil {
		result := p.fetcher.Fetch(p.pc)
		p.fetchPending = &result
		if result.Latency > 1 {
			p.fetchWait = result.Latency - 1
		}
	}
	if p.fetchWait > 0 {
		p.fetchWait--
		p.stats.FetchStalls++
		return IFIDRegister{}
	}

	result := *p.fetchPending
	p.fetchPending = nil

	if result.Trap != nil {
		// Emit the faulting slot once and park fetch until the trap
		// redirects the front end.
		p.fetchFaulted = true
		return IFIDRegister{Valid: true, PC: p.pc, Trap: result.Trap}
	}

	latch := IFIDRegister{Valid: true, PC: p.pc, Inst: result.Inst}

	if result.Inst.IsBranch() {
		pred := p.predictor.Predict(p.pc)
		latch.PredictedTaken = pred.Taken && pred.TargetKnown
		latch.PredictedTarget = pred.Target
		if latch.PredictedTaken {
			p.pc = pred.Target
			return latch
		}
	}
	p.pc += result.Inst.Size()
	return latch
}

// decode runs the ID stage: read register operands for the instruction
// in IF/ID.
func (p *Pipeline) decode() IDEXRegister {
	latch := IDEXRegister{
		Valid:           true,
		PC:              p.ifid.PC,
		Inst:            p.ifid.Inst,
		PredictedTaken:  p.ifid.PredictedTaken,
		PredictedTarget: p.ifid.PredictedTarget,
		Trap:            p.ifid.Trap,
	}
	inst := p.ifid.Inst
	if inst == nil || latch.Trap != nil {
		return latch
	}

	switch {
	case inst.Class == insts.ClassCSR && inst.CSRImmediate():
		latch.Rv1 = uint64(inst.Rs1)
	case inst.ReadsFPRs1():
		latch.Rv1 = p.fpRegFile.Read(inst.Rs1)
	case inst.ReadsIntRs1():
		latch.Rv1 = p.regFile.Read(inst.Rs1)
	}
	switch {
	case inst.ReadsFPRs2():
		latch.Rv2 = p.fpRegFile.Read(inst.Rs2)
	case inst.ReadsIntRs2():
		latch.Rv2 = p.regFile.Read(inst.Rs2)
	}
	if inst.Class == insts.ClassFP {
		switch inst.Op {
		case insts.OpFMADD, insts.OpFMSUB, insts.OpFNMSUB, insts.OpFNMADD:
			latch.Rv3 = p.fpRegFile.Read(inst.Rs3)
		}
	}
	return latch
}

// execute runs the EX stage over the ID/EX latch, forwarding operands
// from the in-flight results. It returns the next EX/MEM latch plus a
// front-end redirect if the instruction changes the fetch stream.
func (p *Pipeline) execute(fresh, retiring *MEMWBRegister) (EXMEMRegister, bool, uint64) {
	inst := p.idex.Inst
	pc := p.idex.PC

	latch := EXMEMRegister{
		Valid: true,
		PC:    pc,
		Inst:  inst,
		Trap:  p.idex.Trap,
	}
	if inst != nil {
		latch.NextPC = pc + inst.Size()
		latch.Rd = inst.Rd
	}
	if latch.Trap != nil || inst == nil {
		return latch, false, 0
	}

	srcs := sourceOperands(inst)
	rv1 := p.hazard.ForwardOperand(srcs[0], p.idex.Rv1, fresh, retiring)
	rv2 := p.hazard.ForwardOperand(srcs[1], p.idex.Rv2, fresh, retiring)
	rv3 := p.hazard.ForwardOperand(srcs[2], p.idex.Rv3, fresh, retiring)

	redirect := false
	var redirectPC uint64

	branchTaken := false
	var branchTarget uint64

	switch inst.Class {
	case insts.ClassALUImm:
		switch inst.Op {
		case insts.OpLUI:
			latch.Result = uint64(inst.Imm)
		case insts.OpAUIPC:
			latch.Result = pc + uint64(inst.Imm)
		default:
			latch.Result = p.alu.Execute(inst.Op, rv1, uint64(inst.Imm))
		}
		latch.RegWrite = inst.Rd != 0

	case insts.ClassALU:
		latch.Result = p.alu.Execute(inst.Op, rv1, rv2)
		latch.RegWrite = inst.Rd != 0

	case insts.ClassJAL:
		latch.Result = pc + inst.Size()
		latch.RegWrite = inst.Rd != 0
		branchTaken = true
		branchTarget = pc + uint64(inst.Imm)
		latch.NextPC = branchTarget

	case insts.ClassJALR:
		latch.Result = pc + inst.Size()
		latch.RegWrite = inst.Rd != 0
		branchTaken = true
		branchTarget = (rv1 + uint64(inst.Imm)) &^ 1
		latch.NextPC = branchTarget

	case insts.ClassBranch:
		branchTaken = p.alu.BranchTaken(inst.Op, rv1, rv2)
		branchTarget = pc + uint64(inst.Imm)
		if branchTaken {
			latch.NextPC = branchTarget
		}

	case insts.ClassLoad:
		latch.Result = rv1 + uint64(inst.Imm)
		latch.RegWrite = inst.Rd != 0

	case insts.ClassFPLoad:
		latch.Result = rv1 + uint64(inst.Imm)
		latch.FPRegWrite = true

	case insts.ClassStore, insts.ClassFPStore:
		latch.Result = rv1 + uint64(inst.Imm)
		latch.StoreValue = rv2

	case insts.ClassAtomic:
		latch.Result = rv1
		latch.StoreValue = rv2
		latch.RegWrite = inst.Rd != 0

	case insts.ClassCSR:
		latch.Result, latch.Trap = p.executeCSR(inst, rv1)
		latch.RegWrite = latch.Trap == nil && inst.Rd != 0
		// CSR side effects (satp, counters) may invalidate anything
		// fetched behind this instruction.
		redirect, redirectPC = true, latch.NextPC

	case insts.ClassSystem:
		redirect, redirectPC = p.executeSystem(inst, rv1, &latch)

	case insts.ClassFence:
		if inst.Op == insts.OpFENCEI && p.hooks.FenceI != nil {
			p.hooks.FenceI()
		}
		redirect, redirectPC = true, latch.NextPC

	case insts.ClassFP:
		res := p.fpu.Execute(inst, rv1, rv2, rv3, rv1)
		if res.Trap != nil {
			res.Trap.Tval = uint64(inst.Raw)
			latch.Trap = res.Trap
		} else {
			latch.Result = res.Bits
			latch.FPFlags = res.Flags
			if res.ToInt {
				latch.RegWrite = inst.Rd != 0
			} else {
				latch.FPRegWrite = true
			}
		}

	case insts.ClassIllegal:
		latch.Trap = emu.NewTrap(emu.CauseIllegalInst, uint64(inst.Raw))

	default:
		panic(fmt.Sprintf(
			"pipeline: unhandled class %d at PC %#x (inst %#x)",
			inst.Class, pc, inst.Raw))
	}

	if inst.IsBranch() && latch.Trap == nil {
		p.stats.BranchPredictions++
		mispredict := branchTaken != p.idex.PredictedTaken ||
			(branchTaken && p.idex.PredictedTarget != branchTarget)
		p.predictor.Update(pc, branchTaken, branchTarget, mispredict)
		if mispredict {
			p.stats.BranchMispredictions++
			redirect = true
			if branchTaken {
				redirectPC = branchTarget
			} else {
				redirectPC = pc + inst.Size()
			}
		} else {
			p.stats.BranchCorrect++
		}
	}

	return latch, redirect, redirectPC
}

// executeCSR performs the read-modify-write combinators. The pipeline
// has drained ahead of this instruction, so committing CSR state at EX
// is precise.
func (p *Pipeline) executeCSR(inst *insts.Instruction, operand uint64) (uint64, *emu.Trap) {
	addr := inst.CSR()

	old, trap := p.csr.Read(addr)
	if trap != nil {
		trap.Tval = uint64(inst.Raw)
		return 0, trap
	}

	var newValue uint64
	write := true
	switch inst.Op {
	case insts.OpCSRRW, insts.OpCSRRWI:
		newValue = operand
	case insts.OpCSRRS, insts.OpCSRRSI:
		newValue = old | operand
		// rs1=x0 (or a zero immediate) reads without writing.
		write = operand != 0 || (!inst.CSRImmediate() && inst.Rs1 != 0)
	case insts.OpCSRRC, insts.OpCSRRCI:
		newValue = old &^ operand
		write = operand != 0 || (!inst.CSRImmediate() && inst.Rs1 != 0)
	}

	if write {
		if trap := p.csr.Write(addr, newValue); trap != nil {
			trap.Tval = uint64(inst.Raw)
			return 0, trap
		}
	}
	return old, nil
}

// executeSystem handles ECALL/EBREAK/xRET/WFI/SFENCE.VMA at EX, with
// the pipeline drained ahead.
func (p *Pipeline) executeSystem(inst *insts.Instruction, rv1 uint64, latch *EXMEMRegister) (bool, uint64) {
	switch inst.Op {
	case insts.OpECALL:
		var cause uint64
		switch p.csr.Priv {
		case emu.PrivUser:
			cause = emu.CauseEcallFromU
		case emu.PrivSupervisor:
			cause = emu.CauseEcallFromS
		default:
			cause = emu.CauseEcallFromM
		}
		latch.Trap = emu.NewTrap(cause, 0)
		return false, 0

	case insts.OpEBREAK:
		latch.Trap = emu.NewTrap(emu.CauseBreakpoint, latch.PC)
		return false, 0

	case insts.OpMRET:
		target, trap := p.csr.MRet()
		if trap != nil {
			trap.Tval = uint64(inst.Raw)
			latch.Trap = trap
			return false, 0
		}
		latch.NextPC = target
		return true, target

	case insts.OpSRET:
		target, trap := p.csr.SRet()
		if trap != nil {
			trap.Tval = uint64(inst.Raw)
			latch.Trap = trap
			return false, 0
		}
		latch.NextPC = target
		return true, target

	case insts.OpWFI:
		p.wfi = true
		return true, latch.NextPC

	case insts.OpSFENCEVMA:
		if p.hooks.SFenceVMA != nil {
			p.hooks.SFenceVMA(rv1, inst.Rs1 == 0)
		}
		return true, latch.NextPC
	}

	latch.Trap = emu.NewTrap(emu.CauseIllegalInst, uint64(inst.Raw))
	return false, 0
}
