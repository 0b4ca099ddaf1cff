// Package core assembles the CPU core: architectural state, MMU,
// caches, load/store unit, and the pipeline.
package core

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/mmu"
	"github.com/sarchlab/rvsim/soc"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

const pageSize = 4096

// LSU services loads, stores, and atomics from the MEM stage. RAM
// accesses go through the D-cache when one is configured; device
// accesses always take the bus directly. The LSU owns the LR/SC
// reservation set of the hart.
type LSU struct {
	bus    *soc.Bus
	dcache *cache.Cache
	mmu    *mmu.MMU
	alu    *emu.ALU

	// busLatency is charged for uncached accesses.
	busLatency uint64

	// Reservation set: at most one per hart.
	resValid bool
	resAddr  uint64
	resWidth uint8
}

// NewLSU creates a load/store unit. dcache may be nil for an uncached
// configuration.
func NewLSU(bus *soc.Bus, dcache *cache.Cache, translator *mmu.MMU, busLatency uint64) *LSU {
	if busLatency == 0 {
		busLatency = 1
	}
	return &LSU{
		bus:        bus,
		dcache:     dcache,
		mmu:        translator,
		alu:        emu.NewALU(),
		busLatency: busLatency,
	}
}

// Access implements pipeline.MemoryUnit.
func (l *LSU) Access(req pipeline.MemRequest) pipeline.MemResult {
	inst := req.Inst
	switch inst.Class {
	case insts.ClassLoad, insts.ClassFPLoad:
		return l.load(inst, req.Addr)
	case insts.ClassStore, insts.ClassFPStore:
		return l.store(inst, req.Addr, req.StoreValue)
	case insts.ClassAtomic:
		return l.atomic(inst, req.Addr, req.StoreValue)
	}
	return pipeline.MemResult{Latency: 1}
}

// load reads inst.Width bytes at vaddr and extends them for rd.
func (l *LSU) load(inst *insts.Instruction, vaddr uint64) pipeline.MemResult {
	raw, latency, trap := l.readData(vaddr, int(inst.Width), emu.CauseMisalignedLoad)
	if trap != nil {
		return pipeline.MemResult{Trap: trap, Latency: 1}
	}
	return pipeline.MemResult{Data: extendLoad(inst, raw), Latency: latency}
}

// extendLoad applies the per-op sign/zero extension or NaN boxing.
func extendLoad(inst *insts.Instruction, raw uint64) uint64 {
	switch inst.Op {
	case insts.OpLB:
		return uint64(int64(int8(raw)))
	case insts.OpLH:
		return uint64(int64(int16(raw)))
	case insts.OpLW:
		return uint64(int64(int32(raw)))
	case insts.OpLBU, insts.OpLHU, insts.OpLWU, insts.OpLD:
		return raw
	case insts.OpFLW:
		return 0xffffffff_00000000 | raw
	case insts.OpFSD, insts.OpFLD:
		return raw
	}
	return raw
}

// store writes inst.Width bytes at vaddr and clears any overlapping
// reservation.
func (l *LSU) store(inst *insts.Instruction, vaddr uint64, value uint64) pipeline.MemResult {
	latency, trap := l.writeData(vaddr, int(inst.Width), value)
	if trap != nil {
		return pipeline.MemResult{Trap: trap, Latency: 1}
	}
	l.clearReservationIfOverlap(vaddr, inst.Width)
	return pipeline.MemResult{Latency: latency}
}

// atomic handles LR, SC, and the AMOs. All require natural alignment.
func (l *LSU) atomic(inst *insts.Instruction, vaddr uint64, operand uint64) pipeline.MemResult {
	width := uint64(inst.Width)
	if vaddr%width != 0 {
		cause := uint64(emu.CauseMisalignedStore)
		if inst.Op == insts.OpLR {
			cause = emu.CauseMisalignedLoad
		}
		return pipeline.MemResult{
			Trap:    emu.NewTrap(cause, vaddr),
			Latency: 1,
		}
	}

	switch inst.Op {
	case insts.OpLR:
		raw, latency, trap := l.readData(vaddr, int(inst.Width), emu.CauseMisalignedLoad)
		if trap != nil {
			return pipeline.MemResult{Trap: trap, Latency: 1}
		}
		l.resValid = true
		l.resAddr = vaddr
		l.resWidth = inst.Width
		return pipeline.MemResult{Data: extendWord(raw, inst.Width), Latency: latency}

	case insts.OpSC:
		// Succeeds iff the reservation matches; cleared either way.
		ok := l.resValid && l.resAddr == vaddr && l.resWidth == inst.Width
		l.resValid = false
		if !ok {
			return pipeline.MemResult{Data: 1, Latency: 1}
		}
		latency, trap := l.writeData(vaddr, int(inst.Width), operand)
		if trap != nil {
			return pipeline.MemResult{Trap: trap, Latency: 1}
		}
		return pipeline.MemResult{Data: 0, Latency: latency}
	}

	// AMO: read-modify-write. The store permission governs the whole
	// operation.
	paddr, trap := l.mmu.Translate(vaddr, mmu.AccessStore)
	if trap != nil {
		return pipeline.MemResult{Trap: trap, Latency: 1}
	}

	old, readLat, ok := l.physRead(paddr, int(inst.Width))
	if !ok {
		return pipeline.MemResult{
			Trap:    emu.NewTrap(emu.CauseStoreAccess, vaddr),
			Latency: 1,
		}
	}
	newValue := l.alu.AMOCompute(inst.Op, old, operand, inst.Width)
	writeLat, ok := l.physWrite(paddr, int(inst.Width), newValue)
	if !ok {
		return pipeline.MemResult{
			Trap:    emu.NewTrap(emu.CauseStoreAccess, vaddr),
			Latency: 1,
		}
	}
	l.clearReservationIfOverlap(vaddr, inst.Width)

	return pipeline.MemResult{
		Data:    extendWord(old, inst.Width),
		Latency: readLat + writeLat,
	}
}

// extendWord sign-extends 32-bit atomic results.
func extendWord(raw uint64, width uint8) uint64 {
	if width == 4 {
		return uint64(int64(int32(raw)))
	}
	return raw
}

func (l *LSU) clearReservationIfOverlap(addr uint64, width uint8) {
	if !l.resValid {
		return
	}
	if addr < l.resAddr+uint64(l.resWidth) && l.resAddr < addr+uint64(width) {
		l.resValid = false
	}
}

// ReservationValid reports whether the hart holds a reservation.
func (l *LSU) ReservationValid() bool { return l.resValid }

// physRead performs a physical read, cached for RAM.
func (l *LSU) physRead(paddr uint64, size int) (uint64, uint64, bool) {
	if l.bus.IsRAM(paddr) && l.dcache != nil {
		res := l.dcache.Read(paddr, size)
		return res.Data, res.Latency, true
	}
	v, ok := l.bus.Read(paddr, size)
	return v, l.busLatency, ok
}

// physWrite performs a physical write, cached for RAM.
func (l *LSU) physWrite(paddr uint64, size int, value uint64) (uint64, bool) {
	if l.bus.IsRAM(paddr) && l.dcache != nil {
		res := l.dcache.Write(paddr, size, value)
		return res.Latency, true
	}
	ok := l.bus.Write(paddr, size, value)
	return l.busLatency, ok
}

// readData reads size bytes at vaddr with translation. Misaligned RAM
// accesses are split at line and page boundaries with sequential
// semantics, each piece translated separately; misaligned device
// accesses raise the misaligned cause instead.
func (l *LSU) readData(vaddr uint64, size int, misalignedCause uint64) (uint64, uint64, *emu.Trap) {
	if vaddr%uint64(size) == 0 {
		paddr, trap := l.mmu.Translate(vaddr, mmu.AccessLoad)
		if trap != nil {
			return 0, 0, trap
		}
		v, lat, ok := l.physRead(paddr, size)
		if !ok {
			return 0, 0, emu.NewTrap(emu.CauseLoadAccess, vaddr)
		}
		return v, lat, nil
	}

	// Misaligned.
	var value uint64
	var latency uint64
	done := 0
	for done < size {
		va := vaddr + uint64(done)
		chunk := l.chunkSize(va, size-done)

		paddr, trap := l.mmu.Translate(va, mmu.AccessLoad)
		if trap != nil {
			return 0, 0, trap
		}
		if !l.bus.IsRAM(paddr) {
			return 0, 0, emu.NewTrap(misalignedCause, vaddr)
		}

		v, lat, ok := l.physReadChunk(paddr, chunk)
		if !ok {
			return 0, 0, emu.NewTrap(emu.CauseLoadAccess, va)
		}
		value |= v << (8 * done)
		latency += lat
		done += chunk
	}
	return value, latency, nil
}

// writeData writes size bytes at vaddr with translation, splitting
// misaligned RAM accesses the same way readData does.
func (l *LSU) writeData(vaddr uint64, size int, value uint64) (uint64, *emu.Trap) {
	if vaddr%uint64(size) == 0 {
		paddr, trap := l.mmu.Translate(vaddr, mmu.AccessStore)
		if trap != nil {
			return 0, trap
		}
		lat, ok := l.physWrite(paddr, size, value)
		if !ok {
			return 0, emu.NewTrap(emu.CauseStoreAccess, vaddr)
		}
		return lat, nil
	}

	var latency uint64
	done := 0
	for done < size {
		va := vaddr + uint64(done)
		chunk := l.chunkSize(va, size-done)

		paddr, trap := l.mmu.Translate(va, mmu.AccessStore)
		if trap != nil {
			return 0, trap
		}
		if !l.bus.IsRAM(paddr) {
			return 0, emu.NewTrap(emu.CauseMisalignedStore, vaddr)
		}

		lat, ok := l.physWriteChunk(paddr, chunk, value>>(8*done))
		if !ok {
			return 0, emu.NewTrap(emu.CauseStoreAccess, va)
		}
		latency += lat
		done += chunk
	}
	l.clearReservationIfOverlap(vaddr, uint8(size))
	return latency, nil
}

// chunkSize bounds a split access piece to the current page and cache
// line.
func (l *LSU) chunkSize(va uint64, remaining int) int {
	chunk := remaining
	if pageRem := int(pageSize - va%pageSize); chunk > pageRem {
		chunk = pageRem
	}
	if l.dcache != nil {
		line := uint64(l.dcache.Config().BlockSize)
		if lineRem := int(line - va%line); chunk > lineRem {
			chunk = lineRem
		}
	}
	return chunk
}

// physReadChunk reads an arbitrary-width chunk (1..8 bytes).
func (l *LSU) physReadChunk(paddr uint64, size int) (uint64, uint64, bool) {
	if l.dcache != nil && l.bus.IsRAM(paddr) {
		res := l.dcache.Read(paddr, size)
		return res.Data, res.Latency, true
	}
	buf := make([]byte, size)
	if !l.bus.ReadBytes(paddr, buf) {
		return 0, 0, false
	}
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * i)
	}
	return v, l.busLatency, true
}

// physWriteChunk writes an arbitrary-width chunk (1..8 bytes).
func (l *LSU) physWriteChunk(paddr uint64, size int, value uint64) (uint64, bool) {
	if l.dcache != nil && l.bus.IsRAM(paddr) {
		res := l.dcache.Write(paddr, size, value)
		return res.Latency, true
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(value >> (8 * i))
	}
	if !l.bus.WriteBytes(paddr, buf) {
		return 0, false
	}
	return l.busLatency, true
}
