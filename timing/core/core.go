package core

import (
	"io"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
	"github.com/sarchlab/rvsim/mmu"
	"github.com/sarchlab/rvsim/soc"
	"github.com/sarchlab/rvsim/timing/cache"
	"github.com/sarchlab/rvsim/timing/pipeline"
)

// Params configures a Core.
type Params struct {
	// RAMBase and RAMSize locate the main memory region.
	RAMBase uint64
	RAMSize uint64

	// ResetPC is the fetch address after reset.
	ResetPC uint64

	// Device base addresses.
	UARTBase   uint64
	CLINTBase  uint64
	SysconBase uint64
	DiskBase   uint64

	// DiskImage backs the disk device; nil maps no disk.
	DiskImage []byte

	// ICache and DCache configure the L1 caches; nil disables one.
	ICache *cache.Config
	DCache *cache.Config

	// Predictor selects and sizes the branch predictor.
	Predictor pipeline.PredictorConfig

	// TLBSize is the number of TLB entries.
	TLBSize int

	// BusLatency is the uncached access latency in cycles.
	BusLatency uint64

	// CyclesPerMTime divides the core clock down to the CLINT timer.
	CyclesPerMTime uint64

	// UARTOutput receives transmitted bytes.
	UARTOutput io.Writer

	// Trace, when set, is called for every retired instruction.
	Trace func(pc uint64, inst *insts.Instruction)
}

// Core is a single RV64GC hart with its private memory hierarchy. All
// mutable global state of the hart (CSR file, CLINT lines, reservation
// set) hangs off this aggregate.
type Core struct {
	RegFile   *emu.RegFile
	FPRegFile *emu.FPRegFile
	CSR       *emu.CSRFile

	Bus    *soc.Bus
	UART   *soc.UART
	CLINT  *soc.CLINT
	Syscon *soc.Syscon
	Disk   *soc.Disk

	MMU    *mmu.MMU
	ICache *cache.Cache
	DCache *cache.Cache
	LSU    *LSU

	Pipeline *pipeline.Pipeline

	decoder *insts.Decoder
	params  Params
}

// NewCore builds a core and its memory system from params.
func NewCore(params Params) *Core {
	c := &Core{
		RegFile:   &emu.RegFile{},
		FPRegFile: &emu.FPRegFile{},
		CSR:       emu.NewCSRFile(),
		Bus:       soc.NewBus(),
		decoder:   insts.NewDecoder(),
		params:    params,
	}

	c.Bus.Map(params.RAMBase, soc.NewMemory(params.RAMSize))
	c.UART = soc.NewUART(params.UARTOutput)
	c.Bus.Map(params.UARTBase, c.UART)
	c.CLINT = soc.NewCLINT(c.CSR, params.CyclesPerMTime)
	c.Bus.Map(params.CLINTBase, c.CLINT)
	c.Syscon = soc.NewSyscon()
	c.Bus.Map(params.SysconBase, c.Syscon)
	if params.DiskImage != nil {
		c.Disk = soc.NewDisk(params.DiskImage)
		c.Bus.Map(params.DiskBase, c.Disk)
	}

	c.MMU = mmu.New(c.Bus, c.CSR, params.TLBSize)
	if params.ICache != nil {
		c.ICache = cache.New(*params.ICache, cache.NewBusBacking(c.Bus))
	}
	if params.DCache != nil {
		c.DCache = cache.New(*params.DCache, cache.NewBusBacking(c.Bus))
	}
	c.LSU = NewLSU(c.Bus, c.DCache, c.MMU, params.BusLatency)

	opts := []pipeline.Option{
		pipeline.WithPredictor(pipeline.NewPredictor(params.Predictor)),
		pipeline.WithHooks(pipeline.Hooks{
			FenceI:    c.fenceI,
			SFenceVMA: c.sfenceVMA,
		}),
	}
	if params.Trace != nil {
		opts = append(opts, pipeline.WithTrace(params.Trace))
	}
	c.Pipeline = pipeline.NewPipeline(
		c.RegFile, c.FPRegFile, c.CSR, c, c.LSU, opts...)
	c.Pipeline.SetPC(params.ResetPC)

	return c
}

func (c *Core) fenceI() {
	if c.ICache != nil {
		c.ICache.InvalidateAll()
	}
	// Dirty data must be visible to subsequent fetches.
	if c.DCache != nil {
		c.DCache.Flush()
	}
}

func (c *Core) sfenceVMA(vaddr uint64, flushAll bool) {
	if flushAll {
		c.MMU.FlushTLB()
		return
	}
	c.MMU.FlushPage(vaddr)
}

// fetchHalf reads one 16-bit parcel of an instruction.
func (c *Core) fetchHalf(pc uint64) (uint64, uint64, *emu.Trap) {
	paddr, trap := c.MMU.Translate(pc, mmu.AccessFetch)
	if trap != nil {
		return 0, 0, trap
	}
	if c.Bus.IsRAM(paddr) && c.ICache != nil {
		res := c.ICache.Read(paddr, 2)
		return res.Data, res.Latency, nil
	}
	v, ok := c.Bus.Read(paddr, 2)
	if !ok {
		return 0, 0, emu.NewTrap(emu.CauseFetchAccess, pc)
	}
	lat := c.params.BusLatency
	if lat == 0 {
		lat = 1
	}
	return v, lat, nil
}

// Fetch implements pipeline.Fetcher: translate the PC, read through
// the I-cache, and decode. The second parcel of an uncompressed
// instruction is translated separately so a straddling page fault
// reports the correct address.
func (c *Core) Fetch(pc uint64) pipeline.FetchResult {
	if pc%2 != 0 {
		return pipeline.FetchResult{
			Trap:    emu.NewTrap(emu.CauseMisalignedFetch, pc),
			Latency: 1,
		}
	}

	low, latency, trap := c.fetchHalf(pc)
	if trap != nil {
		return pipeline.FetchResult{Trap: trap, Latency: 1}
	}

	word := uint32(low)
	if word&0x3 == 0x3 {
		high, lat2, trap := c.fetchHalf(pc + 2)
		if trap != nil {
			return pipeline.FetchResult{Trap: trap, Latency: 1}
		}
		word |= uint32(high) << 16
		if lat2 > latency {
			latency = lat2
		}
	}

	if latency == 0 {
		latency = 1
	}
	return pipeline.FetchResult{Inst: c.decoder.Decode(word), Latency: latency}
}

// Step advances the core by one cycle: the timer, the devices, and the
// pipeline.
func (c *Core) Step() {
	c.CSR.CycleIncrement()
	c.Bus.Tick()
	c.Pipeline.Tick()
}

// Halted reports whether SYSCON received the halt pattern.
func (c *Core) Halted() bool {
	return c.Syscon.Halted()
}

// Run steps until halt or until maxCycles elapses (0 = no limit).
// It returns true if the core halted.
func (c *Core) Run(maxCycles uint64) bool {
	for i := uint64(0); maxCycles == 0 || i < maxCycles; i++ {
		if c.Halted() {
			return true
		}
		c.Step()
	}
	return c.Halted()
}

// LoadImage writes a binary blob into physical memory.
func (c *Core) LoadImage(addr uint64, data []byte) error {
	return c.Bus.LoadBytes(addr, data)
}

// Inspector provides test and tooling access to architectural state.
type Inspector struct {
	core *Core
}

// Inspect returns an Inspector over the core.
func (c *Core) Inspect() *Inspector {
	return &Inspector{core: c}
}

// Reg returns an integer register value.
func (i *Inspector) Reg(reg uint8) uint64 {
	return i.core.RegFile.Read(reg)
}

// FPReg returns the raw bits of an FP register.
func (i *Inspector) FPReg(reg uint8) uint64 {
	return i.core.FPRegFile.Read(reg)
}

// PC returns the current fetch PC.
func (i *Inspector) PC() uint64 {
	return i.core.Pipeline.PC()
}

// CSR reads a CSR bypassing the privilege check. Reading an
// unimplemented CSR returns zero.
func (i *Inspector) CSR(addr uint16) uint64 {
	saved := i.core.CSR.Priv
	i.core.CSR.Priv = emu.PrivMachine
	defer func() { i.core.CSR.Priv = saved }()
	v, _ := i.core.CSR.Read(addr)
	return v
}

// Mem reads physical memory through the memory hierarchy's backing
// store, observing dirty cache lines first.
func (i *Inspector) Mem(paddr uint64, size int) uint64 {
	if i.core.DCache != nil {
		res := i.core.DCache.Read(paddr, size)
		return res.Data
	}
	v, _ := i.core.Bus.Read(paddr, size)
	return v
}
