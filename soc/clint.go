package soc

import "github.com/sarchlab/rvsim/emu"

// CLINT register offsets.
const (
	clintMSIP     = 0x0000
	clintMTIMECMP = 0x4000
	clintMTIME    = 0xbff8
)

// CLINT is the core-local interruptor: the machine timer and the
// software-interrupt register. It owns the MTIP and MSIP bits of mip.
type CLINT struct {
	csr *emu.CSRFile

	msip     uint32
	mtime    uint64
	mtimecmp uint64

	// divider is the number of core cycles per mtime tick.
	divider uint64
	phase   uint64
}

// NewCLINT creates a CLINT driving the given CSR file. divider is the
// cycles-per-mtime ratio; values below 1 are treated as 1.
func NewCLINT(csr *emu.CSRFile, divider uint64) *CLINT {
	if divider == 0 {
		divider = 1
	}
	c := &CLINT{csr: csr, divider: divider, mtimecmp: ^uint64(0)}
	csr.TimeFn = c.MTime
	return c
}

// Name implements Device.
func (c *CLINT) Name() string { return "CLINT" }

// Size implements Device.
func (c *CLINT) Size() uint64 { return 0x10000 }

// MTime returns the current timer value.
func (c *CLINT) MTime() uint64 { return c.mtime }

// Tick advances the timer by one core cycle and refreshes the MTIP and
// MSIP lines into mip.
func (c *CLINT) Tick() {
	c.phase++
	if c.phase >= c.divider {
		c.phase = 0
		c.mtime++
	}
	c.updateInterrupts()
}

func (c *CLINT) updateInterrupts() {
	if c.mtime >= c.mtimecmp {
		c.csr.Mip |= emu.MipMTIP
	} else {
		c.csr.Mip &^= emu.MipMTIP
	}
	if c.msip&1 != 0 {
		c.csr.Mip |= emu.MipMSIP
	} else {
		c.csr.Mip &^= emu.MipMSIP
	}
}

// Read implements Device.
func (c *CLINT) Read(offset uint64, size int) (uint64, bool) {
	switch {
	case offset >= clintMSIP && offset < clintMSIP+4:
		return readField(uint64(c.msip), offset-clintMSIP, size), true
	case offset >= clintMTIMECMP && offset < clintMTIMECMP+8:
		return readField(c.mtimecmp, offset-clintMTIMECMP, size), true
	case offset >= clintMTIME && offset < clintMTIME+8:
		return readField(c.mtime, offset-clintMTIME, size), true
	}
	return 0, true
}

// Write implements Device. Writing MTIMECMP retires any pending timer
// interrupt until mtime catches up again; MTIME itself is read-only.
func (c *CLINT) Write(offset uint64, size int, value uint64) bool {
	switch {
	case offset >= clintMSIP && offset < clintMSIP+4:
		c.msip = uint32(writeField(uint64(c.msip), offset-clintMSIP, size, value)) & 1
	case offset >= clintMTIMECMP && offset < clintMTIMECMP+8:
		c.mtimecmp = writeField(c.mtimecmp, offset-clintMTIMECMP, size, value)
	case offset >= clintMTIME && offset < clintMTIME+8:
		// Read-only; drop.
		return true
	}
	c.updateInterrupts()
	return true
}

// readField extracts size bytes at a byte offset inside a register.
func readField(reg uint64, offset uint64, size int) uint64 {
	reg >>= offset * 8
	switch size {
	case 1:
		return reg & 0xff
	case 2:
		return reg & 0xffff
	case 4:
		return reg & 0xffffffff
	}
	return reg
}

// writeField merges size bytes at a byte offset into a register.
func writeField(reg uint64, offset uint64, size int, value uint64) uint64 {
	var mask uint64
	switch size {
	case 1:
		mask = 0xff
	case 2:
		mask = 0xffff
	case 4:
		mask = 0xffffffff
	default:
		mask = ^uint64(0)
	}
	shift := offset * 8
	return reg&^(mask<<shift) | (value&mask)<<shift
}
