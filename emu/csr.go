package emu

// CSR addresses.
const (
	CSRFflags = 0x001
	CSRFrm    = 0x002
	CSRFcsr   = 0x003

	CSRCycle   = 0xc00
	CSRTime    = 0xc01
	CSRInstret = 0xc02

	CSRSstatus    = 0x100
	CSRSie        = 0x104
	CSRStvec      = 0x105
	CSRScounteren = 0x106
	CSRSscratch   = 0x140
	CSRSepc       = 0x141
	CSRScause     = 0x142
	CSRStval      = 0x143
	CSRSip        = 0x144
	CSRSatp       = 0x180

	CSRMstatus       = 0x300
	CSRMisa          = 0x301
	CSRMedeleg       = 0x302
	CSRMideleg       = 0x303
	CSRMie           = 0x304
	CSRMtvec         = 0x305
	CSRMcounteren    = 0x306
	CSRMcountinhibit = 0x320
	CSRMscratch      = 0x340
	CSRMepc          = 0x341
	CSRMcause        = 0x342
	CSRMtval         = 0x343
	CSRMip           = 0x344

	CSRMcycle   = 0xb00
	CSRMinstret = 0xb02

	CSRMvendorid = 0xf11
	CSRMarchid   = 0xf12
	CSRMimpid    = 0xf13
	CSRMhartid   = 0xf14
)

// mstatus bits.
const (
	MstatusSIE  = uint64(1) << 1
	MstatusMIE  = uint64(1) << 3
	MstatusSPIE = uint64(1) << 5
	MstatusMPIE = uint64(1) << 7
	MstatusSPP  = uint64(1) << 8
	MstatusMPP  = uint64(3) << 11
	MstatusFS   = uint64(3) << 13
	MstatusMPRV = uint64(1) << 17
	MstatusSUM  = uint64(1) << 18
	MstatusMXR  = uint64(1) << 19
	MstatusTVM  = uint64(1) << 20
	MstatusTW   = uint64(1) << 21
	MstatusTSR  = uint64(1) << 22
	MstatusSD   = uint64(1) << 63

	MstatusMPPShift = 11
)

// mip / mie bits.
const (
	MipSSIP = uint64(1) << IntSSoft
	MipMSIP = uint64(1) << IntMSoft
	MipSTIP = uint64(1) << IntSTimer
	MipMTIP = uint64(1) << IntMTimer
	MipSEIP = uint64(1) << IntSExt
	MipMEIP = uint64(1) << IntMExt
)

// mcountinhibit bits.
const (
	countinhibitCY = uint64(1) << 0
	countinhibitIR = uint64(1) << 2
)

// sstatus is a masked view of mstatus.
const sstatusMask = MstatusSIE | MstatusSPIE | MstatusSPP | MstatusFS |
	MstatusSUM | MstatusMXR | MstatusSD

// misaRV64GC encodes RV64 with the IMAFDC extensions plus S and U modes.
const misaRV64GC = uint64(2)<<62 | // MXL=64
	1<<0 | // A
	1<<2 | // C
	1<<3 | // D
	1<<5 | // F
	1<<8 | // I
	1<<12 | // M
	1<<18 | // S
	1<<20 // U

// CSRFile holds the control-and-status registers of a single hart,
// together with the current privilege mode. Reads and writes are
// privilege-checked; failures surface as illegal-instruction traps.
type CSRFile struct {
	// Priv is the current privilege mode.
	Priv PrivLevel

	Mstatus   uint64
	Medeleg   uint64
	Mideleg   uint64
	Mie       uint64
	Mip       uint64
	Mtvec     uint64
	Mscratch  uint64
	Mepc      uint64
	Mcause    uint64
	Mtval     uint64
	Mhartid       uint64
	Mcounteren    uint64
	Mcountinhibit uint64

	Stvec      uint64
	Scounteren uint64
	Sscratch   uint64
	Sepc       uint64
	Scause     uint64
	Stval      uint64
	Satp       uint64

	Fflags uint8
	Frm    uint8

	// Cycle and Instret back mcycle/minstret and their user views.
	Cycle   uint64
	Instret uint64

	// TimeFn supplies the time CSR; the CLINT owns the counter.
	TimeFn func() uint64

	// OnSatpWrite is invoked after any satp write so the MMU can flush
	// its TLB.
	OnSatpWrite func()
}

// NewCSRFile creates the CSR file in machine mode with reset state.
func NewCSRFile() *CSRFile {
	return &CSRFile{Priv: PrivMachine}
}

// implementedZero reports whether addr is an implemented CSR that is
// hardwired to zero (PMP, HPM counters, debug triggers).
func implementedZero(addr uint16) bool {
	switch {
	case addr >= 0x3a0 && addr <= 0x3a3: // pmpcfg0-3
		return true
	case addr >= 0x3b0 && addr <= 0x3bf: // pmpaddr0-15
		return true
	case addr >= 0xb03 && addr <= 0xb1f: // mhpmcounter3-31
		return true
	case addr >= 0x323 && addr <= 0x33f: // mhpmevent3-31
		return true
	case addr >= 0xc03 && addr <= 0xc1f: // hpmcounter3-31
		return true
	case addr >= 0x7a0 && addr <= 0x7a3: // tselect/tdata1-3
		return true
	}
	return false
}

// checkPriv validates that the current mode may access addr.
func checkPriv(addr uint16, priv PrivLevel) *Trap {
	need := PrivLevel((addr >> 8) & 3)
	if priv < need {
		return NewTrap(CauseIllegalInst, 0)
	}
	return nil
}

// Read returns the value of the CSR at addr, or an illegal-instruction
// trap for privilege violations and unimplemented CSRs.
func (c *CSRFile) Read(addr uint16) (uint64, *Trap) {
	if t := checkPriv(addr, c.Priv); t != nil {
		return 0, t
	}

	switch addr {
	case CSRFflags:
		return uint64(c.Fflags), nil
	case CSRFrm:
		return uint64(c.Frm), nil
	case CSRFcsr:
		return uint64(c.Fflags) | uint64(c.Frm)<<5, nil

	case CSRCycle, CSRMcycle:
		return c.Cycle, nil
	case CSRInstret, CSRMinstret:
		return c.Instret, nil
	case CSRTime:
		if c.TimeFn != nil {
			return c.TimeFn(), nil
		}
		return 0, nil

	case CSRSstatus:
		return c.Mstatus & sstatusMask, nil
	case CSRSie:
		return c.Mie & c.Mideleg, nil
	case CSRSip:
		return c.Mip & c.Mideleg, nil
	case CSRStvec:
		return c.Stvec, nil
	case CSRScounteren:
		return c.Scounteren, nil
	case CSRSscratch:
		return c.Sscratch, nil
	case CSRSepc:
		return c.Sepc, nil
	case CSRScause:
		return c.Scause, nil
	case CSRStval:
		return c.Stval, nil
	case CSRSatp:
		return c.Satp, nil

	case CSRMstatus:
		return c.Mstatus, nil
	case CSRMisa:
		return misaRV64GC, nil
	case CSRMedeleg:
		return c.Medeleg, nil
	case CSRMideleg:
		return c.Mideleg, nil
	case CSRMie:
		return c.Mie, nil
	case CSRMtvec:
		return c.Mtvec, nil
	case CSRMcounteren:
		return c.Mcounteren, nil
	case CSRMcountinhibit:
		return c.Mcountinhibit, nil
	case CSRMscratch:
		return c.Mscratch, nil
	case CSRMepc:
		return c.Mepc, nil
	case CSRMcause:
		return c.Mcause, nil
	case CSRMtval:
		return c.Mtval, nil
	case CSRMip:
		return c.Mip, nil
	case CSRMhartid:
		return c.Mhartid, nil
	case CSRMvendorid, CSRMarchid, CSRMimpid:
		return 0, nil
	}

	if implementedZero(addr) {
		return 0, nil
	}
	return 0, NewTrap(CauseIllegalInst, 0)
}

// Write stores value into the CSR at addr, applying per-CSR write masks
// and side effects. Writes to read-only CSRs and unimplemented CSRs
// raise illegal-instruction.
func (c *CSRFile) Write(addr uint16, value uint64) *Trap {
	if t := checkPriv(addr, c.Priv); t != nil {
		return t
	}
	if (addr >> 10) == 3 { // read-only space
		return NewTrap(CauseIllegalInst, 0)
	}

	switch addr {
	case CSRFflags:
		c.Fflags = uint8(value & 0x1f)
		c.markFSDirty()
	case CSRFrm:
		c.Frm = uint8(value & 0x7)
		c.markFSDirty()
	case CSRFcsr:
		c.Fflags = uint8(value & 0x1f)
		c.Frm = uint8(value>>5) & 0x7
		c.markFSDirty()

	case CSRMcycle:
		c.Cycle = value
	case CSRMinstret:
		c.Instret = value

	case CSRSstatus:
		c.writeMstatus((c.Mstatus &^ sstatusMask) | (value & sstatusMask))
	case CSRSie:
		c.Mie = (c.Mie &^ c.Mideleg) | (value & c.Mideleg)
	case CSRSip:
		// Only SSIP is software-writable through sip.
		c.Mip = (c.Mip &^ MipSSIP) | (value & MipSSIP)
	case CSRStvec:
		c.Stvec = value &^ 2
	case CSRScounteren:
		c.Scounteren = value
	case CSRSscratch:
		c.Sscratch = value
	case CSRSepc:
		c.Sepc = value &^ 1
	case CSRScause:
		c.Scause = value
	case CSRStval:
		c.Stval = value
	case CSRSatp:
		// WARL: only Bare and Sv39 are supported; other modes leave
		// the register unchanged.
		mode := value >> 60
		if mode != 0 && mode != 8 {
			return nil
		}
		c.Satp = value
		if c.OnSatpWrite != nil {
			c.OnSatpWrite()
		}

	case CSRMstatus:
		c.writeMstatus(value)
	case CSRMisa:
		// WARL, fixed.
	case CSRMedeleg:
		c.Medeleg = value & 0xb3ff
	case CSRMideleg:
		c.Mideleg = value & (MipSSIP | MipSTIP | MipSEIP)
	case CSRMie:
		c.Mie = value & (MipSSIP | MipMSIP | MipSTIP | MipMTIP | MipSEIP | MipMEIP)
	case CSRMip:
		// MTIP and MSIP are owned by the CLINT; software writes to
		// them are dropped.
		mask := MipSSIP | MipSTIP | MipSEIP
		c.Mip = (c.Mip &^ mask) | (value & mask)
	case CSRMtvec:
		c.Mtvec = value &^ 2
	case CSRMcounteren:
		c.Mcounteren = value
	case CSRMcountinhibit:
		c.Mcountinhibit = value
	case CSRMscratch:
		c.Mscratch = value
	case CSRMepc:
		c.Mepc = value &^ 1
	case CSRMcause:
		c.Mcause = value
	case CSRMtval:
		c.Mtval = value

	default:
		if implementedZero(addr) {
			return nil
		}
		return NewTrap(CauseIllegalInst, 0)
	}
	return nil
}

// writeMstatus applies the mstatus write mask and derives SD from FS.
func (c *CSRFile) writeMstatus(value uint64) {
	const mask = MstatusSIE | MstatusMIE | MstatusSPIE | MstatusMPIE |
		MstatusSPP | MstatusMPP | MstatusFS | MstatusMPRV | MstatusSUM |
		MstatusMXR | MstatusTVM | MstatusTW | MstatusTSR

	// MPP is WARL over {U, S, M}.
	if (value>>MstatusMPPShift)&3 == 2 {
		value = (value &^ MstatusMPP) | (c.Mstatus & MstatusMPP)
	}

	c.Mstatus = (c.Mstatus &^ mask) | (value & mask)
	if c.Mstatus&MstatusFS == MstatusFS {
		c.Mstatus |= MstatusSD
	} else {
		c.Mstatus &^= MstatusSD
	}
}

func (c *CSRFile) markFSDirty() {
	c.Mstatus |= MstatusFS | MstatusSD
}

// MarkFSDirty records that FP state has been written, for mstatus.FS.
func (c *CSRFile) MarkFSDirty() {
	c.markFSDirty()
}

// AccumFlags ORs new exception flags into fflags.
func (c *CSRFile) AccumFlags(flags uint8) {
	if flags != 0 {
		c.Fflags |= flags & 0x1f
		c.markFSDirty()
	}
}

// InstretIncrement bumps the retired-instruction counter, honoring
// mcountinhibit.
func (c *CSRFile) InstretIncrement() {
	if c.Mcountinhibit&countinhibitIR == 0 {
		c.Instret++
	}
}

// CycleIncrement bumps the cycle counter, honoring mcountinhibit.
func (c *CSRFile) CycleIncrement() {
	if c.Mcountinhibit&countinhibitCY == 0 {
		c.Cycle++
	}
}

// PendingInterrupt returns the highest-priority deliverable interrupt,
// or nil. Machine interrupts outrank supervisor ones; within a level the
// order is external, software, timer.
func (c *CSRFile) PendingInterrupt() *Trap {
	pending := c.Mip & c.Mie
	if pending == 0 {
		return nil
	}

	mPending := pending &^ c.Mideleg
	sPending := pending & c.Mideleg

	mEnabled := c.Priv < PrivMachine ||
		(c.Priv == PrivMachine && c.Mstatus&MstatusMIE != 0)
	if mEnabled {
		for _, code := range [...]uint64{IntMExt, IntMSoft, IntMTimer} {
			if mPending&(1<<code) != 0 {
				return NewInterrupt(code)
			}
		}
	}

	sEnabled := c.Priv < PrivSupervisor ||
		(c.Priv == PrivSupervisor && c.Mstatus&MstatusSIE != 0)
	if sEnabled {
		for _, code := range [...]uint64{IntSExt, IntSSoft, IntSTimer} {
			if sPending&(1<<code) != 0 {
				return NewInterrupt(code)
			}
		}
	}

	return nil
}

// AnyInterruptPending reports whether any interrupt is pending and
// enabled in mie, ignoring the global MIE/SIE gates. WFI wakes on this
// condition.
func (c *CSRFile) AnyInterruptPending() bool {
	return c.Mip&c.Mie != 0
}

// TakeTrap performs the privilege transition for a trap whose faulting
// instruction is at pc, and returns the handler address. Exceptions and
// interrupts with the matching medeleg/mideleg bit set trap to S-mode
// unless already executing in M-mode.
func (c *CSRFile) TakeTrap(t *Trap, pc uint64) uint64 {
	code := t.Code()

	delegate := false
	if c.Priv <= PrivSupervisor {
		if t.IsInterrupt() {
			delegate = c.Mideleg&(1<<code) != 0
		} else {
			delegate = c.Medeleg&(1<<code) != 0
		}
	}

	if delegate {
		c.Sepc = pc
		c.Scause = t.Cause
		c.Stval = t.Tval

		if c.Mstatus&MstatusSIE != 0 {
			c.Mstatus |= MstatusSPIE
		} else {
			c.Mstatus &^= MstatusSPIE
		}
		c.Mstatus &^= MstatusSIE
		if c.Priv == PrivSupervisor {
			c.Mstatus |= MstatusSPP
		} else {
			c.Mstatus &^= MstatusSPP
		}
		c.Priv = PrivSupervisor

		if c.Stvec&1 != 0 && t.IsInterrupt() {
			return (c.Stvec &^ 3) + 4*code
		}
		return c.Stvec &^ 3
	}

	c.Mepc = pc
	c.Mcause = t.Cause
	c.Mtval = t.Tval

	if c.Mstatus&MstatusMIE != 0 {
		c.Mstatus |= MstatusMPIE
	} else {
		c.Mstatus &^= MstatusMPIE
	}
	c.Mstatus &^= MstatusMIE
	c.Mstatus = (c.Mstatus &^ MstatusMPP) | uint64(c.Priv)<<MstatusMPPShift
	c.Priv = PrivMachine

	if c.Mtvec&1 != 0 && t.IsInterrupt() {
		return (c.Mtvec &^ 3) + 4*code
	}
	return c.Mtvec &^ 3
}

// MRet executes the MRET privilege pop and returns the resume address.
func (c *CSRFile) MRet() (uint64, *Trap) {
	if c.Priv != PrivMachine {
		return 0, NewTrap(CauseIllegalInst, 0)
	}

	prev := PrivLevel(c.Mstatus >> MstatusMPPShift & 3)
	if c.Mstatus&MstatusMPIE != 0 {
		c.Mstatus |= MstatusMIE
	} else {
		c.Mstatus &^= MstatusMIE
	}
	c.Mstatus |= MstatusMPIE
	c.Mstatus &^= MstatusMPP
	if prev != PrivMachine {
		c.Mstatus &^= MstatusMPRV
	}
	c.Priv = prev
	return c.Mepc, nil
}

// SRet executes the SRET privilege pop and returns the resume address.
func (c *CSRFile) SRet() (uint64, *Trap) {
	if c.Priv < PrivSupervisor {
		return 0, NewTrap(CauseIllegalInst, 0)
	}
	if c.Priv == PrivSupervisor && c.Mstatus&MstatusTSR != 0 {
		return 0, NewTrap(CauseIllegalInst, 0)
	}

	prev := PrivUser
	if c.Mstatus&MstatusSPP != 0 {
		prev = PrivSupervisor
	}
	if c.Mstatus&MstatusSPIE != 0 {
		c.Mstatus |= MstatusSIE
	} else {
		c.Mstatus &^= MstatusSIE
	}
	c.Mstatus |= MstatusSPIE
	c.Mstatus &^= MstatusSPP
	if prev != PrivMachine {
		c.Mstatus &^= MstatusMPRV
	}
	c.Priv = prev
	return c.Sepc, nil
}
