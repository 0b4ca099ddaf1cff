package emu

import "fmt"

// PrivLevel is a RISC-V privilege level.
type PrivLevel uint8

// Privilege levels.
const (
	PrivUser       PrivLevel = 0
	PrivSupervisor PrivLevel = 1
	PrivMachine    PrivLevel = 3
)

func (p PrivLevel) String() string {
	switch p {
	case PrivUser:
		return "U"
	case PrivSupervisor:
		return "S"
	case PrivMachine:
		return "M"
	}
	return fmt.Sprintf("PrivLevel(%d)", uint8(p))
}

// Exception cause codes.
const (
	CauseMisalignedFetch  = 0
	CauseFetchAccess      = 1
	CauseIllegalInst      = 2
	CauseBreakpoint       = 3
	CauseMisalignedLoad   = 4
	CauseLoadAccess       = 5
	CauseMisalignedStore  = 6
	CauseStoreAccess      = 7
	CauseEcallFromU       = 8
	CauseEcallFromS       = 9
	CauseEcallFromM       = 11
	CauseFetchPageFault   = 12
	CauseLoadPageFault    = 13
	CauseStorePageFault   = 15
)

// Interrupt cause codes (without the interrupt bit).
const (
	IntSSoft  = 1
	IntMSoft  = 3
	IntSTimer = 5
	IntMTimer = 7
	IntSExt   = 9
	IntMExt   = 11
)

// InterruptBit marks a cause value as an interrupt.
const InterruptBit = uint64(1) << 63

// Trap is a guest-visible exception or interrupt. It travels through the
// pipeline as a value and is interpreted at writeback; it is never
// surfaced to the host as an error.
type Trap struct {
	// Cause is the mcause/scause encoding, including the interrupt bit
	// for interrupts.
	Cause uint64

	// Tval is the value for mtval/stval: the faulting address for
	// memory traps, the instruction bits for illegal instructions.
	Tval uint64
}

// NewTrap creates an exception trap with the given cause and tval.
func NewTrap(cause, tval uint64) *Trap {
	return &Trap{Cause: cause, Tval: tval}
}

// NewInterrupt creates an interrupt trap with the given cause code.
func NewInterrupt(code uint64) *Trap {
	return &Trap{Cause: InterruptBit | code}
}

// IsInterrupt reports whether the trap is an interrupt.
func (t *Trap) IsInterrupt() bool {
	return t.Cause&InterruptBit != 0
}

// Code returns the cause code without the interrupt bit.
func (t *Trap) Code() uint64 {
	return t.Cause &^ InterruptBit
}

func (t *Trap) String() string {
	if t.IsInterrupt() {
		return fmt.Sprintf("interrupt %d", t.Code())
	}
	return fmt.Sprintf("exception %d tval=%#x", t.Cause, t.Tval)
}
