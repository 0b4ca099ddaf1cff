package soc

import (
	"io"
	"sync"
)

// UART 16550A register offsets.
const (
	uartRBR = 0 // receive buffer (read) / transmit holding (write)
	uartIER = 1 // interrupt enable
	uartIIR = 2 // interrupt identification (read) / FIFO control (write)
	uartLCR = 3 // line control
	uartMCR = 4 // modem control
	uartLSR = 5 // line status
	uartMSR = 6 // modem status
	uartSCR = 7 // scratch
)

// LSR bits.
const (
	lsrDataReady = 1 << 0
	lsrTHREmpty  = 1 << 5
	lsrTxIdle    = 1 << 6
)

// UART models a 16550A serial port. Transmitted bytes go to the output
// writer immediately; received bytes are queued by the host and drained
// one at a time through RBR. Input never blocks: an empty queue simply
// reads as LSR.DR = 0.
type UART struct {
	mu sync.Mutex

	output io.Writer
	rx     []byte

	ier uint8
	lcr uint8
	mcr uint8
	scr uint8
	dll uint8
	dlm uint8
}

// NewUART creates a UART writing transmitted bytes to output.
func NewUART(output io.Writer) *UART {
	return &UART{output: output}
}

// Name implements Device.
func (u *UART) Name() string { return "UART0" }

// Size implements Device.
func (u *UART) Size() uint64 { return 0x100 }

// QueueInput appends host input bytes to the receive queue. Safe to
// call from a goroutine pumping stdin.
func (u *UART) QueueInput(p []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.rx = append(u.rx, p...)
}

// InputPending reports whether a received byte is waiting.
func (u *UART) InputPending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.rx) > 0
}

// dlab reports whether the divisor latch is mapped over RBR/IER.
func (u *UART) dlab() bool { return u.lcr&0x80 != 0 }

// Read implements Device.
func (u *UART) Read(offset uint64, size int) (uint64, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case uartRBR:
		if u.dlab() {
			return uint64(u.dll), true
		}
		if len(u.rx) == 0 {
			return 0, true
		}
		b := u.rx[0]
		u.rx = u.rx[1:]
		return uint64(b), true
	case uartIER:
		if u.dlab() {
			return uint64(u.dlm), true
		}
		return uint64(u.ier), true
	case uartIIR:
		// No interrupt pending, FIFOs enabled.
		return 0xc1, true
	case uartLCR:
		return uint64(u.lcr), true
	case uartMCR:
		return uint64(u.mcr), true
	case uartLSR:
		lsr := uint64(lsrTHREmpty | lsrTxIdle)
		if len(u.rx) > 0 {
			lsr |= lsrDataReady
		}
		return lsr, true
	case uartMSR:
		return 0, true
	case uartSCR:
		return uint64(u.scr), true
	}
	return 0, true
}

// Write implements Device.
func (u *UART) Write(offset uint64, size int, value uint64) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	switch offset {
	case uartRBR:
		if u.dlab() {
			u.dll = uint8(value)
			return true
		}
		if u.output != nil {
			_, _ = u.output.Write([]byte{byte(value)})
		}
	case uartIER:
		if u.dlab() {
			u.dlm = uint8(value)
			return true
		}
		u.ier = uint8(value)
	case uartIIR:
		// FCR writes: FIFO control, nothing to model.
	case uartLCR:
		u.lcr = uint8(value)
	case uartMCR:
		u.mcr = uint8(value)
	case uartSCR:
		u.scr = uint8(value)
	}
	return true
}
