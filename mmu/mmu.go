// Package mmu implements SV39 virtual address translation with a TLB.
package mmu

import (
	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/soc"
)

// AccessType distinguishes the three translation flavors.
type AccessType int

// Access types.
const (
	AccessLoad AccessType = iota
	AccessStore
	AccessFetch
)

// SATP modes.
const (
	satpModeBare = 0
	satpModeSv39 = 8
)

// PTE flag bits.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteG = 1 << 5
	pteA = 1 << 6
	pteD = 1 << 7
)

const (
	pageShift = 12
	pageSize  = 1 << pageShift
	vpnBits   = 9
	ppnMask   = (uint64(1) << 44) - 1
	levels    = 3
)

// tlbEntry caches one completed translation.
type tlbEntry struct {
	valid    bool
	vpn      uint64
	ppn      uint64
	flags    uint64
	pageSize uint64
	asid     uint16
}

// Statistics holds TLB performance counters.
type Statistics struct {
	Hits   uint64
	Misses uint64
	Walks  uint64
	Faults uint64
}

// MMU translates virtual addresses when satp selects Sv39 and the
// effective privilege is below machine mode. Successful walks populate
// a direct-mapped TLB keyed by VPN and ASID.
type MMU struct {
	bus *soc.Bus
	csr *emu.CSRFile

	tlb   []tlbEntry
	stats Statistics
}

// New creates an MMU walking page tables through bus. The CSR file's
// satp write hook is pointed at the TLB flush.
func New(bus *soc.Bus, csr *emu.CSRFile, tlbSize int) *MMU {
	if tlbSize <= 0 {
		tlbSize = 32
	}
	// Round up to a power of two for cheap indexing.
	size := 1
	for size < tlbSize {
		size <<= 1
	}
	m := &MMU{bus: bus, csr: csr, tlb: make([]tlbEntry, size)}
	csr.OnSatpWrite = m.FlushTLB
	return m
}

// Stats returns TLB counters.
func (m *MMU) Stats() Statistics { return m.stats }

// FlushTLB invalidates every TLB entry (SFENCE.VMA with rs1=rs2=x0,
// and any satp write).
func (m *MMU) FlushTLB() {
	for i := range m.tlb {
		m.tlb[i].valid = false
	}
}

// FlushPage invalidates the TLB entry covering vaddr, if present.
func (m *MMU) FlushPage(vaddr uint64) {
	vpn := vaddr >> pageShift
	e := &m.tlb[vpn&uint64(len(m.tlb)-1)]
	if e.valid && e.vpn == vpn {
		e.valid = false
	}
}

// effectivePriv resolves the privilege the access executes at,
// accounting for mstatus.MPRV on loads and stores.
func (m *MMU) effectivePriv(access AccessType) emu.PrivLevel {
	priv := m.csr.Priv
	if priv == emu.PrivMachine && access != AccessFetch &&
		m.csr.Mstatus&emu.MstatusMPRV != 0 {
		priv = emu.PrivLevel(m.csr.Mstatus >> emu.MstatusMPPShift & 3)
	}
	return priv
}

// Enabled reports whether translation applies to the given access.
func (m *MMU) Enabled(access AccessType) bool {
	if m.csr.Satp>>60 != satpModeSv39 {
		return false
	}
	return m.effectivePriv(access) != emu.PrivMachine
}

// Translate maps a virtual address to a physical address, or returns
// the page fault for the access type with tval = vaddr.
func (m *MMU) Translate(vaddr uint64, access AccessType) (uint64, *emu.Trap) {
	if !m.Enabled(access) {
		return vaddr, nil
	}
	priv := m.effectivePriv(access)

	vpn := vaddr >> pageShift
	asid := uint16(m.csr.Satp >> 44 & 0xffff)
	e := &m.tlb[vpn&uint64(len(m.tlb)-1)]

	if e.valid && e.vpn == vpn && (e.asid == asid || e.flags&pteG != 0) {
		if t := m.checkPerms(e.flags, access, priv, vaddr); t != nil {
			m.stats.Faults++
			return 0, t
		}
		// A stale A bit (or D bit on a write) forces a walk so the PTE
		// in memory gets updated.
		if e.flags&pteA != 0 && !(access == AccessStore && e.flags&pteD == 0) {
			m.stats.Hits++
			offset := vaddr & (e.pageSize - 1)
			return e.ppn<<pageShift | offset, nil
		}
		e.valid = false
	}

	m.stats.Misses++
	paddr, flags, size, trap := m.walk(vaddr, access, priv)
	if trap != nil {
		m.stats.Faults++
		return 0, trap
	}

	*e = tlbEntry{
		valid:    true,
		vpn:      vpn,
		ppn:      paddr >> pageShift,
		flags:    flags,
		pageSize: size,
		asid:     asid,
	}
	return paddr, nil
}

// walk performs the three-level Sv39 page table walk, setting the A and
// D bits on the leaf PTE as a side effect of a successful translation.
func (m *MMU) walk(vaddr uint64, access AccessType, priv emu.PrivLevel) (uint64, uint64, uint64, *emu.Trap) {
	m.stats.Walks++

	// Sv39 addresses must be sign-extended from bit 38.
	if top := int64(vaddr) >> 38; top != 0 && top != -1 {
		return 0, 0, 0, pageFault(access, vaddr)
	}

	tableAddr := (m.csr.Satp & ppnMask) << pageShift

	for level := levels - 1; level >= 0; level-- {
		idx := (vaddr >> (pageShift + level*vpnBits)) & 0x1ff
		pteAddr := tableAddr + idx*8

		pte, ok := m.bus.Read(pteAddr, 8)
		if !ok {
			return 0, 0, 0, pageFault(access, vaddr)
		}

		if pte&pteV == 0 || (pte&pteR == 0 && pte&pteW != 0) {
			return 0, 0, 0, pageFault(access, vaddr)
		}

		if pte&(pteR|pteX) == 0 {
			// Pointer to the next level.
			tableAddr = (pte >> 10 & ppnMask) << pageShift
			continue
		}

		// Leaf. Superpages must be aligned to their size.
		if level > 0 {
			mask := uint64(1)<<(level*vpnBits) - 1
			if pte>>10&mask != 0 {
				return 0, 0, 0, pageFault(access, vaddr)
			}
		}

		if t := m.checkPerms(pte, access, priv, vaddr); t != nil {
			return 0, 0, 0, t
		}

		// Set A, and D on stores, writing the PTE back.
		newPTE := pte | pteA
		if access == AccessStore {
			newPTE |= pteD
		}
		if newPTE != pte {
			if !m.bus.Write(pteAddr, 8, newPTE) {
				return 0, 0, 0, pageFault(access, vaddr)
			}
			pte = newPTE
		}

		size := uint64(pageSize) << (level * vpnBits)
		ppn := pte >> 10 & ppnMask
		if level > 0 {
			mask := uint64(1)<<(level*vpnBits) - 1
			ppn = ppn&^mask | vaddr>>pageShift&mask
		}
		return ppn<<pageShift | vaddr&(size-1), pte, size, nil
	}

	return 0, 0, 0, pageFault(access, vaddr)
}

// checkPerms validates the PTE permission bits against the access type
// and privilege, honoring mstatus.SUM and mstatus.MXR.
func (m *MMU) checkPerms(pte uint64, access AccessType, priv emu.PrivLevel, vaddr uint64) *emu.Trap {
	if priv == emu.PrivUser {
		if pte&pteU == 0 {
			return pageFault(access, vaddr)
		}
	} else if pte&pteU != 0 {
		// Supervisor access to a user page requires SUM, and is never
		// allowed for execution.
		if access == AccessFetch || m.csr.Mstatus&emu.MstatusSUM == 0 {
			return pageFault(access, vaddr)
		}
	}

	switch access {
	case AccessLoad:
		if pte&pteR == 0 {
			if m.csr.Mstatus&emu.MstatusMXR != 0 && pte&pteX != 0 {
				return nil
			}
			return pageFault(access, vaddr)
		}
	case AccessStore:
		if pte&pteW == 0 {
			return pageFault(access, vaddr)
		}
	case AccessFetch:
		if pte&pteX == 0 {
			return pageFault(access, vaddr)
		}
	}
	return nil
}

func pageFault(access AccessType, vaddr uint64) *emu.Trap {
	switch access {
	case AccessStore:
		return emu.NewTrap(emu.CauseStorePageFault, vaddr)
	case AccessFetch:
		return emu.NewTrap(emu.CauseFetchPageFault, vaddr)
	default:
		return emu.NewTrap(emu.CauseLoadPageFault, vaddr)
	}
}
