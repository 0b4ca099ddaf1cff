package mmu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/mmu"
	"github.com/sarchlab/rvsim/soc"
)

// PTE flag bits, as laid out in memory.
const (
	pteV = 1 << 0
	pteR = 1 << 1
	pteW = 1 << 2
	pteX = 1 << 3
	pteU = 1 << 4
	pteA = 1 << 6
	pteD = 1 << 7
)

const (
	ramBase  = uint64(0x8000_0000)
	rootPT   = ramBase + 0x10000
	level1PT = ramBase + 0x11000
	level0PT = ramBase + 0x12000
)

var _ = Describe("MMU", func() {
	var (
		bus *soc.Bus
		csr *emu.CSRFile
		m   *mmu.MMU
	)

	BeforeEach(func() {
		bus = soc.NewBus()
		bus.Map(ramBase, soc.NewMemory(4*1024*1024))
		csr = emu.NewCSRFile()
		m = mmu.New(bus, csr, 32)
	})

	// writePTE stores one page table entry.
	writePTE := func(table uint64, index uint64, ppn uint64, flags uint64) {
		Expect(bus.Write(table+index*8, 8, ppn<<10|flags)).To(BeTrue())
	}

	// mapVAZero wires VA 0 to the given physical page through a
	// three-level walk with the given leaf flags.
	mapVAZero := func(pa uint64, flags uint64) {
		writePTE(rootPT, 0, level1PT>>12, pteV)
		writePTE(level1PT, 0, level0PT>>12, pteV)
		writePTE(level0PT, 0, pa>>12, flags|pteV)
	}

	enableSv39 := func() {
		csr.Satp = uint64(8)<<60 | rootPT>>12
		csr.Priv = emu.PrivSupervisor
	}

	It("should pass addresses through in bare mode", func() {
		pa, trap := m.Translate(0x1234, mmu.AccessLoad)
		Expect(trap).To(BeNil())
		Expect(pa).To(Equal(uint64(0x1234)))
	})

	It("should pass addresses through in machine mode even with Sv39 on", func() {
		csr.Satp = uint64(8)<<60 | rootPT>>12
		csr.Priv = emu.PrivMachine
		pa, trap := m.Translate(0x1234, mmu.AccessLoad)
		Expect(trap).To(BeNil())
		Expect(pa).To(Equal(uint64(0x1234)))
	})

	It("should translate through a three-level walk", func() {
		mapVAZero(ramBase, pteR|pteW|pteA|pteD)
		enableSv39()

		pa, trap := m.Translate(0x10, mmu.AccessLoad)
		Expect(trap).To(BeNil())
		Expect(pa).To(Equal(ramBase + 0x10))
	})

	It("should fault on a store to a read-only page", func() {
		mapVAZero(ramBase, pteR|pteA|pteD)
		enableSv39()

		_, trap := m.Translate(0x0, mmu.AccessStore)
		Expect(trap).NotTo(BeNil())
		Expect(trap.Cause).To(Equal(uint64(emu.CauseStorePageFault)))
		Expect(trap.Tval).To(Equal(uint64(0x0)))
	})

	It("should fault on an invalid PTE", func() {
		enableSv39()

		_, trap := m.Translate(0x0, mmu.AccessLoad)
		Expect(trap).NotTo(BeNil())
		Expect(trap.Cause).To(Equal(uint64(emu.CauseLoadPageFault)))
	})

	It("should fault on a non-canonical address", func() {
		mapVAZero(ramBase, pteR|pteA)
		enableSv39()

		_, trap := m.Translate(uint64(1)<<40, mmu.AccessLoad)
		Expect(trap).NotTo(BeNil())
	})

	It("should fault fetches with the fetch cause", func() {
		mapVAZero(ramBase, pteR|pteA)
		enableSv39()

		_, trap := m.Translate(0x0, mmu.AccessFetch)
		Expect(trap).NotTo(BeNil())
		Expect(trap.Cause).To(Equal(uint64(emu.CauseFetchPageFault)))
	})

	Describe("user pages", func() {
		BeforeEach(func() {
			mapVAZero(ramBase, pteR|pteW|pteU|pteA|pteD)
			enableSv39()
		})

		It("should refuse supervisor access without SUM", func() {
			_, trap := m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).NotTo(BeNil())
		})

		It("should allow supervisor access with SUM", func() {
			csr.Mstatus |= emu.MstatusSUM
			_, trap := m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).To(BeNil())
		})

		It("should allow user access", func() {
			csr.Priv = emu.PrivUser
			_, trap := m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).To(BeNil())
		})
	})

	It("should refuse user access to supervisor pages", func() {
		mapVAZero(ramBase, pteR|pteA)
		enableSv39()
		csr.Priv = emu.PrivUser

		_, trap := m.Translate(0x0, mmu.AccessLoad)
		Expect(trap).NotTo(BeNil())
	})

	It("should allow loads from execute-only pages under MXR", func() {
		mapVAZero(ramBase, pteX|pteA)
		enableSv39()

		_, trap := m.Translate(0x0, mmu.AccessLoad)
		Expect(trap).NotTo(BeNil())

		m.FlushTLB()
		csr.Mstatus |= emu.MstatusMXR
		_, trap = m.Translate(0x0, mmu.AccessLoad)
		Expect(trap).To(BeNil())
	})

	It("should map 1 GiB superpages", func() {
		// Identity-map the RAM gigapage: VPN2 of 0x8000_0000 is 2.
		writePTE(rootPT, 2, 0x80000, pteR|pteW|pteX|pteA|pteD|pteV)
		enableSv39()

		pa, trap := m.Translate(ramBase+0x1234, mmu.AccessLoad)
		Expect(trap).To(BeNil())
		Expect(pa).To(Equal(ramBase + 0x1234))
	})

	It("should fault on a misaligned superpage", func() {
		writePTE(rootPT, 2, 0x80001, pteR|pteA|pteV)
		enableSv39()

		_, trap := m.Translate(ramBase, mmu.AccessLoad)
		Expect(trap).NotTo(BeNil())
	})

	It("should set the A and D bits on the leaf PTE", func() {
		mapVAZero(ramBase, pteR|pteW)
		enableSv39()

		_, trap := m.Translate(0x0, mmu.AccessLoad)
		Expect(trap).To(BeNil())
		pte, _ := bus.Read(level0PT, 8)
		Expect(pte & pteA).NotTo(BeZero())
		Expect(pte & pteD).To(BeZero())

		_, trap = m.Translate(0x0, mmu.AccessStore)
		Expect(trap).To(BeNil())
		pte, _ = bus.Read(level0PT, 8)
		Expect(pte & pteD).NotTo(BeZero())
	})

	Describe("TLB", func() {
		It("should cache translations until flushed", func() {
			mapVAZero(ramBase, pteR|pteA|pteD)
			enableSv39()

			_, trap := m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).To(BeNil())

			// Invalidate the mapping in memory; the TLB still serves it.
			Expect(bus.Write(level0PT, 8, 0)).To(BeTrue())
			_, trap = m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).To(BeNil())

			m.FlushTLB()
			_, trap = m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).NotTo(BeNil())
		})

		It("should flush on satp writes", func() {
			mapVAZero(ramBase, pteR|pteA|pteD)
			enableSv39()

			_, trap := m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).To(BeNil())
			Expect(bus.Write(level0PT, 8, 0)).To(BeTrue())

			Expect(csr.Write(emu.CSRSatp, csr.Satp)).To(BeNil())
			_, trap = m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).NotTo(BeNil())
		})

		It("should flush single pages", func() {
			mapVAZero(ramBase, pteR|pteA|pteD)
			enableSv39()

			_, _ = m.Translate(0x0, mmu.AccessLoad)
			Expect(bus.Write(level0PT, 8, 0)).To(BeTrue())

			m.FlushPage(0x1000) // different page: entry survives
			_, trap := m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).To(BeNil())

			m.FlushPage(0x0)
			_, trap = m.Translate(0x0, mmu.AccessLoad)
			Expect(trap).NotTo(BeNil())
		})

		It("should count hits and misses", func() {
			mapVAZero(ramBase, pteR|pteA|pteD)
			enableSv39()

			_, _ = m.Translate(0x0, mmu.AccessLoad)
			_, _ = m.Translate(0x0, mmu.AccessLoad)
			stats := m.Stats()
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(1)))
		})
	})
})
