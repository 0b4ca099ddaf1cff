package cache

import "github.com/sarchlab/rvsim/soc"

// BusBacking adapts the physical bus as a BackingStore, so cache line
// refills and writebacks become bus traffic.
type BusBacking struct {
	bus *soc.Bus
}

// NewBusBacking creates a BusBacking over bus.
func NewBusBacking(bus *soc.Bus) *BusBacking {
	return &BusBacking{bus: bus}
}

// Read fetches a line from the bus. Unmapped bytes read as zero; the
// core faults unmapped accesses before they reach the cache.
func (b *BusBacking) Read(addr uint64, size int) []byte {
	data := make([]byte, size)
	_ = b.bus.ReadBytes(addr, data)
	return data
}

// Write stores a line through the bus.
func (b *BusBacking) Write(addr uint64, data []byte) {
	_ = b.bus.WriteBytes(addr, data)
}
