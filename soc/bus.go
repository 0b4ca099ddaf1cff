// Package soc provides the physical memory system: the bus interconnect
// and the memory-mapped devices behind it.
package soc

import (
	"fmt"
	"sort"
)

// Device is a memory-mapped peripheral. Offsets are relative to the
// device's base address. Accesses a device cannot service report !ok
// and surface to the guest as access faults.
type Device interface {
	Name() string
	Size() uint64
	Read(offset uint64, size int) (uint64, bool)
	Write(offset uint64, size int, value uint64) bool
}

// ticker is implemented by devices that advance with simulated time.
type ticker interface {
	Tick()
}

type region struct {
	base uint64
	dev  Device
}

// Bus routes physical addresses to devices. Regions must not overlap;
// accesses outside every region fail, which the core turns into access
// faults.
type Bus struct {
	regions []region

	// ramIdx caches the RAM region, which takes nearly all traffic.
	ramIdx int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{ramIdx: -1}
}

// Map registers a device at the given base address.
func (b *Bus) Map(base uint64, dev Device) {
	b.regions = append(b.regions, region{base: base, dev: dev})
	sort.Slice(b.regions, func(i, j int) bool {
		return b.regions[i].base < b.regions[j].base
	})
	b.ramIdx = -1
	for i, r := range b.regions {
		if _, ok := r.dev.(*Memory); ok {
			b.ramIdx = i
		}
	}
}

// find locates the device covering paddr.
func (b *Bus) find(paddr uint64) (Device, uint64, bool) {
	if b.ramIdx >= 0 {
		r := b.regions[b.ramIdx]
		if paddr >= r.base && paddr-r.base < r.dev.Size() {
			return r.dev, paddr - r.base, true
		}
	}
	for _, r := range b.regions {
		if paddr >= r.base && paddr-r.base < r.dev.Size() {
			return r.dev, paddr - r.base, true
		}
	}
	return nil, 0, false
}

// IsMapped reports whether paddr falls inside a device region.
func (b *Bus) IsMapped(paddr uint64) bool {
	_, _, ok := b.find(paddr)
	return ok
}

// IsRAM reports whether paddr falls inside the RAM region. RAM accesses
// go through the caches; device accesses bypass them.
func (b *Bus) IsRAM(paddr uint64) bool {
	dev, _, ok := b.find(paddr)
	if !ok {
		return false
	}
	_, isRAM := dev.(*Memory)
	return isRAM
}

// Read performs a little-endian read of size bytes (1, 2, 4, or 8).
func (b *Bus) Read(paddr uint64, size int) (uint64, bool) {
	dev, offset, ok := b.find(paddr)
	if !ok {
		return 0, false
	}
	return dev.Read(offset, size)
}

// Write performs a little-endian write of size bytes (1, 2, 4, or 8).
func (b *Bus) Write(paddr uint64, size int, value uint64) bool {
	dev, offset, ok := b.find(paddr)
	if !ok {
		return false
	}
	return dev.Write(offset, size, value)
}

// ReadBytes fills p from consecutive physical addresses. Used by the
// caches for line refills.
func (b *Bus) ReadBytes(paddr uint64, p []byte) bool {
	if dev, offset, ok := b.find(paddr); ok {
		if mem, isRAM := dev.(*Memory); isRAM {
			return mem.ReadBytes(offset, p)
		}
	}
	for i := range p {
		v, ok := b.Read(paddr+uint64(i), 1)
		if !ok {
			return false
		}
		p[i] = byte(v)
	}
	return true
}

// WriteBytes stores p at consecutive physical addresses. Used by the
// caches for dirty-line writebacks.
func (b *Bus) WriteBytes(paddr uint64, p []byte) bool {
	if dev, offset, ok := b.find(paddr); ok {
		if mem, isRAM := dev.(*Memory); isRAM {
			return mem.WriteBytes(offset, p)
		}
	}
	for i, v := range p {
		if !b.Write(paddr+uint64(i), 1, uint64(v)) {
			return false
		}
	}
	return true
}

// LoadBytes writes a binary blob directly into the backing device,
// bypassing latency modeling. Used by the image loader.
func (b *Bus) LoadBytes(paddr uint64, data []byte) error {
	if !b.WriteBytes(paddr, data) {
		return fmt.Errorf("load of %d bytes at %#x falls outside mapped memory",
			len(data), paddr)
	}
	return nil
}

// Tick advances every time-dependent device by one cycle.
func (b *Bus) Tick() {
	for _, r := range b.regions {
		if t, ok := r.dev.(ticker); ok {
			t.Tick()
		}
	}
}
