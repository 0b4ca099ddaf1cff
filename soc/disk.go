package soc

import "encoding/binary"

// Disk maps a raw image file linearly into physical address space.
// Only 64-bit aligned, 64-bit wide accesses are accepted; anything else
// surfaces as an access fault. The device never owns a file descriptor:
// the host supplies the image bytes and a flush hook for persistence.
type Disk struct {
	data     []byte
	modified bool

	// FlushFunc persists the image when set. Invoked by Flush.
	FlushFunc func(data []byte) error
}

// NewDisk creates a disk over the given image bytes.
func NewDisk(image []byte) *Disk {
	return &Disk{data: image}
}

// Name implements Device.
func (d *Disk) Name() string { return "DISK" }

// Size implements Device.
func (d *Disk) Size() uint64 { return uint64(len(d.data)) }

// Modified reports whether the guest has written to the image.
func (d *Disk) Modified() bool { return d.modified }

// Bytes returns the backing image.
func (d *Disk) Bytes() []byte { return d.data }

// Read implements Device.
func (d *Disk) Read(offset uint64, size int) (uint64, bool) {
	if size != 8 || offset%8 != 0 || offset+8 > uint64(len(d.data)) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(d.data[offset:]), true
}

// Write implements Device.
func (d *Disk) Write(offset uint64, size int, value uint64) bool {
	if size != 8 || offset%8 != 0 || offset+8 > uint64(len(d.data)) {
		return false
	}
	binary.LittleEndian.PutUint64(d.data[offset:], value)
	d.modified = true
	return true
}

// Flush invokes the persistence hook if the image changed.
func (d *Disk) Flush() error {
	if d.FlushFunc == nil || !d.modified {
		return nil
	}
	if err := d.FlushFunc(d.data); err != nil {
		return err
	}
	d.modified = false
	return nil
}
