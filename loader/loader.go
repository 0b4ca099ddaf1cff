// Package loader places boot images into guest memory and applies the
// RISC-V boot register convention.
package loader

import (
	"fmt"
	"os"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/timing/core"
)

// BootImages names the artifacts to load.
type BootImages struct {
	// KernelPath is the raw kernel binary (an OpenSBI-prefixed Linux
	// image behaves as a plain raw image).
	KernelPath string

	// KernelAddr is where the kernel is placed; execution starts at
	// the core's reset PC.
	KernelAddr uint64

	// DTBPath optionally names a flattened device tree.
	DTBPath string

	// DTBAddr is where the DTB is placed when given.
	DTBAddr uint64
}

// Load reads the images from disk, writes them into the core's memory,
// and sets the boot registers: a0 = hart id (0), a1 = DTB address when
// a DTB is supplied.
func Load(c *core.Core, images BootImages) error {
	kernel, err := os.ReadFile(images.KernelPath)
	if err != nil {
		return fmt.Errorf("reading kernel: %w", err)
	}
	if err := c.LoadImage(images.KernelAddr, kernel); err != nil {
		return fmt.Errorf("loading kernel: %w", err)
	}

	c.RegFile.Write(emu.RegA0, 0) // hart id

	if images.DTBPath != "" {
		dtb, err := os.ReadFile(images.DTBPath)
		if err != nil {
			return fmt.Errorf("reading dtb: %w", err)
		}
		if err := c.LoadImage(images.DTBAddr, dtb); err != nil {
			return fmt.Errorf("loading dtb: %w", err)
		}
		c.RegFile.Write(emu.RegA1, images.DTBAddr)
	}

	return nil
}

// ReadDiskImage reads a raw disk image, padding it to a 64-bit
// multiple so every mapped doubleword is backed.
func ReadDiskImage(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading disk image: %w", err)
	}
	if rem := len(data) % 8; rem != 0 {
		data = append(data, make([]byte, 8-rem)...)
	}
	return data, nil
}
