package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
)

var _ = Describe("RegFile", func() {
	var rf *emu.RegFile

	BeforeEach(func() {
		rf = &emu.RegFile{}
	})

	It("should read back written values", func() {
		rf.Write(5, 0xdeadbeef)
		Expect(rf.Read(5)).To(Equal(uint64(0xdeadbeef)))
	})

	It("should keep x0 hardwired to zero for any written value", func() {
		for _, v := range []uint64{1, 0xffffffffffffffff, 0x8000000000000000, 42} {
			rf.Write(0, v)
			Expect(rf.Read(0)).To(Equal(uint64(0)))
		}
		// A sweep of single-bit patterns.
		for i := 0; i < 64; i++ {
			rf.Write(0, uint64(1)<<i)
			Expect(rf.Read(0)).To(Equal(uint64(0)))
		}
	})

	It("should keep registers independent", func() {
		for i := uint8(1); i < 32; i++ {
			rf.Write(i, uint64(i)*3)
		}
		for i := uint8(1); i < 32; i++ {
			Expect(rf.Read(i)).To(Equal(uint64(i) * 3))
		}
	})
})

var _ = Describe("FPRegFile", func() {
	var rf *emu.FPRegFile

	BeforeEach(func() {
		rf = &emu.FPRegFile{}
	})

	It("should have no hardwired zero", func() {
		rf.Write(0, 0x1234)
		Expect(rf.Read(0)).To(Equal(uint64(0x1234)))
	})

	It("should NaN-box singles", func() {
		rf.WriteFloat32(3, 0x3f800000) // 1.0f
		Expect(rf.Read(3)).To(Equal(uint64(0xffffffff_3f800000)))
		Expect(rf.ReadFloat32(3)).To(Equal(uint32(0x3f800000)))
	})

	It("should read improperly boxed values as the canonical NaN", func() {
		rf.Write(4, 0x3f800000) // upper half not all ones
		Expect(rf.ReadFloat32(4)).To(Equal(uint32(0x7fc00000)))
	})
})
