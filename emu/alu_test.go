package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/emu"
	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("ALU", func() {
	var alu *emu.ALU

	BeforeEach(func() {
		alu = emu.NewALU()
	})

	It("should add and subtract with wraparound", func() {
		Expect(alu.Execute(insts.OpADD, 2, 3)).To(Equal(uint64(5)))
		Expect(alu.Execute(insts.OpSUB, 2, 3)).To(Equal(^uint64(0)))
		Expect(alu.Execute(insts.OpADD, ^uint64(0), 1)).To(Equal(uint64(0)))
	})

	It("should mask shift amounts to 6 bits", func() {
		Expect(alu.Execute(insts.OpSLL, 1, 64)).To(Equal(uint64(1)))
		Expect(alu.Execute(insts.OpSLL, 1, 65)).To(Equal(uint64(2)))
		Expect(alu.Execute(insts.OpSRL, 0x8000000000000000, 63)).To(Equal(uint64(1)))
	})

	It("should mask W shift amounts to 5 bits", func() {
		Expect(alu.Execute(insts.OpSLLW, 1, 32)).To(Equal(uint64(1)))
		Expect(alu.Execute(insts.OpSRAW, 0x80000000, 31)).To(Equal(^uint64(0)))
	})

	It("should sign-extend W results", func() {
		Expect(alu.Execute(insts.OpADDW, 0x7fffffff, 1)).
			To(Equal(uint64(0xffffffff80000000)))
	})

	It("should compare signed and unsigned", func() {
		Expect(alu.Execute(insts.OpSLT, ^uint64(0), 0)).To(Equal(uint64(1)))
		Expect(alu.Execute(insts.OpSLTU, ^uint64(0), 0)).To(Equal(uint64(0)))
	})

	Describe("division", func() {
		It("should return all-ones for division by zero", func() {
			Expect(alu.Execute(insts.OpDIV, 42, 0)).To(Equal(^uint64(0)))
			Expect(alu.Execute(insts.OpDIVU, 42, 0)).To(Equal(^uint64(0)))
		})

		It("should return the dividend for remainder by zero", func() {
			Expect(alu.Execute(insts.OpREM, 42, 0)).To(Equal(uint64(42)))
			Expect(alu.Execute(insts.OpREMU, 42, 0)).To(Equal(uint64(42)))
		})

		It("should wrap INT_MIN / -1 without an exception", func() {
			intMin := uint64(1) << 63
			Expect(alu.Execute(insts.OpDIV, intMin, ^uint64(0))).To(Equal(intMin))
			Expect(alu.Execute(insts.OpREM, intMin, ^uint64(0))).To(Equal(uint64(0)))
		})

		It("should handle the 32-bit overflow case", func() {
			intMin32 := uint64(0xffffffff80000000)
			Expect(alu.Execute(insts.OpDIVW, 0x80000000, 0xffffffff)).To(Equal(intMin32))
			Expect(alu.Execute(insts.OpREMW, 0x80000000, 0xffffffff)).To(Equal(uint64(0)))
		})
	})

	Describe("high multiplies", func() {
		It("should compute MULHU", func() {
			Expect(alu.Execute(insts.OpMULHU, ^uint64(0), ^uint64(0))).
				To(Equal(^uint64(0) - 1))
		})

		It("should compute MULH for negative operands", func() {
			// -1 * -1 = 1, high word 0.
			Expect(alu.Execute(insts.OpMULH, ^uint64(0), ^uint64(0))).
				To(Equal(uint64(0)))
			// -1 * 2 = -2, high word all ones.
			Expect(alu.Execute(insts.OpMULH, ^uint64(0), 2)).
				To(Equal(^uint64(0)))
		})

		It("should compute MULHSU", func() {
			// -1 (signed) * 2 (unsigned) = -2 -> high word all ones.
			Expect(alu.Execute(insts.OpMULHSU, ^uint64(0), 2)).
				To(Equal(^uint64(0)))
		})
	})

	Describe("branches", func() {
		It("should evaluate signed and unsigned comparisons", func() {
			Expect(alu.BranchTaken(insts.OpBEQ, 5, 5)).To(BeTrue())
			Expect(alu.BranchTaken(insts.OpBNE, 5, 5)).To(BeFalse())
			Expect(alu.BranchTaken(insts.OpBLT, ^uint64(0), 0)).To(BeTrue())
			Expect(alu.BranchTaken(insts.OpBLTU, ^uint64(0), 0)).To(BeFalse())
			Expect(alu.BranchTaken(insts.OpBGE, 0, ^uint64(0))).To(BeTrue())
			Expect(alu.BranchTaken(insts.OpBGEU, 0, ^uint64(0))).To(BeFalse())
		})
	})

	Describe("AMO compute", func() {
		It("should apply arithmetic and logical operations", func() {
			Expect(alu.AMOCompute(insts.OpAMOADD, 0x100, 0x23, 8)).To(Equal(uint64(0x123)))
			Expect(alu.AMOCompute(insts.OpAMOSWAP, 1, 2, 8)).To(Equal(uint64(2)))
			Expect(alu.AMOCompute(insts.OpAMOAND, 0xf0, 0x3c, 8)).To(Equal(uint64(0x30)))
			Expect(alu.AMOCompute(insts.OpAMOOR, 0xf0, 0x0f, 8)).To(Equal(uint64(0xff)))
			Expect(alu.AMOCompute(insts.OpAMOXOR, 0xff, 0x0f, 8)).To(Equal(uint64(0xf0)))
		})

		It("should order min/max by signedness", func() {
			neg := ^uint64(0) // -1
			Expect(alu.AMOCompute(insts.OpAMOMIN, neg, 1, 8)).To(Equal(neg))
			Expect(alu.AMOCompute(insts.OpAMOMAX, neg, 1, 8)).To(Equal(uint64(1)))
			Expect(alu.AMOCompute(insts.OpAMOMINU, neg, 1, 8)).To(Equal(uint64(1)))
			Expect(alu.AMOCompute(insts.OpAMOMAXU, neg, 1, 8)).To(Equal(neg))
		})

		It("should sign-extend 32-bit operands", func() {
			// amomin.w between 0xffffffff (-1) and 1 picks -1.
			Expect(alu.AMOCompute(insts.OpAMOMIN, 0xffffffff, 1, 4)).
				To(Equal(^uint64(0)))
		})
	})
})
