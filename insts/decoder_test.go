package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("Integer register-immediate", func() {
		// ADDI x1, x2, 42 -> 0x02A10093
		It("should decode ADDI x1, x2, 42", func() {
			inst := decoder.Decode(0x02A10093)

			Expect(inst.Class).To(Equal(insts.ClassALUImm))
			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Imm).To(Equal(int64(42)))
			Expect(inst.Compressed).To(BeFalse())
			Expect(inst.Size()).To(Equal(uint64(4)))
		})

		// ADDI x1, x2, -1 -> imm = 0xFFF
		It("should sign-extend negative immediates", func() {
			inst := decoder.Decode(0xFFF10093)

			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Imm).To(Equal(int64(-1)))
		})

		// LUI x5, 0x12345 -> 0x123452B7
		It("should decode LUI", func() {
			inst := decoder.Decode(0x123452B7)

			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Imm).To(Equal(int64(0x12345000)))
		})

		// SLLI x1, x2, 3 -> 0x00311093
		It("should decode SLLI with a 6-bit shamt", func() {
			inst := decoder.Decode(0x00311093)

			Expect(inst.Op).To(Equal(insts.OpSLLI))
			Expect(inst.Imm).To(Equal(int64(3)))
		})

		// SRAI x1, x2, 3 -> 0x40315093
		It("should decode SRAI", func() {
			inst := decoder.Decode(0x40315093)

			Expect(inst.Op).To(Equal(insts.OpSRAI))
			Expect(inst.Imm).To(Equal(int64(3)))
		})

		// ADDIW x1, x2, 1 -> 0x0011009B
		It("should decode ADDIW", func() {
			inst := decoder.Decode(0x0011009B)

			Expect(inst.Op).To(Equal(insts.OpADDIW))
			Expect(inst.Imm).To(Equal(int64(1)))
		})
	})

	Describe("Integer register-register", func() {
		// ADD x3, x1, x2 -> 0x002081B3
		It("should decode ADD", func() {
			inst := decoder.Decode(0x002081B3)

			Expect(inst.Class).To(Equal(insts.ClassALU))
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Rd).To(Equal(uint8(3)))
			Expect(inst.Rs1).To(Equal(uint8(1)))
			Expect(inst.Rs2).To(Equal(uint8(2)))
		})

		// SUB x3, x1, x2 -> 0x402081B3
		It("should decode SUB", func() {
			inst := decoder.Decode(0x402081B3)
			Expect(inst.Op).To(Equal(insts.OpSUB))
		})

		// MUL x5, x6, x7 -> 0x027302B3
		It("should decode MUL", func() {
			inst := decoder.Decode(0x027302B3)
			Expect(inst.Op).To(Equal(insts.OpMUL))
		})
	})

	Describe("Loads and stores", func() {
		// LW x5, 8(x10) -> 0x00852283
		It("should decode LW", func() {
			inst := decoder.Decode(0x00852283)

			Expect(inst.Class).To(Equal(insts.ClassLoad))
			Expect(inst.Op).To(Equal(insts.OpLW))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Rs1).To(Equal(uint8(10)))
			Expect(inst.Imm).To(Equal(int64(8)))
			Expect(inst.Width).To(Equal(uint8(4)))
		})

		// SD x6, 16(x7) -> 0x0063B823
		It("should decode SD", func() {
			inst := decoder.Decode(0x0063B823)

			Expect(inst.Class).To(Equal(insts.ClassStore))
			Expect(inst.Op).To(Equal(insts.OpSD))
			Expect(inst.Rs1).To(Equal(uint8(7)))
			Expect(inst.Rs2).To(Equal(uint8(6)))
			Expect(inst.Imm).To(Equal(int64(16)))
			Expect(inst.Width).To(Equal(uint8(8)))
		})
	})

	Describe("Control flow", func() {
		// BEQ x1, x2, +8 -> 0x00208463
		It("should decode BEQ", func() {
			inst := decoder.Decode(0x00208463)

			Expect(inst.Class).To(Equal(insts.ClassBranch))
			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.Imm).To(Equal(int64(8)))
			Expect(inst.IsBranch()).To(BeTrue())
		})

		// JAL x1, +16 -> 0x010000EF
		It("should decode JAL", func() {
			inst := decoder.Decode(0x010000EF)

			Expect(inst.Class).To(Equal(insts.ClassJAL))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(int64(16)))
		})

		// JALR x0, 0(x1) -> 0x00008067 (ret)
		It("should decode JALR", func() {
			inst := decoder.Decode(0x00008067)

			Expect(inst.Class).To(Equal(insts.ClassJALR))
			Expect(inst.Rd).To(Equal(uint8(0)))
			Expect(inst.Rs1).To(Equal(uint8(1)))
		})
	})

	Describe("System and CSR", func() {
		It("should decode ECALL", func() {
			inst := decoder.Decode(0x00000073)
			Expect(inst.Op).To(Equal(insts.OpECALL))
		})

		It("should decode MRET", func() {
			inst := decoder.Decode(0x30200073)
			Expect(inst.Op).To(Equal(insts.OpMRET))
		})

		It("should decode WFI", func() {
			inst := decoder.Decode(0x10500073)
			Expect(inst.Op).To(Equal(insts.OpWFI))
		})

		// CSRRW x5, mscratch, x6 -> 0x340312F3
		It("should decode CSRRW with the CSR address", func() {
			inst := decoder.Decode(0x340312F3)

			Expect(inst.Class).To(Equal(insts.ClassCSR))
			Expect(inst.Op).To(Equal(insts.OpCSRRW))
			Expect(inst.CSR()).To(Equal(uint16(0x340)))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Rs1).To(Equal(uint8(6)))
		})

		// CSRRWI x0, mscratch, 9 -> imm form keeps the literal in rs1
		It("should decode CSRRWI", func() {
			// 0x340 << 20 | 9 << 15 | 5 << 12 | 0 << 7 | 0x73
			inst := decoder.Decode(0x3404D073)

			Expect(inst.Op).To(Equal(insts.OpCSRRWI))
			Expect(inst.CSRImmediate()).To(BeTrue())
			Expect(inst.Rs1).To(Equal(uint8(9)))
			Expect(inst.ReadsIntRs1()).To(BeFalse())
		})
	})

	Describe("Atomics", func() {
		// LR.W x5, (x10) -> 0x100522AF
		It("should decode LR.W", func() {
			inst := decoder.Decode(0x100522AF)

			Expect(inst.Class).To(Equal(insts.ClassAtomic))
			Expect(inst.Op).To(Equal(insts.OpLR))
			Expect(inst.Width).To(Equal(uint8(4)))
		})

		// AMOADD.W a0, t0, (a1) -> 0x0055A52F
		It("should decode AMOADD.W", func() {
			inst := decoder.Decode(0x0055A52F)

			Expect(inst.Op).To(Equal(insts.OpAMOADD))
			Expect(inst.Rd).To(Equal(uint8(10)))
			Expect(inst.Rs1).To(Equal(uint8(11)))
			Expect(inst.Rs2).To(Equal(uint8(5)))
		})
	})

	Describe("Floating point", func() {
		// FADD.D f1, f2, f3 -> 0x023100D3
		It("should decode FADD.D", func() {
			inst := decoder.Decode(0x023100D3)

			Expect(inst.Class).To(Equal(insts.ClassFP))
			Expect(inst.Op).To(Equal(insts.OpFADD))
			Expect(inst.Width).To(Equal(uint8(8)))
		})

		// FLD f1, 0(x10) -> 0x00053087
		It("should decode FLD", func() {
			inst := decoder.Decode(0x00053087)

			Expect(inst.Class).To(Equal(insts.ClassFPLoad))
			Expect(inst.Op).To(Equal(insts.OpFLD))
			Expect(inst.Width).To(Equal(uint8(8)))
		})
	})

	Describe("Illegal encodings", func() {
		It("should mark an all-ones word illegal", func() {
			inst := decoder.Decode(0xFFFFFFFF)

			Expect(inst.Class).To(Equal(insts.ClassIllegal))
			Expect(inst.Raw).To(Equal(uint32(0xFFFFFFFF)))
		})

		It("should keep the original bits for mtval", func() {
			inst := decoder.Decode(0x0000007F)
			Expect(inst.Class).To(Equal(insts.ClassIllegal))
			Expect(inst.Raw).To(Equal(uint32(0x0000007F)))
		})
	})
})
