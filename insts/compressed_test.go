package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("Compressed Decoding", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	// C.ADDI s0, 1 -> 0x0405
	It("should expand C.ADDI", func() {
		inst := decoder.Decode(0x0405)

		Expect(inst.Op).To(Equal(insts.OpADDI))
		Expect(inst.Rd).To(Equal(uint8(8)))
		Expect(inst.Rs1).To(Equal(uint8(8)))
		Expect(inst.Imm).To(Equal(int64(1)))
		Expect(inst.Compressed).To(BeTrue())
		Expect(inst.Size()).To(Equal(uint64(2)))
		Expect(inst.Raw).To(Equal(uint32(0x0405)))
	})

	// C.LI a0, 5 -> 0x4515
	It("should expand C.LI to ADDI from x0", func() {
		inst := decoder.Decode(0x4515)

		Expect(inst.Op).To(Equal(insts.OpADDI))
		Expect(inst.Rd).To(Equal(uint8(10)))
		Expect(inst.Rs1).To(Equal(uint8(0)))
		Expect(inst.Imm).To(Equal(int64(5)))
	})

	// C.MV a0, a1 -> 0x852E
	It("should expand C.MV to ADD from x0", func() {
		inst := decoder.Decode(0x852E)

		Expect(inst.Op).To(Equal(insts.OpADD))
		Expect(inst.Rd).To(Equal(uint8(10)))
		Expect(inst.Rs1).To(Equal(uint8(0)))
		Expect(inst.Rs2).To(Equal(uint8(11)))
	})

	// C.ADD a0, a1 -> 0x952E
	It("should expand C.ADD", func() {
		inst := decoder.Decode(0x952E)

		Expect(inst.Op).To(Equal(insts.OpADD))
		Expect(inst.Rd).To(Equal(uint8(10)))
		Expect(inst.Rs1).To(Equal(uint8(10)))
		Expect(inst.Rs2).To(Equal(uint8(11)))
	})

	// C.LW a2, 0(a0) -> 0x4110
	It("should expand C.LW", func() {
		inst := decoder.Decode(0x4110)

		Expect(inst.Op).To(Equal(insts.OpLW))
		Expect(inst.Rd).To(Equal(uint8(12)))
		Expect(inst.Rs1).To(Equal(uint8(10)))
		Expect(inst.Imm).To(Equal(int64(0)))
	})

	// C.J .+0 -> 0xA001
	It("should expand C.J to JAL x0", func() {
		inst := decoder.Decode(0xA001)

		Expect(inst.Class).To(Equal(insts.ClassJAL))
		Expect(inst.Rd).To(Equal(uint8(0)))
		Expect(inst.Imm).To(Equal(int64(0)))
		Expect(inst.Compressed).To(BeTrue())
	})

	// C.EBREAK -> 0x9002
	It("should expand C.EBREAK", func() {
		inst := decoder.Decode(0x9002)
		Expect(inst.Op).To(Equal(insts.OpEBREAK))
	})

	// C.JR ra -> 0x8082 (ret)
	It("should expand C.JR to JALR x0", func() {
		inst := decoder.Decode(0x8082)

		Expect(inst.Class).To(Equal(insts.ClassJALR))
		Expect(inst.Rd).To(Equal(uint8(0)))
		Expect(inst.Rs1).To(Equal(uint8(1)))
	})

	It("should treat the all-zero halfword as illegal", func() {
		inst := decoder.Decode(0x0000)

		Expect(inst.Class).To(Equal(insts.ClassIllegal))
	})

	// C.ADDI4SPN with a zero immediate is reserved.
	It("should treat reserved encodings as illegal", func() {
		inst := decoder.Decode(0x0004)
		Expect(inst.Class).To(Equal(insts.ClassIllegal))
	})
})
