package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvsim/insts"
)

var _ = Describe("Encoder", func() {
	decoder := insts.NewDecoder()

	// A cross-section of legal words across every major format.
	words := []uint32{
		0x02A10093, // addi x1, x2, 42
		0xFFF10093, // addi x1, x2, -1
		0x123452B7, // lui x5, 0x12345
		0x00000297, // auipc x5, 0
		0x00311093, // slli x1, x2, 3
		0x40315093, // srai x1, x2, 3
		0x0011009B, // addiw x1, x2, 1
		0x002081B3, // add x3, x1, x2
		0x402081B3, // sub x3, x1, x2
		0x027302B3, // mul x5, x6, x7
		0x00852283, // lw x5, 8(x10)
		0x0063B823, // sd x6, 16(x7)
		0x00208463, // beq x1, x2, +8
		0xFE208EE3, // beq x1, x2, -4
		0x010000EF, // jal x1, +16
		0x00008067, // jalr x0, 0(x1)
		0x00000073, // ecall
		0x00100073, // ebreak
		0x30200073, // mret
		0x10200073, // sret
		0x10500073, // wfi
		0x340312F3, // csrrw x5, mscratch, x6
		0x3404D073, // csrrwi x0, mscratch, 9
		0x100522AF, // lr.w x5, (x10)
		0x0055A52F, // amoadd.w a0, t0, (a1)
		0x023100D3, // fadd.d f1, f2, f3
		0x00053087, // fld f1, 0(x10)
		0x022080C3, // fmadd.d f1, f1, f2, f0
	}

	It("should reproduce every word: Encode(Decode(w)) == w", func() {
		for _, w := range words {
			inst := decoder.Decode(w)
			Expect(inst.Class).NotTo(Equal(insts.ClassIllegal),
				"word %#08x decoded as illegal", w)
			Expect(insts.Encode(inst)).To(Equal(w),
				"round trip failed for %#08x", w)
		}
	})

	It("should encode compressed instructions to their 32-bit alias", func() {
		inst := decoder.Decode(0x4515) // c.li a0, 5
		word := insts.Encode(inst)

		again := decoder.Decode(word)
		Expect(again.Op).To(Equal(insts.OpADDI))
		Expect(again.Rd).To(Equal(uint8(10)))
		Expect(again.Imm).To(Equal(int64(5)))
	})
})
