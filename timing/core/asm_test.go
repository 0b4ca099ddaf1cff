package core_test

// Instruction encoding helpers for building test kernels in place.

func rType(f7, rs2, rs1, f3, rd, opcode uint32) uint32 {
	return f7<<25 | rs2<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

func iType(imm int32, rs1, f3, rd, opcode uint32) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

func sType(imm int32, rs2, rs1, f3, opcode uint32) uint32 {
	u := uint32(imm)
	return (u>>5&0x7f)<<25 | rs2<<20 | rs1<<15 | f3<<12 | (u&0x1f)<<7 | opcode
}

func bType(imm int32, rs2, rs1, f3 uint32) uint32 {
	u := uint32(imm)
	return (u>>12&0x1)<<31 | (u>>5&0x3f)<<25 | rs2<<20 | rs1<<15 |
		f3<<12 | (u>>1&0xf)<<8 | (u>>11&0x1)<<7 | 0b1100011
}

func jType(imm int32, rd uint32) uint32 {
	u := uint32(imm)
	return (u>>20&0x1)<<31 | (u>>1&0x3ff)<<21 | (u>>11&0x1)<<20 |
		(u>>12&0xff)<<12 | rd<<7 | 0b1101111
}

func addi(rd, rs1 uint32, imm int32) uint32  { return iType(imm, rs1, 0b000, rd, 0b0010011) }
func andi(rd, rs1 uint32, imm int32) uint32  { return iType(imm, rs1, 0b111, rd, 0b0010011) }
func slli(rd, rs1 uint32, shamt int32) uint32 { return iType(shamt, rs1, 0b001, rd, 0b0010011) }
func lui(rd, imm20 uint32) uint32            { return imm20<<12 | rd<<7 | 0b0110111 }
func auipc(rd, imm20 uint32) uint32          { return imm20<<12 | rd<<7 | 0b0010111 }

func add(rd, rs1, rs2 uint32) uint32 { return rType(0, rs2, rs1, 0b000, rd, 0b0110011) }
func sub(rd, rs1, rs2 uint32) uint32 { return rType(0x20, rs2, rs1, 0b000, rd, 0b0110011) }
func mul(rd, rs1, rs2 uint32) uint32 { return rType(0x01, rs2, rs1, 0b000, rd, 0b0110011) }

func lb(rd, rs1 uint32, imm int32) uint32  { return iType(imm, rs1, 0b000, rd, 0b0000011) }
func lbu(rd, rs1 uint32, imm int32) uint32 { return iType(imm, rs1, 0b100, rd, 0b0000011) }
func lw(rd, rs1 uint32, imm int32) uint32  { return iType(imm, rs1, 0b010, rd, 0b0000011) }
func ld(rd, rs1 uint32, imm int32) uint32  { return iType(imm, rs1, 0b011, rd, 0b0000011) }
func sb(rs2, rs1 uint32, imm int32) uint32 { return sType(imm, rs2, rs1, 0b000, 0b0100011) }
func sw(rs2, rs1 uint32, imm int32) uint32 { return sType(imm, rs2, rs1, 0b010, 0b0100011) }
func sd(rs2, rs1 uint32, imm int32) uint32 { return sType(imm, rs2, rs1, 0b011, 0b0100011) }

func beq(rs1, rs2 uint32, imm int32) uint32 { return bType(imm, rs2, rs1, 0b000) }
func bne(rs1, rs2 uint32, imm int32) uint32 { return bType(imm, rs2, rs1, 0b001) }
func blt(rs1, rs2 uint32, imm int32) uint32 { return bType(imm, rs2, rs1, 0b100) }

func jal(rd uint32, imm int32) uint32 { return jType(imm, rd) }
func jalr(rd, rs1 uint32, imm int32) uint32 {
	return iType(imm, rs1, 0b000, rd, 0b1100111)
}

func csrrw(rd, csr, rs1 uint32) uint32 { return iType(int32(csr), rs1, 0b001, rd, 0b1110011) }
func csrrs(rd, csr, rs1 uint32) uint32 { return iType(int32(csr), rs1, 0b010, rd, 0b1110011) }
func csrrc(rd, csr, rs1 uint32) uint32 { return iType(int32(csr), rs1, 0b011, rd, 0b1110011) }
func csrrsi(rd, csr, zimm uint32) uint32 {
	return iType(int32(csr), zimm, 0b110, rd, 0b1110011)
}

func ecall() uint32 { return 0x00000073 }
func mret() uint32  { return 0x30200073 }
func sret() uint32  { return 0x10200073 }
func wfi() uint32   { return 0x10500073 }

func lrw(rd, rs1 uint32) uint32       { return rType(0x02<<2, 0, rs1, 0b010, rd, 0b0101111) }
func scw(rd, rs2, rs1 uint32) uint32  { return rType(0x03<<2, rs2, rs1, 0b010, rd, 0b0101111) }
func amoaddw(rd, rs2, rs1 uint32) uint32 {
	return rType(0x00, rs2, rs1, 0b010, rd, 0b0101111)
}

// Register aliases.
const (
	x0 = 0
	ra = 1
	t0 = 5
	t1 = 6
	t2 = 7
	s0 = 8
	a0 = 10
	a1 = 11
	a2 = 12
	a3 = 13
	t3 = 28
	t4 = 29
	t5 = 30
	t6 = 31
)

// haltWords writes 0x5555 to the SYSCON and parks. Clobbers t5 and t6.
func haltWords() []uint32 {
	return []uint32{
		lui(t6, 0x100),        // t6 = 0x0010_0000
		lui(t5, 0x5),          // t5 = 0x5000
		addi(t5, t5, 0x555),   // t5 = 0x5555
		sw(t5, t6, 0),         // SYSCON halt
		jal(x0, 0),            // park
	}
}
