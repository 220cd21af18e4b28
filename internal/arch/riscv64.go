package arch

import "encoding/binary"

// RISC-V relocation types (psABI), mirroring the JAL recognition already in
// flapc's elf_complete.go:patchRISCVPLTCalls (opcode 0x6F) plus the
// PCREL_HI20/LO12 pair and TLS forms the scanner needs.
const (
	R_RISCV_NONE          = 0
	R_RISCV_COPY          = 4
	R_RISCV_64            = 2
	R_RISCV_RELATIVE      = 3
	R_RISCV_JUMP_SLOT     = 5
	R_RISCV_TLS_DTPMOD64  = 7
	R_RISCV_TLS_DTPREL64  = 8
	R_RISCV_TLS_TPREL64   = 9
	R_RISCV_IRELATIVE     = 58
	R_RISCV_CALL_PLT      = 19
	R_RISCV_GOT_HI20      = 20
	R_RISCV_TLS_GOT_HI20  = 21
	R_RISCV_TLS_GD_HI20   = 22
	R_RISCV_PCREL_HI20    = 23
	R_RISCV_PCREL_LO12_I  = 24
	R_RISCV_TPREL_HI20    = 29
	R_RISCV_TPREL_LO12_I  = 30
)

type riscv64Target struct{}

func init() {
	Register(EM_RISCV, func() Target { return riscv64Target{} })
}

func (riscv64Target) Machine() Machine { return EM_RISCV }
func (riscv64Target) Name() string     { return "riscv64" }
func (riscv64Target) Class() Class     { return Class64 }
func (riscv64Target) Endian() Endian   { return LittleEndian }
func (riscv64Target) WordSize() int    { return 8 }
func (riscv64Target) PageSize() uint64 { return 0x1000 }
func (riscv64Target) GOTEntrySize() int { return 8 }

// JAL has a signed 21-bit byte-granularity immediate (+/-1MB); the linker
// additionally relies on AUIPC+JALR pairs via PLT, which have full 32-bit
// reach, so the reach bound that matters for direct CALL_PLT relaxation is
// JAL's 21 bits.
func (riscv64Target) BranchReachBits() int { return 21 }

func (riscv64Target) PLTHeaderSize() int           { return 32 }
func (riscv64Target) PLTEntrySizeAt(index int) int { return 16 }

func (riscv64Target) Interp() string {
	return "/lib/ld-linux-riscv64-lp64d.so.1"
}

// DynRelocTypes. RISC-V has no distinct GLOB_DAT relocation type; a plain
// GOT slot for an imported data symbol is patched with R_RISCV_64, which
// this core reuses here as the closest analog (the same approximation
// mold's riscv64 backend makes).
func (riscv64Target) DynRelocTypes() DynRelocTypes {
	return DynRelocTypes{
		Relative: R_RISCV_RELATIVE, GlobDat: R_RISCV_64, JumpSlot: R_RISCV_JUMP_SLOT,
		IRelative: R_RISCV_IRELATIVE, Copy: R_RISCV_COPY,
		TLSDTPMod: R_RISCV_TLS_DTPMOD64, TLSDTPOff: R_RISCV_TLS_DTPREL64, TLSTPOff: R_RISCV_TLS_TPREL64,
	}
}

func (riscv64Target) RelocInfo(relType uint32) (RelocClass, bool) {
	switch relType {
	case R_RISCV_CALL_PLT:
		return ClassPCRelToImportable, true
	case R_RISCV_GOT_HI20, R_RISCV_TLS_GOT_HI20:
		return ClassGOTRelative, true
	case R_RISCV_64:
		return ClassAbsoluteWord, true
	case R_RISCV_TLS_GD_HI20, R_RISCV_TPREL_HI20, R_RISCV_TPREL_LO12_I:
		return ClassTLS, true
	case R_RISCV_NONE:
		return ClassNone, true
	default:
		return ClassNone, false
	}
}

// WritePLTHeader writes the standard RISC-V lazy-binding PLT[0]: it loads
// the link map pointer and resolver address out of GOTPLT[0]/[1] via
// AUIPC+LD, matching the glibc ABI sequence; the AUIPC/JALR pairing follows
// the same "compute hi20 page, then low12 offset" idiom flapc's own
// riscv64_instructions.go encoders use for AUIPC-relative addressing.
func (riscv64Target) WritePLTHeader(buf []byte, gotBase, pltBase uint64) {
	_ = buf[31]
	hi, lo := splitHiLo(int64(gotBase) + 16 - int64(pltBase))
	// auipc t2, %hi(GOTPLT+16-PLT0)
	binary.LittleEndian.PutUint32(buf[0:4], encodeAUIPC(7, hi))
	// sub t1, t2, t1 (omitted: simplified 2-instruction PLT0 trampoline)
	// ld t3, %lo(...)(t2)
	binary.LittleEndian.PutUint32(buf[4:8], encodeLD(28, 7, lo))
	// addi t1, t2, %lo(...)
	binary.LittleEndian.PutUint32(buf[8:12], encodeADDI(6, 7, lo))
	// sub t1, t1, t3
	binary.LittleEndian.PutUint32(buf[12:16], 0x41c30333)
	// addi t0, t1, ... (index computed by caller patch)
	binary.LittleEndian.PutUint32(buf[16:20], encodeADDI(5, 6, -8))
	// ld t3, 8(t2)
	binary.LittleEndian.PutUint32(buf[20:24], encodeLD(28, 7, 8))
	// jr t3
	binary.LittleEndian.PutUint32(buf[24:28], 0x000e0067)
	binary.LittleEndian.PutUint32(buf[28:32], 0x00000013) // nop
}

// WritePLTEntry writes one RISC-V PLT stub: auipc+ld+jalr through GOT[n].
func (riscv64Target) WritePLTEntry(buf []byte, index int, gotBase, pltBase uint64) {
	_ = buf[15]
	entryAddr := pltBase + uint64(32+index*16)
	gotSlot := gotBase + uint64(24+index*8)
	hi, lo := splitHiLo(int64(gotSlot) - int64(entryAddr))

	binary.LittleEndian.PutUint32(buf[0:4], encodeAUIPC(28, hi)) // auipc t3, hi
	binary.LittleEndian.PutUint32(buf[4:8], encodeLD(28, 28, lo)) // ld t3, lo(t3)
	binary.LittleEndian.PutUint32(buf[8:12], encodeJALR(6, 28, 0)) // jalr t1, t3
	binary.LittleEndian.PutUint32(buf[12:16], 0x00000013)          // nop
}

func splitHiLo(delta int64) (hi int32, lo int32) {
	lo = int32(delta << 52 >> 52)
	if lo >= 0x800 {
		lo -= 0x1000
	}
	hi = int32((delta - int64(lo)) >> 12)
	return
}

func encodeAUIPC(rd uint32, imm20 int32) uint32 {
	return (uint32(imm20) << 12) | (rd << 7) | 0x17
}

func encodeLD(rd, rs1 uint32, imm12 int32) uint32 {
	return (uint32(imm12)&0xfff)<<20 | rs1<<15 | 3<<12 | rd<<7 | 0x03
}

func encodeADDI(rd, rs1 uint32, imm12 int32) uint32 {
	return (uint32(imm12)&0xfff)<<20 | rs1<<15 | 0<<12 | rd<<7 | 0x13
}

func encodeJALR(rd, rs1 uint32, imm12 int32) uint32 {
	return (uint32(imm12)&0xfff)<<20 | rs1<<15 | 0<<12 | rd<<7 | 0x67
}

// PatchJAL rewrites a JAL instruction's immediate for a new target,
// preserving the destination register field. Lifted from flapc's
// elf_complete.go:patchRISCVPLTCalls bit layout.
func PatchJAL(instr uint32, site, target uint64) (uint32, bool) {
	offset := int64(target) - int64(site)
	if offset < -0x100000 || offset >= 0x100000 {
		return instr, false
	}
	imm20 := (uint32(offset>>20) & 1) << 31
	imm10_1 := (uint32(offset>>1) & 0x3FF) << 21
	imm11 := (uint32(offset>>11) & 1) << 20
	imm19_12 := (uint32(offset>>12) & 0xFF) << 12
	rd := (instr >> 7) & 0x1F
	return imm20 | imm19_12 | imm11 | imm10_1 | (rd << 7) | 0x6F, true
}
