package arch

import "encoding/binary"

// ARM64 relocation types (psABI), matching the subset flapc's
// elf_complete.go:patchARM64PLTCalls already recognized (BL, opcode
// 0x94000000) plus the GOT/TLS forms the scanner needs.
const (
	R_AARCH64_NONE        = 0
	R_AARCH64_ABS64       = 257
	R_AARCH64_ABS32       = 258
	R_AARCH64_PREL32      = 261
	R_AARCH64_ADR_GOT_PAGE = 311
	R_AARCH64_LD64_GOT_LO12_NC = 312
	R_AARCH64_CALL26      = 283
	R_AARCH64_JUMP26      = 282
	R_AARCH64_TLSGD_ADR_PAGE21 = 512
	R_AARCH64_TLSIE_LD64_GOTTPREL_LO12_NC = 541
	R_AARCH64_TLSLE_MOVW_TPREL_G0 = 547
	R_AARCH64_COPY        = 1024
	R_AARCH64_GLOB_DAT    = 1025
	R_AARCH64_JUMP_SLOT   = 1026
	R_AARCH64_RELATIVE    = 1027
	R_AARCH64_TLS_DTPMOD64 = 1028
	R_AARCH64_TLS_DTPREL64 = 1029
	R_AARCH64_TLS_TPREL64  = 1030
	R_AARCH64_TLSDESC     = 1031
	R_AARCH64_IRELATIVE   = 1032
)

type arm64Target struct{}

func init() {
	Register(EM_ARM64, func() Target { return arm64Target{} })
}

func (arm64Target) Machine() Machine { return EM_ARM64 }
func (arm64Target) Name() string     { return "arm64" }
func (arm64Target) Class() Class     { return Class64 }
func (arm64Target) Endian() Endian   { return LittleEndian }
func (arm64Target) WordSize() int    { return 8 }
func (arm64Target) PageSize() uint64 { return 0x10000 } // 64K granule is common default
func (arm64Target) GOTEntrySize() int { return 8 }

// BL/B use a signed 26-bit word (4-byte) immediate: +/-128MB.
func (arm64Target) BranchReachBits() int { return 28 }

func (arm64Target) PLTHeaderSize() int           { return 32 }
func (arm64Target) PLTEntrySizeAt(index int) int { return 16 }

func (arm64Target) Interp() string {
	return "/lib/ld-linux-aarch64.so.1"
}

func (arm64Target) DynRelocTypes() DynRelocTypes {
	return DynRelocTypes{
		Relative: R_AARCH64_RELATIVE, GlobDat: R_AARCH64_GLOB_DAT, JumpSlot: R_AARCH64_JUMP_SLOT,
		IRelative: R_AARCH64_IRELATIVE, Copy: R_AARCH64_COPY,
		TLSDTPMod: R_AARCH64_TLS_DTPMOD64, TLSDTPOff: R_AARCH64_TLS_DTPREL64, TLSTPOff: R_AARCH64_TLS_TPREL64,
	}
}

func (arm64Target) RelocInfo(relType uint32) (RelocClass, bool) {
	switch relType {
	case R_AARCH64_CALL26, R_AARCH64_JUMP26:
		return ClassPCRelToImportable, true
	case R_AARCH64_ADR_GOT_PAGE, R_AARCH64_LD64_GOT_LO12_NC:
		return ClassGOTRelative, true
	case R_AARCH64_ABS64, R_AARCH64_ABS32, R_AARCH64_PREL32:
		return ClassAbsoluteWord, true
	case R_AARCH64_TLSGD_ADR_PAGE21, R_AARCH64_TLSIE_LD64_GOTTPREL_LO12_NC,
		R_AARCH64_TLSLE_MOVW_TPREL_G0, R_AARCH64_TLSDESC:
		return ClassTLS, true
	case R_AARCH64_NONE:
		return ClassNone, true
	default:
		return ClassNone, false
	}
}

// WritePLTHeader writes the standard ARM64 PLT[0] ADRP/LDR/ADD/BR resolver
// veneer. The instruction-field layout follows the encoding conventions
// flapc's arm64_instructions.go ADD/immediate and BR encoders use (bitfields
// built by shifting register numbers into fixed opcode templates), adapted
// from per-mnemonic helper calls into direct word writes since the PLT
// veneer is fixed and never varies per call site.
func (arm64Target) WritePLTHeader(buf []byte, gotBase, pltBase uint64) {
	_ = buf[31]
	pageGOT := gotBase &^ 0xfff
	pagePLT := pltBase &^ 0xfff
	adrpImm := int64(pageGOT-pagePLT) >> 12

	// stp x16, x30, [sp, #-16]!
	binary.LittleEndian.PutUint32(buf[0:4], 0xa9bf7bf0)
	// adrp x16, GOT page
	binary.LittleEndian.PutUint32(buf[4:8], encodeADRP(16, adrpImm))
	// ldr x17, [x16, #:lo12:GOT+16]
	binary.LittleEndian.PutUint32(buf[8:12], encodeLDRImm(17, 16, uint32((gotBase+16)&0xfff)))
	// add x16, x16, #:lo12:GOT+16
	binary.LittleEndian.PutUint32(buf[12:16], 0x91000000|(uint32((gotBase+16)&0xfff)<<10)|(16<<5)|16)
	// br x17
	binary.LittleEndian.PutUint32(buf[16:20], 0xd61f0220)
	for i := 20; i < 32; i += 4 {
		binary.LittleEndian.PutUint32(buf[i:i+4], 0xd503201f) // nop
	}
}

// WritePLTEntry writes one ARM64 PLT stub: adrp/ldr/br through GOT[n].
func (arm64Target) WritePLTEntry(buf []byte, index int, gotBase, pltBase uint64) {
	_ = buf[15]
	entryAddr := pltBase + uint64(32+index*16)
	gotSlot := gotBase + uint64(24+index*8)
	pageGOT := gotSlot &^ 0xfff
	pageEntry := entryAddr &^ 0xfff
	adrpImm := int64(pageGOT-pageEntry) >> 12

	binary.LittleEndian.PutUint32(buf[0:4], encodeADRP(16, adrpImm))
	binary.LittleEndian.PutUint32(buf[4:8], encodeLDRImm(17, 16, uint32(gotSlot&0xfff)))
	binary.LittleEndian.PutUint32(buf[8:12], 0x91000000|(uint32(gotSlot&0xfff)<<10)|(16<<5)|16)
	binary.LittleEndian.PutUint32(buf[12:16], 0xd61f0220) // br x17
}

// encodeADRP encodes "adrp xd, #(imm<<12)" where imm is a page-count delta.
func encodeADRP(rd uint32, pageImm int64) uint32 {
	immlo := uint32(pageImm) & 3
	immhi := uint32(pageImm>>2) & 0x7ffff
	return 0x90000000 | (immlo << 29) | (immhi << 5) | rd
}

// encodeLDRImm encodes "ldr xt, [xn, #imm]" (unsigned, scaled by 8).
func encodeLDRImm(rt, rn uint32, byteOffset uint32) uint32 {
	scaled := (byteOffset & 0xfff) >> 3
	return 0xf9400000 | (scaled << 10) | (rn << 5) | rt
}

// PatchCALL26 rewrites a BL instruction's immediate to reach target from
// site, returning false if the offset exceeds the signed 26-bit word range
// (spec.md §4.9's thunk insertion then applies instead). The bit layout
// mirrors flapc's elf_complete.go:patchARM64PLTCalls BL encoder exactly.
func PatchCALL26(instr uint32, site, target uint64) (uint32, bool) {
	offset := int64(target) - int64(site)
	if offset%4 != 0 {
		return instr, false
	}
	wordOffset := offset / 4
	if wordOffset < -0x2000000 || wordOffset >= 0x2000000 {
		return instr, false
	}
	imm26 := uint32(wordOffset) & 0x03FFFFFF
	return (instr &^ 0x03FFFFFF) | imm26, true
}
