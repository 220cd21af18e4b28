package arch

import "encoding/binary"

// x86-64 relocation types, from the psABI (and matching flapc's
// R_X86_64_JUMP_SLOT use in plt_got.go/elf_complete.go).
const (
	R_X86_64_NONE       = 0
	R_X86_64_64         = 1
	R_X86_64_PC32       = 2
	R_X86_64_GOT32      = 3
	R_X86_64_PLT32      = 4
	R_X86_64_COPY       = 5
	R_X86_64_GLOB_DAT   = 6
	R_X86_64_JUMP_SLOT  = 7
	R_X86_64_RELATIVE   = 8
	R_X86_64_GOTPCREL   = 9
	R_X86_64_32         = 10
	R_X86_64_32S        = 11
	R_X86_64_16         = 12
	R_X86_64_PC16       = 13
	R_X86_64_8          = 14
	R_X86_64_PC8        = 15
	R_X86_64_DTPMOD64   = 16
	R_X86_64_DTPOFF64   = 17
	R_X86_64_TPOFF64    = 18
	R_X86_64_TLSGD      = 19
	R_X86_64_TLSLD      = 20
	R_X86_64_DTPOFF32   = 21
	R_X86_64_GOTTPOFF   = 22
	R_X86_64_TPOFF32    = 23
	R_X86_64_IRELATIVE  = 37
	R_X86_64_GOTPCRELX  = 41
	R_X86_64_REX_GOTPCRELX = 42
)

type x86_64Target struct{}

func init() {
	Register(EM_X86_64, func() Target { return x86_64Target{} })
}

func (x86_64Target) Machine() Machine { return EM_X86_64 }
func (x86_64Target) Name() string     { return "x86_64" }
func (x86_64Target) Class() Class     { return Class64 }
func (x86_64Target) Endian() Endian   { return LittleEndian }
func (x86_64Target) WordSize() int    { return 8 }
func (x86_64Target) PageSize() uint64 { return 0x1000 }
func (x86_64Target) GOTEntrySize() int { return 8 }
func (x86_64Target) BranchReachBits() int { return 32 } // call/jmp rel32

func (x86_64Target) PLTHeaderSize() int           { return 16 }
func (x86_64Target) PLTEntrySizeAt(index int) int { return 16 }

func (x86_64Target) Interp() string {
	return "/lib64/ld-linux-x86-64.so.2"
}

func (x86_64Target) DynRelocTypes() DynRelocTypes {
	return DynRelocTypes{
		Relative: R_X86_64_RELATIVE, GlobDat: R_X86_64_GLOB_DAT, JumpSlot: R_X86_64_JUMP_SLOT,
		IRelative: R_X86_64_IRELATIVE, Copy: R_X86_64_COPY,
		TLSDTPMod: R_X86_64_DTPMOD64, TLSDTPOff: R_X86_64_DTPOFF64, TLSTPOff: R_X86_64_TPOFF64,
	}
}

// RelocInfo buckets x86-64 relocation types per spec.md §4.6. This is a
// direct generalization of the single-architecture assumption baked into
// flapc's codegen_elf_writer.go (which always wrote R_X86_64_JUMP_SLOT).
func (x86_64Target) RelocInfo(relType uint32) (RelocClass, bool) {
	switch relType {
	case R_X86_64_PLT32:
		return ClassPCRelToImportable, true
	case R_X86_64_GOT32, R_X86_64_GOTPCREL, R_X86_64_GOTPCRELX, R_X86_64_REX_GOTPCRELX:
		return ClassGOTRelative, true
	case R_X86_64_64, R_X86_64_32, R_X86_64_32S:
		return ClassAbsoluteWord, true
	case R_X86_64_PC32, R_X86_64_PC16, R_X86_64_PC8:
		return ClassPCRelToImportable, true
	case R_X86_64_TLSGD, R_X86_64_TLSLD, R_X86_64_GOTTPOFF, R_X86_64_DTPOFF32, R_X86_64_TPOFF32:
		return ClassTLS, true
	case R_X86_64_NONE:
		return ClassNone, true
	default:
		return ClassNone, false
	}
}

// WritePLTHeader writes PLT[0], the resolver trampoline, following exactly
// flapc's plt_got.go GeneratePLT header bytes (pushq GOT[1]; jmpq *GOT[2]).
func (x86_64Target) WritePLTHeader(buf []byte, gotBase, pltBase uint64) {
	_ = buf[15]
	buf[0], buf[1] = 0xff, 0x35
	binary.LittleEndian.PutUint32(buf[2:6], uint32(gotBase+8-pltBase-6))
	buf[6], buf[7] = 0xff, 0x25
	binary.LittleEndian.PutUint32(buf[8:12], uint32(gotBase+16-pltBase-12))
	copy(buf[12:16], []byte{0x0f, 0x1f, 0x40, 0x00})
}

// WritePLTEntry writes PLT[index+1]: jmpq *GOT[n]; pushq $index; jmpq PLT[0].
// Matches flapc's per-function PLT stub generation 1:1, generalized to an
// arbitrary GOT slot layout (index+3, reserved slots 0..2).
func (x86_64Target) WritePLTEntry(buf []byte, index int, gotBase, pltBase uint64) {
	_ = buf[15]
	pltOffset := pltBase + uint64(16+index*16)
	gotOffset := gotBase + uint64(24+index*8)

	buf[0], buf[1] = 0xff, 0x25
	binary.LittleEndian.PutUint32(buf[2:6], uint32(int32(gotOffset-pltOffset-6)))

	buf[6] = 0x68
	binary.LittleEndian.PutUint32(buf[7:11], uint32(index))

	buf[11] = 0xe9
	binary.LittleEndian.PutUint32(buf[12:16], uint32(int32(pltBase-pltOffset-16)))
}
