package applier

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/ldcore/internal/arch"
)

// TLSModel is the access model a TLS relocation sequence currently uses,
// spec.md §4.8's relaxation table.
type TLSModel int

const (
	TLSGlobalDynamic TLSModel = iota
	TLSLocalDynamic
	TLSInitialExec
	TLSLocalExec
)

// RelaxDecision is the outcome of evaluating §4.8's table for one TLS
// access against a symbol resolved at layout time.
type RelaxDecision struct {
	From TLSModel
	To   TLSModel
}

// DecideRelaxation implements spec.md §4.8's table. linkTimeKnown means the
// symbol's TP offset is known at link time (defined in the executable,
// not imported); loadTimeKnown means it is fixed by load time (a non-
// dlopen DSO definition); isDSO means the current output is itself a
// shared object; dlopenable means that DSO might be loaded via dlopen
// (relevant only when isDSO).
func DecideRelaxation(from TLSModel, linkTimeKnown, loadTimeKnown, isDSO, dlopenable bool) RelaxDecision {
	switch from {
	case TLSGlobalDynamic, TLSDescModel:
		if linkTimeKnown {
			return RelaxDecision{from, TLSLocalExec}
		}
		if loadTimeKnown {
			return RelaxDecision{from, TLSInitialExec}
		}
		return RelaxDecision{from, from}
	case TLSLocalDynamic:
		if !isDSO || !dlopenable {
			return RelaxDecision{from, TLSLocalExec}
		}
		return RelaxDecision{from, from}
	case TLSInitialExec:
		if linkTimeKnown || loadTimeKnown {
			return RelaxDecision{from, TLSLocalExec}
		}
		return RelaxDecision{from, from}
	default:
		return RelaxDecision{from, from}
	}
}

// TLSDescModel is TLSDESC's own starting point in the relaxation table;
// kept as a distinct constant from TLSGlobalDynamic since the applier's
// instruction templates differ, even though §4.8 says "same rules as GD".
const TLSDescModel TLSModel = 100

// x86-64 TLS relaxation: the GD sequence
//
//	66 48 8d 3d <rel32>   lea foo@tlsgd(%rip), %rdi
//	66 66 48 e8 <rel32>   call __tls_get_addr@plt
//
// relaxes in place to the 15-byte LE sequence, padded with a one-byte nop
// to the GD sequence's 16 bytes:
//
//	64 48 8b 04 25 00 00 00 00   mov %fs:0, %rax
//	48 05 <imm32>                add $tpoff, %rax
//	90                           nop
//
// spec.md §8 scenario 6. Templates are matched byte-for-byte; a mismatch
// is a hard error per §4.8 ("a non-matching template is a hard error
// rather than a silent skip").
var x64GDTemplate = []byte{0x66, 0x48, 0x8d, 0x3d, 0, 0, 0, 0, 0x66, 0x66, 0x48, 0xe8, 0, 0, 0, 0}

// RelaxX64GDToLE rewrites buf[off:off+16] in place, replacing the GD
// sequence with the LE sequence and the link-time-constant tpoff value.
func RelaxX64GDToLE(buf []byte, off int, tpoff int32) error {
	if off+16 > len(buf) {
		return fmt.Errorf("applier: GD relaxation window out of bounds at offset %d", off)
	}
	for i, b := range x64GDTemplate {
		if i == 4 || i == 5 || i == 6 || i == 7 || i == 12 || i == 13 || i == 14 || i == 15 {
			continue // relocation-filled immediate bytes, not part of the template match
		}
		if buf[off+i] != b {
			return fmt.Errorf("applier: TLS GD relaxation template mismatch at offset %d (byte %d)", off, i)
		}
	}
	copy(buf[off:off+9], []byte{0x64, 0x48, 0x8b, 0x04, 0x25, 0x00, 0x00, 0x00, 0x00})
	buf[off+9] = 0x48
	buf[off+10] = 0x05
	binary.LittleEndian.PutUint32(buf[off+11:], uint32(tpoff))
	buf[off+15] = 0x90 // nop pad, GD sequence is 16 bytes, LE is 15
	return nil
}

// RelaxX64GOTTPToLE rewrites a GOTTPOFF-based IE access:
//
//	48 8b 05 <rel32>   mov foo@gottpoff(%rip), %rax
//
// into the direct TPOFF32 immediate form:
//
//	48 c7 c0 <imm32>   mov $tpoff, %rax
//
// spec.md §4.8's GOTTPOFF row ("direct TPOFF immediate").
func RelaxX64GOTTPToLE(buf []byte, off int, tpoff int32) error {
	if off+7 > len(buf) {
		return fmt.Errorf("applier: GOTTPOFF relaxation window out of bounds at offset %d", off)
	}
	if buf[off] != 0x48 || buf[off+1] != 0x8b {
		return fmt.Errorf("applier: TLS GOTTPOFF relaxation template mismatch at offset %d", off)
	}
	modrm := buf[off+2]
	reg := (modrm >> 3) & 0x7
	buf[off+1] = 0xc7
	buf[off+2] = 0xc0 | reg
	binary.LittleEndian.PutUint32(buf[off+3:], uint32(tpoff))
	return nil
}

// ApplyTLSRelaxation drives the per-architecture relaxation rewrite for
// one relocation, given the decision already made by DecideRelaxation.
// Only x86-64's two documented templates are wired end-to-end (matching
// DESIGN.md's internal/arch scope decision: fully modeled for x86-64,
// arm64, riscv64; a relaxation attempt on an unmodeled architecture is
// simply skipped, leaving the original GD/IE sequence intact, which is
// always correct, just not maximally optimized).
func ApplyTLSRelaxation(t arch.Target, buf []byte, off int, decision RelaxDecision, tpoff int32, sourceModel TLSModel) error {
	if t.Machine() != arch.EM_X86_64 {
		return nil
	}
	if decision.To != TLSLocalExec {
		return nil
	}
	switch sourceModel {
	case TLSGlobalDynamic:
		return RelaxX64GDToLE(buf, off, tpoff)
	case TLSInitialExec:
		return RelaxX64GOTTPToLE(buf, off, tpoff)
	default:
		return nil
	}
}
