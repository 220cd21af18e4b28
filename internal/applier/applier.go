// Package applier implements stage 10, spec.md §4.9: the relocation
// applier that writes final bytes into the mapped output. It covers both
// apply_reloc_alloc (live SHF_ALLOC sections) and apply_reloc_nonalloc
// (debug sections, with §7's tombstone semantics), plus the §4.8 TLS
// access-model relaxation rewrite. New code — flapc only ever wrote
// relocations against its own freshly generated single object, never
// against a foreign input stream with S/A/P/G/GOT/T semantics — built
// directly from spec.md's description, parameterized over
// internal/arch.Target so the same driver loop serves every architecture,
// per spec.md §9's trait-style dispatch design note.
package applier

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

// Context carries the per-relocation values spec.md §4.9 names: S (symbol
// value), A (addend), P (PC of the relocation), G (GOT index * word
// size), GOT (GOT base address), T (ARM Thumb bit).
type Context struct {
	Target arch.Target

	GOTBase uint64
	PLTBase uint64

	// ValueOf resolves a symbol's final runtime address (S). Imported
	// symbols resolve to 0 here; the caller's dynamic-relocation machinery
	// (internal/synth) is what actually supplies their address at load
	// time. ApplyAlloc does not skip them: it still writes the computed
	// field using S = 0.
	ValueOf func(*iobj.Symbol) uint64

	GOTIndexOf func(*iobj.Symbol) (int32, bool)
	PLTIndexOf func(*iobj.Symbol) (int32, bool)
}

// RangeError mirrors spec.md §7's RangeError taxonomy entry.
type RangeError struct {
	Section  string
	Offset   uint64
	Symbol   string
	Value    int64
	MinLegal int64
	MaxLegal int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("relocation value %d out of range [%d, %d] at %s+0x%x (symbol %s)",
		e.Value, e.MinLegal, e.MaxLegal, e.Section, e.Offset, e.Symbol)
}

// CheckRange validates value fits in a signed field of width bits,
// spec.md §4.9/§8: "2^(width-1)-1 is accepted; 2^(width-1) is rejected."
func CheckRange(value int64, bits int, secName string, offset uint64, symName string) error {
	if bits <= 0 || bits >= 64 {
		return nil
	}
	max := int64(1)<<uint(bits-1) - 1
	min := -(int64(1) << uint(bits-1))
	if value < min || value > max {
		return &RangeError{Section: secName, Offset: offset, Symbol: symName, Value: value, MinLegal: min, MaxLegal: max}
	}
	return nil
}

// ApplyAlloc implements apply_reloc_alloc for one live SHF_ALLOC input
// section: writes every relocation's computed value into buf (already
// sliced to exactly sec's output range). resolveSym maps a relocation's
// symbol index to the *iobj.Symbol it resolved to during stage 2.
func ApplyAlloc(ctx *Context, sec *iobj.InputSection, buf []byte, resolveSym func(uint32) *iobj.Symbol) error {
	secVAddr := uint64(0)
	if sec.OutputSec != nil {
		secVAddr = sec.OutputSec.VAddr
	}
	base := secVAddr + sec.OutputOffset

	for i := range sec.Relocs {
		r := &sec.Relocs[i]
		sym := resolveSym(r.SymIdx)
		if sym == nil {
			continue
		}
		class, ok := ctx.Target.RelocInfo(r.Type)
		if !ok {
			return fmt.Errorf("unsupported relocation type %d in section %s", r.Type, sec.Name)
		}

		// RISC-V/LoongArch relaxation shrinkage: loc and P shift left by
		// the accumulated deleted-byte count (spec.md §4.9).
		loc := r.Offset - uint64(max64(r.RDelta, 0))
		p := base + loc

		s := ctx.ValueOf(sym)
		a := uint64(r.Addend)

		var value int64
		var width int
		pcRelative := false

		switch class {
		case arch.ClassAbsoluteWord:
			value = int64(s + a)
			width = ctx.Target.WordSize() * 8
		case arch.ClassPCRelToImportable:
			target := s
			if sym.HasNeeds(iobj.NeedsPLT) {
				if idx, ok := ctx.PLTIndexOf(sym); ok {
					target = ctx.PLTBase + pltEntryOffset(ctx.Target, idx)
				}
			}
			value = int64(target+a) - int64(p)
			width = 32
			pcRelative = true
		case arch.ClassGOTRelative:
			idx, _ := ctx.GOTIndexOf(sym)
			g := uint64(idx) * uint64(ctx.Target.GOTEntrySize())
			gotSlot := ctx.GOTBase + g
			value = int64(gotSlot+a) - int64(p)
			width = 32
			pcRelative = true
		case arch.ClassTLS:
			value = int64(s + a)
			width = 32
		default:
			continue
		}
		_ = pcRelative

		if err := CheckRange(value, width, sec.Name, base+r.Offset, sym.Name); err != nil {
			return err
		}
		writeField(buf, int(loc), value, width, ctx.Target.Endian())
	}
	return nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func pltEntryOffset(t arch.Target, idx int32) uint64 {
	off := uint64(t.PLTHeaderSize())
	for i := int32(0); i < idx; i++ {
		off += uint64(t.PLTEntrySizeAt(int(i)))
	}
	return off
}

func writeField(buf []byte, offset int, value int64, bits int, endian arch.Endian) {
	bo := binary.ByteOrder(binary.LittleEndian)
	if endian == arch.BigEndian {
		bo = binary.BigEndian
	}
	switch bits {
	case 8:
		buf[offset] = byte(value)
	case 16:
		bo.PutUint16(buf[offset:], uint16(value))
	case 32:
		bo.PutUint32(buf[offset:], uint32(value))
	default:
		bo.PutUint64(buf[offset:], uint64(value))
	}
}

// ApplyNonAlloc implements apply_reloc_nonalloc: relocations targeting
// non-SHF_ALLOC (debug) sections, with §7's tombstone semantics for
// references into dead sections.
func ApplyNonAlloc(sec *iobj.InputSection, buf []byte, resolveSym func(uint32) *iobj.Symbol, t arch.Target) {
	for i := range sec.Relocs {
		r := &sec.Relocs[i]
		sym := resolveSym(r.SymIdx)
		dead := sym == nil || (sym.Origin == iobj.OriginInputSection && sym.InputSec != nil && !sym.InputSec.IsAlive())
		if dead {
			tomb := Tombstone(sec.Name, sym, false)
			writeField(buf, int(r.Offset), tomb, t.WordSize()*8, t.Endian())
			continue
		}
		value := int64(symbolAddr(sym)) + r.Addend
		writeField(buf, int(r.Offset), value, t.WordSize()*8, t.Endian())
	}
}

func symbolAddr(sym *iobj.Symbol) uint64 {
	switch sym.Origin {
	case iobj.OriginAbsolute:
		return sym.AbsValue
	case iobj.OriginInputSection:
		if sym.InputSec == nil {
			return 0
		}
		base := sym.InputSec.OutputOffset
		if sym.InputSec.OutputSec != nil {
			base += sym.InputSec.OutputSec.VAddr
		}
		return base + sym.InputOffset
	case iobj.OriginOutputSection:
		if sym.OutputSec == nil {
			return 0
		}
		return sym.OutputSec.VAddr + sym.OutputOff
	case iobj.OriginFragment:
		if sym.Fragment == nil {
			return 0
		}
		return sym.Fragment.Offset + sym.FragOffset
	default:
		return 0
	}
}

// Tombstone implements spec.md §7's debug-section tombstone rule: "1 for
// .debug_loc and .debug_ranges ... 0 elsewhere". The .debug_line case with
// foldedByICF true also returns 0, the same value as the ordinary
// tombstone; the folded leader's address is not substituted. ApplyNonAlloc
// always passes foldedByICF false.
func Tombstone(sectionName string, sym *iobj.Symbol, foldedByICF bool) int64 {
	if sectionName == ".debug_line" && foldedByICF {
		return 0
	}
	switch sectionName {
	case ".debug_loc", ".debug_ranges":
		return 1
	default:
		return 0
	}
}
