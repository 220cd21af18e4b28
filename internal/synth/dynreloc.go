package synth

import (
	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
	"github.com/xyproto/ldcore/internal/scan"
)

// BuildDynRelocs assembles .rela.dyn (dynRel) and .rela.plt (pltRel) entries
// from the dynamic-presence slots internal/scan reserved on GOT/PLT and
// from its per-relocation AbsRel classification of word-size absolute
// relocations (spec.md §4.6/§4.7). It is the consumer of
// arch.Target.DynRelocTypes: every dynamic relocation's on-disk Type value
// comes from there rather than from a hardcoded constant, so the same
// driver logic serves every architecture this core recognizes.
//
// gotBase and gotpltBase are the GOT/GOTPLT chunks' assigned virtual
// addresses (spec.md §4.8 fills these in during layout; callers invoke
// this after Layout, not before). ifuncSyms identifies which PLT/AbsRel
// symbols are STT_GNU_IFUNC, since spec.md §4.7's "IRELATIVE for ifuncs
// when -z now" rule needs that bit and internal/iobj.Symbol does not carry
// it directly (scan.Result.IFuncSyms is the source of truth instead).
//
// RELR-eligible AbsRel entries are returned separately in relrOffsets
// rather than folded into dynRel, for the caller to hand to BuildRELR once
// every such offset across every output section is known.
func BuildDynRelocs(t arch.Target, got *GOT, plt *PLT, gotBase, gotpltBase uint64,
	absRels []*scan.AbsRel, ifuncSyms map[*iobj.Symbol]bool, zNow bool) (dynRel, pltRel *RelocSection, relrOffsets []uint64) {

	dt := t.DynRelocTypes()
	ws := uint64(t.WordSize())
	dynRel = NewRelocSection(".rela.dyn", t, true)
	pltRel = NewRelocSection(".rela.plt", t, true)

	dynSymIdx := func(sym *iobj.Symbol) uint32 {
		if sym == nil {
			return 0
		}
		if idx := sym.Aux().DynSymIdx; idx >= 0 {
			return uint32(idx)
		}
		return 0
	}

	// GOT regular slots: an imported symbol's address is unknown until
	// load, so the loader fills it via GLOB_DAT; a defined symbol's slot
	// already holds its correct link-time value (GOT.WriteTo) and needs
	// no dynamic relocation of its own here.
	for i, sym := range got.Regular {
		if !sym.IsImported {
			continue
		}
		off := gotBase + uint64(i)*ws
		dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: off, Type: dt.GlobDat, SymIdx: dynSymIdx(sym)})
	}

	// GOTTP: the TP-relative offset is fixed only at process startup for
	// an imported symbol, so the loader patches it via a TPOFF dynamic
	// relocation (spec.md §4.6's NEEDS_GOTTP describes exactly this slot).
	gottpBase := gotBase + uint64(len(got.Regular))*ws
	for i, sym := range got.GotTP {
		if !sym.IsImported {
			continue
		}
		off := gottpBase + uint64(i)*ws
		dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: off, Type: dt.TLSTPOff, SymIdx: dynSymIdx(sym)})
	}

	// TLSGD: a two-word (module id, offset) pair per symbol. A local,
	// non-imported symbol's module id is this output's own module (value
	// 1, written directly, no relocation); an imported symbol's module id
	// and offset are both resolved by the loader via DTPMOD/DTPOFF.
	tlsgdBase := gottpBase + uint64(len(got.GotTP))*ws
	for i, sym := range got.TLSGD {
		pairOff := tlsgdBase + uint64(i)*2*ws
		if !sym.IsImported {
			dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: pairOff + ws, Type: dt.TLSDTPOff, SymIdx: 0})
			continue
		}
		dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: pairOff, Type: dt.TLSDTPMod, SymIdx: dynSymIdx(sym)})
		dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: pairOff + ws, Type: dt.TLSDTPOff, SymIdx: dynSymIdx(sym)})
	}

	// TLSDesc: modeled as the same two-word module/offset pair spec.md
	// §4.7 describes for TLSGD ("two-slot descriptor"); a real TLSDESC
	// resolver-function encoding is an architecture-specific wire format
	// this core does not synthesize (documented simplification,
	// DESIGN.md).
	tlsdescBase := tlsgdBase + uint64(len(got.TLSGD))*2*ws
	for i, sym := range got.TLSDesc {
		pairOff := tlsdescBase + uint64(i)*2*ws
		if !sym.IsImported {
			dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: pairOff + ws, Type: dt.TLSDTPOff, SymIdx: 0})
			continue
		}
		dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: pairOff, Type: dt.TLSDTPMod, SymIdx: dynSymIdx(sym)})
		dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: pairOff + ws, Type: dt.TLSDTPOff, SymIdx: dynSymIdx(sym)})
	}

	// PLT: one JUMP_SLOT per entry, or IRELATIVE for an ifunc once -z now
	// is in effect (spec.md §4.7).
	for i, sym := range plt.Symbols {
		off := gotpltBase + uint64(3+i)*ws
		relType := dt.JumpSlot
		if zNow && ifuncSyms[sym] {
			relType = dt.IRelative
		}
		pltRel.Entries = append(pltRel.Entries, DynReloc{Offset: off, Type: relType, SymIdx: dynSymIdx(sym)})
	}

	// Word-size absolute relocations, classified by internal/scan into
	// one of spec.md §4.6's five kinds.
	for _, ar := range absRels {
		if ar.Section.OutputSec == nil {
			continue
		}
		off := ar.Section.OutputSec.VAddr + ar.Section.OutputOffset + ar.Reloc.Offset
		switch ar.Kind {
		case scan.AbsRelBaseRel:
			dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: off, Type: dt.Relative, Addend: ar.Reloc.Addend})
		case scan.AbsRelRELR:
			relrOffsets = append(relrOffsets, off)
		case scan.AbsRelIFunc:
			dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: off, Type: dt.IRelative, Addend: ar.Reloc.Addend})
		case scan.AbsRelDynRel:
			dynRel.Entries = append(dynRel.Entries, DynReloc{Offset: off, Type: ar.Reloc.Type, SymIdx: dynSymIdx(ar.Sym), Addend: ar.Reloc.Addend})
		}
	}

	return dynRel, pltRel, relrOffsets
}

// BuildCopyRelocs emits one Copy-type dynamic relocation per distinct
// copy-relocation slot (spec.md §8 scenario 5: aliases sharing a slot get
// exactly one R_*_COPY, against the alias group's first symbol).
func BuildCopyRelocs(t arch.Target, cr *CopyRelSection) *RelocSection {
	dt := t.DynRelocTypes()
	rs := NewRelocSection(".rela.dyn", t, true)
	for _, sym := range cr.order {
		rs.Entries = append(rs.Entries, DynReloc{
			Offset: cr.VAddr + sym.offset,
			Type:   dt.Copy,
			SymIdx: uint32(sym.sym.Aux().DynSymIdx),
		})
	}
	return rs
}
