// Package synth implements stage 7, spec.md §4.7: the synthetic output
// chunks. Each exported type satisfies internal/iobj.Chunk and is
// populated from the need-bits stage 6 (internal/scan) set on each
// Symbol. This is new code with no direct flapc analog for the dynamic-
// linking chunks (flapc only ever built static, single-object
// executables); the GOT/PLT layout and PLT-entry-writing calling
// convention is grounded on flapc's plt_got.go (GeneratePLT), generalized
// from "one hardcoded GOT/PLT pair" to "N symbols needing dynamic
// presence, sized and ordered by the scanner's output" — see DESIGN.md.
package synth

import (
	"encoding/binary"
	"sort"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

// GOT is the Global Offset Table synthetic chunk, spec.md §4.7: "Collects
// four disjoint symbol lists: regular, gottp, tlsgd, tlsdesc." When
// requested, two words at the end of the GOT are reserved for the shared
// LD module entry; nothing writes them or emits a relocation for them,
// and TLSLDIdx is never assigned (it stays -1).
type GOT struct {
	iobj.ChunkHeader

	target arch.Target

	Regular []*iobj.Symbol
	GotTP   []*iobj.Symbol
	TLSGD   []*iobj.Symbol
	TLSDesc []*iobj.Symbol

	NeedsTLSLD bool
	TLSLDIdx   int32
}

func NewGOT(t arch.Target) *GOT {
	return &GOT{
		ChunkHeader: iobj.ChunkHeader{Name: ".got", Flags: 0x3, Type: 1, Align: uint64(t.WordSize())},
		target:      t,
		TLSLDIdx:    -1,
	}
}

// AddGotSymbol assigns sym a GOT slot index if it does not already have
// one, per spec.md §4.7.
func (g *GOT) AddGotSymbol(sym *iobj.Symbol) {
	aux := sym.Aux()
	if aux.GOTIdx >= 0 {
		return
	}
	aux.GOTIdx = int32(len(g.Regular))
	g.Regular = append(g.Regular, sym)
}

func (g *GOT) AddGotTP(sym *iobj.Symbol) {
	aux := sym.Aux()
	if aux.GOTTPIdx >= 0 {
		return
	}
	aux.GOTTPIdx = int32(len(g.GotTP))
	g.GotTP = append(g.GotTP, sym)
}

func (g *GOT) AddTLSGD(sym *iobj.Symbol) {
	aux := sym.Aux()
	if aux.TLSGDIdx >= 0 {
		return
	}
	aux.TLSGDIdx = int32(len(g.TLSGD))
	g.TLSGD = append(g.TLSGD, sym)
}

func (g *GOT) AddTLSDesc(sym *iobj.Symbol) {
	aux := sym.Aux()
	if aux.TLSDESCIdx >= 0 {
		return
	}
	aux.TLSDESCIdx = int32(len(g.TLSDesc))
	g.TLSDesc = append(g.TLSDesc, sym)
}

func (g *GOT) RequestTLSLD() {
	if !g.NeedsTLSLD {
		g.NeedsTLSLD = true
	}
}

// wordCount returns the number of words this GOT reserves: one per
// Regular symbol, one per GotTP symbol, two per TLSGD pair, two per
// TLSDesc pair, plus two if a shared TLSLD entry was requested.
func (g *GOT) wordCount() int {
	n := len(g.Regular) + len(g.GotTP) + 2*len(g.TLSGD) + 2*len(g.TLSDesc)
	if g.NeedsTLSLD {
		n += 2
	}
	return n
}

func (g *GOT) Size() uint64 { return uint64(g.wordCount() * g.target.WordSize()) }

// WriteTo writes each reserved slot's initial value. Symbols whose final
// address is known at link time (not imported) get a direct value;
// imported symbols are left zero here — DynReloc (GLOB_DAT/TPOFF/DTPMOD)
// entries built alongside this GOT patch the loader-filled value in at
// load time.
func (g *GOT) WriteTo(buf []byte) {
	ws := g.target.WordSize()
	put := func(off int, v uint64) {
		if ws == 8 {
			binary.LittleEndian.PutUint64(buf[off:], v)
		} else {
			binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		}
	}
	idx := 0
	write := func(sym *iobj.Symbol) {
		if !sym.IsImported {
			put(idx*ws, symbolValue(sym))
		}
		idx++
	}
	for _, s := range g.Regular {
		write(s)
	}
	for _, s := range g.GotTP {
		if !s.IsImported {
			put(idx*ws, symbolValue(s))
		}
		idx++
	}
	for _, s := range g.TLSGD {
		if !s.IsImported {
			put(idx*ws, 1) // module id of this output
		}
		idx += 2
	}
	for range g.TLSDesc {
		idx += 2
	}
	if g.NeedsTLSLD {
		idx += 2
	}
	_ = idx
}

// symbolValue resolves a defined (non-imported) symbol's final address.
// Only meaningful once layout (stage 8) has assigned every InputSection
// and OutputSection its VAddr.
func symbolValue(sym *iobj.Symbol) uint64 {
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

// GOTPLT holds one reserved word per PLT entry, pre-initialized to the PLT
// header address so lazy binding works (spec.md §4.7), plus three reserved
// header words (link-map pointer, resolver pointer — slots 0/1 reserved by
// the ABI, slot 2 used as scratch by some resolvers).
type GOTPLT struct {
	iobj.ChunkHeader
	target  arch.Target
	plt     *PLT
	PLTBase uint64
}

func NewGOTPLT(t arch.Target, plt *PLT) *GOTPLT {
	return &GOTPLT{
		ChunkHeader: iobj.ChunkHeader{Name: ".got.plt", Flags: 0x3, Type: 1, Align: uint64(t.WordSize())},
		target:      t,
		plt:         plt,
	}
}

func (gp *GOTPLT) Size() uint64 {
	return uint64((3 + len(gp.plt.Symbols)) * gp.target.WordSize())
}

func (gp *GOTPLT) WriteTo(buf []byte) {
	ws := gp.target.WordSize()
	put := func(off int, v uint64) {
		if ws == 8 {
			binary.LittleEndian.PutUint64(buf[off:], v)
		} else {
			binary.LittleEndian.PutUint32(buf[off:], uint32(v))
		}
	}
	for i := range gp.plt.Symbols {
		put((3+i)*ws, gp.PLTBase)
	}
}

// PLT is the Procedure Linkage Table synthetic chunk, spec.md §4.7. Header
// and per-entry code are written via the architecture's
// WritePLTHeader/WritePLTEntry, following flapc's plt_got.go calling
// convention.
type PLT struct {
	iobj.ChunkHeader
	target  arch.Target
	Symbols []*iobj.Symbol

	GotPltBase uint64
}

func NewPLT(t arch.Target) *PLT {
	return &PLT{ChunkHeader: iobj.ChunkHeader{Name: ".plt", Flags: 0x6, Type: 1, Align: 16}, target: t}
}

func (p *PLT) AddSymbol(sym *iobj.Symbol) {
	aux := sym.Aux()
	if aux.PLTIdx >= 0 {
		return
	}
	aux.PLTIdx = int32(len(p.Symbols))
	p.Symbols = append(p.Symbols, sym)
}

func (p *PLT) Size() uint64 {
	n := len(p.Symbols)
	size := uint64(p.target.PLTHeaderSize())
	for i := 0; i < n; i++ {
		size += uint64(p.target.PLTEntrySizeAt(i))
	}
	return size
}

func (p *PLT) WriteTo(buf []byte) {
	hs := p.target.PLTHeaderSize()
	p.target.WritePLTHeader(buf[:hs], p.GotPltBase, p.VAddr)
	off := hs
	for i := range p.Symbols {
		es := p.target.PLTEntrySizeAt(i)
		p.target.WritePLTEntry(buf[off:off+es], i, p.GotPltBase, p.VAddr)
		off += es
	}
}

// DynReloc is one dynamic relocation entry (RELA/REL layout collapsed into
// one Go struct; the writer picks the on-disk width from the target).
type DynReloc struct {
	Offset uint64 // runtime address the loader patches
	Type   uint32
	SymIdx uint32 // dynsym index, 0 for RELATIVE/IRELATIVE
	Addend int64
}

// RelocSection is a generic .rela.dyn / .rela.plt writer shared by every
// dynamic-relocation-bearing chunk (spec.md §3 Chunk subtypes list these
// as distinct chunks; they share one implementation parameterized by
// name/flags here since their wire format is identical).
type RelocSection struct {
	iobj.ChunkHeader
	target arch.Target
	Entries []DynReloc
	IsRela bool
}

func NewRelocSection(name string, t arch.Target, isRela bool) *RelocSection {
	shtype := uint32(9) // SHT_REL
	if isRela {
		shtype = 4 // SHT_RELA
	}
	return &RelocSection{
		ChunkHeader: iobj.ChunkHeader{Name: name, Flags: 0x2, Type: shtype, Align: uint64(t.WordSize())},
		target:      t, IsRela: isRela,
	}
}

func (r *RelocSection) entSize() uint64 {
	if r.IsRela {
		return uint64(r.target.WordSize()) * 3
	}
	return uint64(r.target.WordSize()) * 2
}

func (r *RelocSection) Size() uint64 { return uint64(len(r.Entries)) * r.entSize() }

func (r *RelocSection) WriteTo(buf []byte) {
	ws := r.target.WordSize()
	es := int(r.entSize())
	for i, e := range r.Entries {
		off := i * es
		info := uint64(e.SymIdx)<<32 | uint64(e.Type)
		if ws == 4 {
			info = uint64(e.SymIdx)<<8 | uint64(e.Type&0xff)
		}
		if ws == 8 {
			binary.LittleEndian.PutUint64(buf[off:], e.Offset)
			binary.LittleEndian.PutUint64(buf[off+8:], info)
			if r.IsRela {
				binary.LittleEndian.PutUint64(buf[off+16:], uint64(e.Addend))
			}
		} else {
			binary.LittleEndian.PutUint32(buf[off:], uint32(e.Offset))
			binary.LittleEndian.PutUint32(buf[off+4:], uint32(info))
			if r.IsRela {
				binary.LittleEndian.PutUint32(buf[off+8:], uint32(e.Addend))
			}
		}
	}
}

// SortRelativeFirst orders RELATIVE relocations first (spec.md's implicit
// convention, followed by most real linkers so the dynamic loader can
// apply base relocations in a tight loop without a branch), preserving
// relative order within each bucket — used before building .relr.dyn.
func (r *RelocSection) SortRelativeFirst(relativeType uint32) {
	sort.SliceStable(r.Entries, func(i, j int) bool {
		iRel := r.Entries[i].Type == relativeType
		jRel := r.Entries[j].Type == relativeType
		return iRel && !jRel
	})
}

// BuildRELR packs a sorted, word-aligned set of RELATIVE-relocation
// offsets into the compact .relr.dyn bitmap encoding (spec.md §4.7/§8):
// each entry is either a full address word (LSB 0) or, following an
// anchor, a bitmap word (LSB 1) where bit i (i=1..63) set means
// anchor+i*wordsize also needs a base relocation. Input offsets must
// already be word-aligned and sorted ascending (spec.md §8 Packed relocs
// invariant); non-aligned input panics (internal/scan assigns RELR
// without checking alignment, so the caller must filter).
func BuildRELR(wordSize int, offsets []uint64) []uint64 {
	if len(offsets) == 0 {
		return nil
	}
	bits := wordSize * 8
	var out []uint64
	i := 0
	for i < len(offsets) {
		anchor := offsets[i]
		if anchor%uint64(wordSize) != 0 {
			panic("synth.BuildRELR: unaligned offset")
		}
		out = append(out, anchor)
		i++
		bitmap := uint64(0)
		last := anchor
		for i < len(offsets) {
			delta := offsets[i] - last
			slot := delta / uint64(wordSize)
			if delta%uint64(wordSize) != 0 || slot == 0 || int(slot) > bits-1 {
				break
			}
			bitmap |= 1 << uint(slot-1)
			i++
		}
		if bitmap != 0 {
			out = append(out, bitmap<<1|1)
		}
	}
	return out
}
