// Package iobj is the input graph model: the data produced by stage 1
// (parsing) and read by every later stage. It generalizes flapc's flat
// single-object-at-a-time `elf.go`/`codegen_elf_writer.go` model — which
// only ever built one ELF file from scratch — into a read side that models
// an arbitrary number of already-compiled input object files and DSOs
// being combined by the linker.
package iobj

import (
	"sync/atomic"

	"github.com/xyproto/ldcore/internal/arch"
)

// ObjectFile owns everything the parser (stage 1) extracts from one input
// relocatable object or shared object, per spec.md §3's ObjectFile entity.
type ObjectFile struct {
	Name     string
	Priority int // lower wins ties in the resolution lattice
	Data     []byte

	IsDSO       bool
	AsNeeded    bool
	ExcludeLibs bool
	SOName      string // DT_SONAME, DSOs only
	NeededBy    []string

	Machine arch.Machine
	Class   arch.Class
	Endian  arch.Endian

	Sections []*InputSection

	// Symbols has one slot per symbol-table entry, mirroring the on-disk
	// symtab index space 1:1 so relocations can reference symbols by index
	// directly (spec.md §3: "length = section-header symbol count").
	// Local symbols own their *Symbol; global slots alias entries already
	// installed in the process-wide symbol map.
	Symbols []*Symbol

	// FirstGlobal is the symtab index of the first non-local symbol
	// (sh_info of SHT_SYMTAB).
	FirstGlobal int

	Cies []*CieRecord
	Fdes []*FdeRecord

	ComdatGroups []*ComdatGroup

	GnuPropertyBits uint32

	// MappingSymbols holds ARM32 $a/$t/$d symbol-table indices, kept only
	// so internal/applier can byte-swap instructions in BE8 mode (the ARM32
	// BE8 Open Question decision recorded in DESIGN.md).
	MappingSymbols []MappingSymbol
}

// MappingSymbol records one ARM32 $a/$t/$d (or prefixed variant) symbol.
type MappingSymbol struct {
	SectionIndex int
	Value        uint64
	Kind         byte // 'a' (ARM), 't' (Thumb), 'd' (data)
}

// InputSection is one parsed input section header, spec.md §3.
type InputSection struct {
	File *ObjectFile

	Shndx int
	Name  string

	ShType    uint32
	ShFlags   uint64
	ShAddrAlign uint64
	ShEntSize uint64
	ShSize    uint64

	// P2Align is the alignment exponent derived from ShAddrAlign; 0 means
	// unaligned/byte-aligned.
	P2Align uint8

	Contents []byte
	Relocs   []Reloc

	// FdeBegin/FdeEnd index into File.Fdes for this section's range, set
	// only for .eh_frame-adjacent text sections during EH-frame parsing.
	FdeBegin, FdeEnd int

	// mutable flags, written by later stages under the owning shard's lock
	// or via atomic CAS where noted.
	isAlive      atomic.Bool
	isVisited    atomic.Bool
	AddressTaken bool

	// Leader implements the ICF invariant from spec.md §3: leader == this
	// means retained; leader != this means folded; leader == nil means not
	// eligible.
	Leader *InputSection

	// OutputOffset is assigned during stage 8 layout.
	OutputOffset uint64
	OutputSec    *OutputSection

	// ExidxCompanion is ARM32's "section reachable from .ARM.exidx
	// back-pointer" (spec.md §4.3).
	ExidxCompanion *InputSection

	// MergeFrags/MergeFragOffsets record stage 5's (internal/merge) split
	// of this section's original Contents into fragments, parallel slices
	// sorted by offset. Both are nil for a section that is not a merge
	// candidate or was never split.
	MergeFrags       []*SectionFragment
	MergeFragOffsets []uint64
}

// SHF_MERGE and SHF_STRINGS are the two section-header flags that mark a
// section as mergeable, spec.md §4.1/§4.5.
const (
	SHF_MERGE   = 0x10
	SHF_STRINGS = 0x20
)

// IsMergeCandidate reports whether this section should be handed to stage
// 5 (internal/merge) for fragment splitting and deduplication, spec.md
// §4.1: "a section with SHF_MERGE and a nonzero sh_entsize is promoted to
// a MergeableSection." A section that also has SHF_STRINGS qualifies even
// with a zero sh_entsize.
func (s *InputSection) IsMergeCandidate() bool {
	if s.ShFlags&SHF_MERGE == 0 {
		return false
	}
	if s.ShFlags&SHF_STRINGS != 0 {
		return true
	}
	return s.ShEntSize > 0
}

// FragmentAt returns the fragment covering localOffset within this
// section's original (pre-merge) byte range, and the offset within that
// fragment, once stage 5 has split it. ok is false for a section that was
// never split, or for an offset landing past every recorded fragment
// (shouldn't happen for an offset that actually came from this section).
func (s *InputSection) FragmentAt(localOffset uint64) (frag *SectionFragment, fragOffset uint64, ok bool) {
	if len(s.MergeFrags) == 0 {
		return nil, 0, false
	}
	lo, hi, idx := 0, len(s.MergeFragOffsets)-1, -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if s.MergeFragOffsets[mid] <= localOffset {
			idx = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if idx < 0 {
		return nil, 0, false
	}
	return s.MergeFrags[idx], localOffset - s.MergeFragOffsets[idx], true
}

func (s *InputSection) IsAlive() bool    { return s.isAlive.Load() }
func (s *InputSection) SetAlive(v bool)  { s.isAlive.Store(v) }
func (s *InputSection) MarkVisited() bool {
	return !s.isVisited.Swap(true)
}

// IsEligibleForICF implements the eligibility predicate in spec.md §4.4.
func (s *InputSection) IsEligibleForICF(icfAll bool) bool {
	const (
		shfWrite = 0x1
		shfAlloc = 0x2
		shfTLS   = 0x400
	)
	if !s.IsAlive() {
		return false
	}
	if s.ShFlags&shfAlloc == 0 || s.ShFlags&shfWrite != 0 || s.ShFlags&shfTLS != 0 {
		return false
	}
	if s.AddressTaken && !icfAll {
		return false
	}
	switch {
	case hasPrefix(s.Name, ".init"), hasPrefix(s.Name, ".fini"),
		hasPrefix(s.Name, ".init_array"), hasPrefix(s.Name, ".fini_array"),
		hasPrefix(s.Name, ".ctors"), hasPrefix(s.Name, ".dtors"):
		return false
	}
	return true
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}

// Reloc is the decoded relocation record shared by REL/RELA/CREL input
// (the CREL Open Question decision in DESIGN.md: CREL is decoded into this
// exact same struct, never given a separate representation).
type Reloc struct {
	Offset  uint64
	Type    uint32
	SymIdx  uint32
	Addend  int64

	// RDelta is the RISC-V/LoongArch relaxation-shrinkage accumulator
	// (spec.md §4.9's r_deltas), read by internal/applier. No code in this
	// core assigns it, so it stays zero.
	RDelta int64
}
