package iobj

import "sync/atomic"

// OriginKind tags which of the four mutually exclusive origins (spec.md §3
// "origin that is exactly one of...") a Symbol currently has.
type OriginKind uint8

const (
	OriginUndefined OriginKind = iota
	OriginAbsolute
	OriginInputSection
	OriginOutputSection
	OriginFragment
)

// BindClass buckets a symbol on the resolution lattice (spec.md §3):
//
//	undefined < common < archive-member-defined < shared-defined < regular-defined
type BindClass uint8

const (
	BindUndefined BindClass = iota
	BindCommon
	BindArchiveDefined
	BindSharedDefined
	BindRegularDefined
)

// Symbol is one instance per unique (name, version) pair, spec.md §3.
type Symbol struct {
	Name    string
	Version uint16

	// File is a weak reference to the owning file; nil means undefined.
	File *ObjectFile

	SymtabIndex int
	Visibility  uint8
	Bind        BindClass

	Origin OriginKind
	// exactly one of the following is meaningful, selected by Origin.
	AbsValue    uint64
	InputSec    *InputSection
	InputOffset uint64
	OutputSec   *OutputSection
	OutputOff   uint64
	Fragment    *SectionFragment
	FragOffset  uint64

	// Size is the symbol table's st_size, the one field besides Origin's
	// value this core keeps from the raw ELF symbol record; copy
	// relocations (spec.md §8 scenario 5) need it to size the .bss slot
	// they reserve for an imported data object.
	Size uint64

	IsWeak                 bool
	IsImported             bool
	IsExported             bool
	IsCanonical            bool
	HasCopyrel             bool
	IsCopyrelReadonly      bool
	GCRoot                 bool
	WriteToSymtab          bool
	ReferencedByRegularObj bool
	IsVersionedDefault     bool
	IsWrapped              bool
	IsTraced               bool

	// Needs is the atomic need-bits byte (spec.md §3: "Need-bits are in a
	// separate atomic byte"), set by internal/scan.
	Needs atomic.Uint32

	// Aux is allocated lazily, only for symbols that need dynamic
	// presence, matching spec.md §3's SymbolAux side-table design.
	aux atomic.Pointer[SymbolAux]
}

// Need-bit flags, one per bit of Symbol.Needs (spec.md §4.6/§4.7).
const (
	NeedsGOT uint32 = 1 << iota
	NeedsPLT
	NeedsCPLT
	NeedsCopyrel
	NeedsTLSGD
	NeedsGOTTP
	NeedsTLSDESC
	NeedsDynSym
	NeedsPPCOpd
)

// SetNeeds atomically ORs bits into the need-bits byte.
func (s *Symbol) SetNeeds(bits uint32) {
	for {
		old := s.Needs.Load()
		if old&bits == bits {
			return
		}
		if s.Needs.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

func (s *Symbol) HasNeeds(bits uint32) bool {
	return s.Needs.Load()&bits == bits
}

// SymbolAux holds the dynamic-presence index slots spec.md §3 describes as
// "allocated only for symbols that need dynamic presence": GOT, GOTTP,
// TLSGD, TLSDESC, PLT, PLTGOT, OPD, DYNSYM, and the GNU-hash bucket index.
type SymbolAux struct {
	GOTIdx     int32
	GOTTPIdx   int32
	TLSGDIdx   int32
	TLSDESCIdx int32
	PLTIdx     int32
	PLTGOTIdx  int32
	OPDIdx     int32
	DynSymIdx  int32
	GnuHashIdx int32
}

// Aux returns the symbol's side-table, allocating it on first use. Callers
// race to allocate; only one allocation wins via CompareAndSwap.
func (s *Symbol) Aux() *SymbolAux {
	if p := s.aux.Load(); p != nil {
		return p
	}
	fresh := &SymbolAux{GOTIdx: -1, GOTTPIdx: -1, TLSGDIdx: -1, TLSDESCIdx: -1,
		PLTIdx: -1, PLTGOTIdx: -1, OPDIdx: -1, DynSymIdx: -1, GnuHashIdx: -1}
	if s.aux.CompareAndSwap(nil, fresh) {
		return fresh
	}
	return s.aux.Load()
}

// rank returns the lattice position used to decide resolution precedence,
// spec.md §3: "undefined < common < archive-member-defined < shared-defined
// < regular-defined", with weak/strong breaking ties within a bucket.
func (b BindClass) rank(weak bool) int {
	r := int(b) * 2
	if !weak {
		r++
	}
	return r
}

// Outranks reports whether a replacement candidate strictly outranks the
// current owner, or ties and the candidate's file has lower (better)
// priority — spec.md §3's resolution rule.
func Outranks(curBind BindClass, curWeak bool, curPriority int,
	newBind BindClass, newWeak bool, newPriority int) bool {
	cr, nr := curBind.rank(curWeak), newBind.rank(newWeak)
	if nr != cr {
		return nr > cr
	}
	return newPriority < curPriority
}
