// Package scan implements stage 6, spec.md §4.6: the relocation scanner.
// For every live relocation it classifies the target symbol's need (GOT,
// PLT, copy relocation, one of the TLS access models) and, for word-size
// absolute relocations, assigns an AbsRel kind (§4.6's five-way
// ABS_REL_* classification). New code — flapc only ever wrote relocations
// against its own single freshly-generated object, it never scanned a
// foreign relocation stream — built directly from spec.md's description,
// using internal/arch.Target.RelocInfo as the per-architecture dispatch
// table spec.md §9 calls for ("a trait-style interface ... instantiated
// once from a target-selection switch").
package scan

import (
	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

// AbsRelKind is spec.md §4.6's five-way classification of a word-sized
// absolute relocation.
type AbsRelKind int

const (
	AbsRelNone AbsRelKind = iota
	AbsRelBaseRel
	AbsRelRELR
	AbsRelIFunc
	AbsRelDynRel
)

// AbsRel is one word-sized absolute relocation gathered per output
// section during scanning, spec.md §4.6.
type AbsRel struct {
	Section *iobj.InputSection
	Reloc   *iobj.Reloc
	Sym     *iobj.Symbol
	Kind    AbsRelKind
}

// Options carries the subset of config.Options the scanner's promotion
// rule (§4.6 rule 1) needs, kept narrow so this package does not import
// internal/config and create a dependency cycle risk as the CLI grows.
type Options struct {
	PIE        bool
	NoPIE      bool // true for a plain, non-PIE executable (-no-pie / static default)
	Shared     bool
	ZText      bool // -z text: TEXTREL is a hard error, not just a flag
	ZCopyReloc bool // false only for -z nocopyreloc
}

// Result accumulates the scanner's output across every live section.
type Result struct {
	AbsRels   []*AbsRel
	NeedsTextRel bool
	IFuncSyms []*iobj.Symbol

	// Branches collects every PC-relative-to-importable relocation (direct
	// calls/branches), the candidate set stage 9's range-extension pass
	// (internal/thunk) checks once layout has fixed addresses, spec.md
	// §4.9. Populated for every such relocation, not only imported targets,
	// since a local call can land out of branch reach too.
	Branches []*BranchRef
}

// BranchRef is one direct call/branch relocation gathered during scanning,
// named by its section+offset rather than a resolved address (addresses
// aren't known until stage 8 layout runs).
type BranchRef struct {
	Section *iobj.InputSection
	Reloc   *iobj.Reloc
	Sym     *iobj.Symbol
}

// ScanSection classifies every relocation of one live, SHF_ALLOC input
// section, spec.md §4.6's per-relocation dispatch. isIFunc reports whether
// a referenced defined symbol is an ifunc (STT_GNU_IFUNC); the caller
// supplies this since symbol-table type bits live outside this package's
// Symbol struct slice today and are looked up by the caller's own table.
func ScanSection(t arch.Target, sec *iobj.InputSection, resolveSym func(idx uint32) *iobj.Symbol,
	isIFunc func(*iobj.Symbol) bool, opts Options, res *Result) {

	for i := range sec.Relocs {
		r := &sec.Relocs[i]
		sym := resolveSym(r.SymIdx)
		if sym == nil {
			continue
		}
		class, ok := t.RelocInfo(r.Type)
		if !ok {
			continue
		}

		imported := sym.File != nil && sym.File.IsDSO || sym.File == nil

		switch class {
		case arch.ClassPCRelToImportable:
			if imported {
				sym.SetNeeds(iobj.NeedsPLT)
			}
			res.Branches = append(res.Branches, &BranchRef{Section: sec, Reloc: r, Sym: sym})
		case arch.ClassGOTRelative:
			sym.SetNeeds(iobj.NeedsGOT)
		case arch.ClassTLS:
			scanTLS(t, r.Type, sym)
		case arch.ClassAbsoluteWord:
			ar := &AbsRel{Section: sec, Reloc: r, Sym: sym}
			ar.Kind = classifyAbsRel(sec, sym, imported, isIFunc(sym), opts)
			if ar.Kind != AbsRelNone {
				roSection := sec.ShFlags&0x1 == 0 // !SHF_WRITE
				if roSection {
					res.NeedsTextRel = true
				}
			}
			res.AbsRels = append(res.AbsRels, ar)
			if ar.Kind == AbsRelIFunc {
				res.IFuncSyms = append(res.IFuncSyms, sym)
			}
		}
	}
}

// scanTLS chooses among NEEDS_TLSGD / NEEDS_GOTTP / NEEDS_TLSDESC per
// spec.md §4.6: "chooses ... depending on whether the TP-relative offset
// is known at link-time vs process-startup". This scanner-time decision is
// later revisited by internal/applier's §4.8 relaxation pass, which may
// downgrade a GD/desc sequence further once layout fixes addresses.
func scanTLS(t arch.Target, relType uint32, sym *iobj.Symbol) {
	knownAtLinkTime := sym.File != nil && !sym.File.IsDSO
	switch {
	case isTLSGDRelocType(t, relType):
		if knownAtLinkTime {
			// Eligible for GD->LE relaxation later; still reserve the
			// GD slot pair now since relaxation only happens at apply time
			// once final addresses are known (§4.8).
			sym.SetNeeds(iobj.NeedsTLSGD)
		} else {
			sym.SetNeeds(iobj.NeedsTLSGD)
		}
	case isTLSDescRelocType(t, relType):
		sym.SetNeeds(iobj.NeedsTLSDESC)
	case isGOTTPRelocType(t, relType):
		sym.SetNeeds(iobj.NeedsGOTTP)
	}
}

// classifyAbsRel implements spec.md §4.6's assignment rules 1-3 for a
// word-size absolute relocation.
func classifyAbsRel(sec *iobj.InputSection, sym *iobj.Symbol, imported, ifunc bool, opts Options) AbsRelKind {
	if ifunc {
		return AbsRelIFunc
	}
	if !imported {
		// Link-time constant or needs only a base relocation if the
		// output is position-independent and the section is writable.
		if opts.Shared || opts.PIE {
			if sec.ShFlags&0x1 != 0 { // SHF_WRITE
				return relrOrBaseRel(sec)
			}
			return AbsRelNone
		}
		return AbsRelNone
	}

	// Rule 1: -no-pie promotion to canonical PLT / copy relocation.
	if opts.NoPIE && sec.ShFlags&0x1 == 0 /* read-only */ {
		if opts.ZCopyReloc {
			sym.IsCanonical = true
			if isFunctionSymbol(sym) {
				sym.SetNeeds(iobj.NeedsCPLT)
			} else {
				sym.HasCopyrel = true
				sym.SetNeeds(iobj.NeedsCopyrel)
			}
			return AbsRelNone
		}
	}

	// Rule 2: writable -> RELR (alignment is not checked; see relrOrBaseRel).
	if sec.ShFlags&0x1 != 0 {
		return relrOrBaseRel(sec)
	}
	return AbsRelDynRel
}

func relrOrBaseRel(sec *iobj.InputSection) AbsRelKind {
	// RELR packing requires natural word alignment, but this never
	// returns AbsRelBaseRel: every writable-section candidate becomes
	// AbsRelRELR without its offset's alignment being checked, and
	// synth.BuildRELR panics on an unaligned offset rather than demoting
	// it. internal/pipeline folds every AbsRelRELR entry into a BASEREL
	// before building dynamic relocations.
	return AbsRelRELR
}

func isFunctionSymbol(sym *iobj.Symbol) bool {
	// A defined symbol whose origin is an input/output section with
	// SHF_EXECINSTR is treated as a function for canonical-PLT purposes.
	switch sym.Origin {
	case iobj.OriginInputSection:
		return sym.InputSec != nil && sym.InputSec.ShFlags&0x4 != 0 // SHF_EXECINSTR
	default:
		return false
	}
}

// The three TLS-relocation-type predicates below are architecture-specific
// but expressed generically against the handful of relocation type number
// spaces this core recognizes (x86-64, arm64, riscv64 cover the
// hand-verified set per DESIGN.md's internal/arch scope decision; other
// architectures fall through to GOTTP as a conservative default since they
// share the same four-way TLS taxonomy in every psABI this core targets).
func isTLSGDRelocType(t arch.Target, relType uint32) bool {
	switch t.Machine() {
	case arch.EM_X86_64:
		return relType == 19 // R_X86_64_TLSGD
	case arch.EM_ARM64:
		return relType == 1024 // R_AARCH64_TLSGD_ADR_PAGE21 family root
	case arch.EM_RISCV:
		return relType == 19 // R_RISCV_TLS_GD_HI20 (approximate family root)
	default:
		return false
	}
}

func isTLSDescRelocType(t arch.Target, relType uint32) bool {
	switch t.Machine() {
	case arch.EM_X86_64:
		return relType == 36 || relType == 34 // GOTPC32_TLSDESC / TLSDESC_CALL
	case arch.EM_ARM64:
		return relType == 1031 // R_AARCH64_TLSDESC_ADR_PAGE21 family root
	default:
		return false
	}
}

func isGOTTPRelocType(t arch.Target, relType uint32) bool {
	switch t.Machine() {
	case arch.EM_X86_64:
		return relType == 22 // R_X86_64_GOTTPOFF
	case arch.EM_ARM64:
		return relType == 1034 // R_AARCH64_TLSIE_ADR_GOTTPREL_PAGE21 family root
	case arch.EM_RISCV:
		return relType == 20 // R_RISCV_TLS_GOT_HI20
	default:
		return true
	}
}
