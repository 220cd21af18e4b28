package linkscript

import "path/filepath"

// Assignment is the resolved outcome for one symbol after a version
// script's global:/local: lists are applied: which version index it
// binds to, and whether it ends up STB_LOCAL (hidden) or keeps its
// original binding.
type Assignment struct {
	VersionIndex int
	Local        bool
}

// VerNdxLocal and VerNdxGlobal mirror the ELF reserved version indices
// (SHN_UNDEF-adjacent VER_NDX_* constants), spec.md §6.
const (
	VerNdxLocal  = 0
	VerNdxGlobal = 1
)

// Resolve walks every version block in file order (GNU ld: later blocks
// win ties, an explicit local: match beats a global: match within the
// same block) and returns the assignment for name, given its already
// demangled form for extern "C++" pattern matching.
func (vs *VersionScript) Resolve(name, demangled string) (Assignment, bool) {
	var best Assignment
	matched := false
	var wildcardFallback *Assignment
	for _, sv := range vs.Versions {
		// Specific (non-wildcard) patterns take priority over a bare "*"
		// catch-all in either list, mirroring GNU ld's "most specific
		// pattern wins" rule; global is checked first per §6's default
		// that an unlabeled script implies global visibility.
		if matchSpecific(sv.Global, name, demangled) {
			best = Assignment{VersionIndex: sv.Index, Local: false}
			matched = true
			continue
		}
		if matchSpecific(sv.Local, name, demangled) {
			best = Assignment{VersionIndex: sv.Index, Local: true}
			matched = true
			continue
		}
		if hasWildcardLocal(sv.Local) {
			a := Assignment{VersionIndex: sv.Index, Local: true}
			wildcardFallback = &a
		}
	}
	if matched {
		return best, true
	}
	if wildcardFallback != nil {
		return *wildcardFallback, true
	}
	return best, false
}

func matchSpecific(pats []Pattern, name, demangled string) bool {
	for _, pat := range pats {
		if pat.IsWildcardLocal {
			continue
		}
		candidate := name
		if pat.IsCXXDemangled {
			candidate = demangled
		}
		if ok, _ := filepath.Match(pat.Text, candidate); ok {
			return true
		}
		if pat.Text == candidate {
			return true
		}
	}
	return false
}

func hasWildcardLocal(pats []Pattern) bool {
	for _, pat := range pats {
		if pat.IsWildcardLocal {
			return true
		}
	}
	return false
}

// HasExplicitLocalCatchAll reports whether any version block declares a
// bare `local: *;` catch-all, meaning every symbol not otherwise matched
// by a global: pattern is reduced to STB_LOCAL (hidden) on output —
// spec.md §6's default-visibility note for version scripts.
func (vs *VersionScript) HasExplicitLocalCatchAll() bool {
	for _, sv := range vs.Versions {
		for _, p := range sv.Local {
			if p.IsWildcardLocal {
				return true
			}
		}
	}
	return false
}
