// Package gc implements stage 3, spec.md §4.3: the --gc-sections mark/sweep
// over the section graph. New code (flapc never discards sections — it
// emits exactly what it generates); the traversal itself is built on
// internal/workrun's FeederQueue, the work-stealing queue spec.md §4.3
// calls for.
package gc

import (
	"regexp"
	"strings"

	"github.com/xyproto/ldcore/internal/iobj"
	"github.com/xyproto/ldcore/internal/workrun"
)

const (
	shfAlloc = 0x2

	shtNull         = 0
	shtNote         = 7
	shtInitArray    = 14
	shtFiniArray    = 15
	shtPreinitArray = 16
)

var cIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsRoot implements spec.md §4.3's root-set predicate. gnuRetain reports
// whether the section carries SHF_GNU_RETAIN (0x200000, checked by the
// caller against the raw sh_flags since it's architecture-independent but
// not modeled as its own bit elsewhere); startStopReferenced holds the
// __start_/__stop_ C-identifier section names actually referenced, so a
// C-identifier-named section is a root only when genuinely used that way.
func IsRoot(s *iobj.InputSection, gnuRetain bool, startStopReferenced map[string]bool) bool {
	if gnuRetain {
		return true
	}
	switch s.ShType {
	case shtNote, shtInitArray, shtFiniArray, shtPreinitArray:
		return true
	}
	for _, p := range []string{".ctors", ".dtors", ".init", ".fini"} {
		if strings.HasPrefix(s.Name, p) {
			return true
		}
	}
	if cIdentifier.MatchString(s.Name) && startStopReferenced[s.Name] {
		return true
	}
	return false
}

// Edge is the minimal section-graph view mark-live needs: resolved
// relocation targets per section, independent of internal/iobj.Reloc's raw
// SymIdx so the walk doesn't need the owning file's symbol table in hand
// at every step.
type Edge struct {
	To      *iobj.InputSection
	ToFrag  *iobj.SectionFragment
}

// MarkLive runs the transitive closure from roots over edges(s), marking
// every reached section (and fragment) alive. This is spec.md §4.3's
// "walks relocations transitively (work-stealing queue)." exidxOf supplies
// ARM32's ".ARM.exidx companion section" back-pointer (nil on other
// architectures).
func MarkLive(roots []*iobj.InputSection, edges func(*iobj.InputSection) []Edge, exidxOf func(*iobj.InputSection) *iobj.InputSection, numWorkers int) {
	seedRoots := make([]*iobj.InputSection, 0, len(roots))
	for _, r := range roots {
		if r.MarkVisited() {
			r.SetAlive(true)
			seedRoots = append(seedRoots, r)
			if exidxOf != nil {
				if x := exidxOf(r); x != nil && x.MarkVisited() {
					x.SetAlive(true)
					seedRoots = append(seedRoots, x)
				}
			}
		}
	}

	q := workrun.NewFeederQueue(seedRoots, 256)
	q.Drain(numWorkers, func(s *iobj.InputSection, push func(*iobj.InputSection)) {
		for _, e := range edges(s) {
			if e.ToFrag != nil {
				e.ToFrag.MarkAlive()
			}
			if e.To == nil {
				continue
			}
			if e.To.MarkVisited() {
				e.To.SetAlive(true)
				push(e.To)
				if exidxOf != nil {
					if x := exidxOf(e.To); x != nil && x.MarkVisited() {
						x.SetAlive(true)
						push(x)
					}
				}
			}
		}
	})
}

// Sweep implements spec.md §4.3's sweep step: unmarked SHF_ALLOC input
// sections are killed, and --print-gc-sections logging (left to the
// caller via the report callback) is invoked for each. Their FDEs need no
// separate kill step: FdeRecord.IsAlive checks FuncSection.IsAlive, so a
// dead section's FDEs are dead automatically (spec.md §3's invariant: "a
// dead section has every FDE marked dead").
func Sweep(all []*iobj.InputSection, report func(*iobj.InputSection)) {
	for _, s := range all {
		if s.ShFlags&shfAlloc == 0 {
			continue
		}
		if s.IsAlive() {
			continue
		}
		if report != nil {
			report(s)
		}
	}
}
