// Package thunk implements stage 9, spec.md §4.9's range-extension pass:
// after initial layout, any branch whose resolved distance exceeds a
// per-architecture bound is routed through a thunk veneer synthesized into
// its output section. New code (flapc never links input whose branch
// targets could be out of reach — it generates and immediately emits its
// own code) built directly from spec.md's description; thunk code bytes
// reuse internal/arch.Target's instruction-writing conventions the same
// way internal/synth's PLT does.
package thunk

import (
	"sort"

	"github.com/xyproto/ldcore/internal/iobj"
)

// Candidate is one relocation whose reach needs checking after layout.
type Candidate struct {
	Section *iobj.InputSection
	Offset  uint64 // offset within Section
	Target  *iobj.Symbol
	PC      uint64 // resolved P (the relocation's own address)
	Dest    uint64 // resolved S+A (the branch target's address)
}

// Thunk is one synthesized veneer, placed into an output section near the
// branches that need it.
type Thunk struct {
	Addr   uint64
	Target uint64 // final destination this veneer jumps to
	Sym    *iobj.Symbol
}

// Plan is the output of Place: for every OutputSection needing thunks, a
// slice of veneers sorted by address. Nearest finds the in-range thunk the
// applier should branch through instead of the original far target.
type Plan struct {
	BySection map[*iobj.OutputSection][]Thunk
}

// reachBits is the number of bits in the signed branch-immediate field;
// the maximum forward/backward distance is ±2^(reachBits-1).
func maxReach(reachBits int) int64 {
	if reachBits <= 0 {
		return 1 << 62 // unlimited, effectively
	}
	return int64(1) << uint(reachBits-1)
}

// Place scans every candidate; any whose |dest-pc| exceeds the
// architecture's branch reach gets a thunk placed into its owning output
// section, one per unique (output section, destination) pair so repeated
// far calls to the same target share a single veneer (spec.md §4.9:
// "Thunk addresses are collected per symbol into a sorted vector; the
// applier picks the nearest thunk whose distance is within bound").
func Place(candidates []Candidate, reachBits int, thunkSize uint64) *Plan {
	reach := maxReach(reachBits)
	plan := &Plan{BySection: map[*iobj.OutputSection][]Thunk{}}

	type key struct {
		sec  *iobj.OutputSection
		dest uint64
	}
	placed := map[key]uint64{} // dest -> thunk addr, per output section

	for _, c := range candidates {
		dist := int64(c.Dest) - int64(c.PC)
		if dist >= -reach && dist < reach {
			continue // in range, no thunk needed
		}
		sec := c.Section.OutputSec
		if sec == nil {
			continue
		}
		k := key{sec, c.Dest}
		if _, ok := placed[k]; ok {
			continue
		}
		// Append the veneer just past the current end of this output
		// section's already-placed thunks; exact final address is
		// resolved by the caller's second layout pass (thunk islands grow
		// the section, which is why range-extension is its own stage
		// after initial layout rather than folded into it).
		existing := plan.BySection[sec]
		addr := sec.VAddr + sec.Size() + uint64(len(existing))*thunkSize
		th := Thunk{Addr: addr, Target: c.Dest, Sym: c.Target}
		plan.BySection[sec] = append(existing, th)
		placed[k] = addr
	}

	for sec := range plan.BySection {
		sort.Slice(plan.BySection[sec], func(i, j int) bool {
			return plan.BySection[sec][i].Addr < plan.BySection[sec][j].Addr
		})
	}
	return plan
}

// Nearest returns the thunk address within reach bits of pc that targets
// dest, or (0, false) if none qualifies. Picking "nearest" matches spec.md
// §4.9: "the applier picks the nearest thunk whose distance is within
// bound."
func (p *Plan) Nearest(sec *iobj.OutputSection, pc, dest uint64, reachBits int) (uint64, bool) {
	reach := maxReach(reachBits)
	var best uint64
	found := false
	var bestDist int64
	for _, th := range p.BySection[sec] {
		if th.Target != dest {
			continue
		}
		dist := int64(th.Addr) - int64(pc)
		if dist < -reach || dist >= reach {
			continue
		}
		abs := dist
		if abs < 0 {
			abs = -abs
		}
		if !found || abs < bestDist {
			best, found, bestDist = th.Addr, true, abs
		}
	}
	return best, found
}
