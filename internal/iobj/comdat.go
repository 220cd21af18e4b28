package iobj

import "sync/atomic"

// ComdatGroup is a named set of section indices within one file; other
// files' equal-named groups are discarded entirely (spec.md §3/§4.1).
type ComdatGroup struct {
	Signature string
	Members   []int // section indices within File

	File *ObjectFile

	// owner is a pointer identity used for the atomic claim described in
	// spec.md §3: "Claimed via atomic compare-and-swap on the group's owner
	// field (lower file priority wins)." We store the owning file's
	// priority packed with a generation-free pointer; simplest correct
	// encoding is a pointer to the owning ObjectFile guarded by CAS.
	owner atomic.Pointer[ObjectFile]
}

// TryClaim attempts to make f the owner of this group. It succeeds only if
// no owner is set yet, or f has strictly lower priority than the current
// owner (lower wins ties per spec.md §3). Returns true if f now owns (or
// already owned) the group.
func (g *ComdatGroup) TryClaim(f *ObjectFile) bool {
	for {
		cur := g.owner.Load()
		if cur == nil {
			if g.owner.CompareAndSwap(nil, f) {
				return true
			}
			continue
		}
		if cur == f {
			return true
		}
		if f.Priority < cur.Priority {
			if g.owner.CompareAndSwap(cur, f) {
				return true
			}
			continue
		}
		return false
	}
}

func (g *ComdatGroup) Owner() *ObjectFile { return g.owner.Load() }
