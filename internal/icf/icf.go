// Package icf implements stage 4, spec.md §4.4: identical code folding by
// partition refinement. New code (flapc emits one section per function and
// never folds); the refinement loop follows the classic partition-
// refinement shape spec.md describes directly ("initial bucket = hash of
// content bytes ...; each refinement round re-hashes using the neighbor's
// current bucket id; equality stabilizes in O(log N) rounds").
package icf

import (
	"hash/fnv"
	"sort"

	"github.com/xyproto/ldcore/internal/iobj"
)

// Candidate is one ICF-eligible section plus the resolved targets of its
// relocations, needed each refinement round to re-hash against neighbors'
// current bucket ids.
type Candidate struct {
	Section   *iobj.InputSection
	Targets   []*Candidate // relocation targets that are themselves eligible
	FilePrio  int
	SecIndex  int

	bucket uint64
}

// initialHash seeds a Candidate's bucket from content bytes, alignment,
// and relocation count, per spec.md §4.4's "initial bucket = hash of
// content bytes, alignment, relocation count."
func initialHash(c *Candidate) uint64 {
	h := fnv.New64a()
	h.Write(c.Section.Contents)
	h.Write([]byte{c.Section.P2Align})
	var relCountBuf [8]byte
	n := len(c.Section.Relocs)
	for i := 0; i < 8; i++ {
		relCountBuf[i] = byte(n >> (8 * i))
	}
	h.Write(relCountBuf[:])
	return h.Sum64()
}

// Fold runs the refinement rounds, at most maxRounds(len(candidates)) of
// them (see refine for why the bound is what ends the loop), then
// deterministically picks a leader per final bucket (file priority, then
// section index — spec.md §4.4: "Deterministic tie-break on file priority
// + section index chooses the leader"), and sets Leader on every member.
func Fold(candidates []*Candidate) {
	if len(candidates) == 0 {
		return
	}
	for _, c := range candidates {
		c.bucket = initialHash(c)
	}

	for round := 0; round < maxRounds(len(candidates)); round++ {
		changed := refine(candidates)
		if !changed {
			break
		}
	}

	buckets := map[uint64][]*Candidate{}
	for _, c := range candidates {
		buckets[c.bucket] = append(buckets[c.bucket], c)
	}

	for _, members := range buckets {
		if len(members) < 2 {
			members[0].Section.Leader = members[0].Section
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			if members[i].FilePrio != members[j].FilePrio {
				return members[i].FilePrio < members[j].FilePrio
			}
			return members[i].SecIndex < members[j].SecIndex
		})
		leader := members[0].Section
		for _, m := range members {
			m.Section.Leader = leader
		}
	}
}

// refine performs one round: each candidate's bucket is re-hashed from its
// current bucket id plus the current bucket ids of its relocation targets.
// Returns whether any bucket id changed. Since every id is re-hashed each
// round, ids keep changing even after the partition has stopped splitting,
// so in practice this returns true every round and Fold runs the full
// maxRounds bound.
func refine(candidates []*Candidate) bool {
	next := make([]uint64, len(candidates))
	changed := false
	for i, c := range candidates {
		h := fnv.New64a()
		var buf [8]byte
		putU64(&buf, c.bucket)
		h.Write(buf[:])
		for _, t := range c.Targets {
			putU64(&buf, t.bucket)
			h.Write(buf[:])
		}
		next[i] = h.Sum64()
	}
	for i, c := range candidates {
		if next[i] != c.bucket {
			changed = true
		}
	}
	for i, c := range candidates {
		c.bucket = next[i]
	}
	return changed
}

func putU64(buf *[8]byte, v uint64) {
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
}

// maxRounds bounds refinement at O(log N) + a small constant, matching
// spec.md §4.4's stated convergence bound while guaranteeing termination
// even on pathological inputs.
func maxRounds(n int) int {
	r := 1
	for 1<<r < n {
		r++
	}
	return r + 4
}

// Eligible wraps iobj.InputSection.IsEligibleForICF plus the additional
// §4.4 rule that .ctors/.dtors sections are retained literally (never
// folded) even though they may otherwise look ICF-eligible.
func Eligible(s *iobj.InputSection, icfAll bool) bool {
	if hasPrefix(s.Name, ".ctors") || hasPrefix(s.Name, ".dtors") {
		return false
	}
	return s.IsEligibleForICF(icfAll)
}

func hasPrefix(s, p string) bool {
	return len(s) >= len(p) && s[:len(p)] == p
}
