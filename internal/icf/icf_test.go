package icf

import (
	"testing"

	"github.com/xyproto/ldcore/internal/iobj"
)

func TestFoldIdenticalSectionsShareALeader(t *testing.T) {
	a := &iobj.InputSection{Name: ".text.f.a", Contents: []byte{0xc3}} // ret
	b := &iobj.InputSection{Name: ".text.f.b", Contents: []byte{0xc3}}

	ca := &Candidate{Section: a, FilePrio: 1, SecIndex: 0}
	cb := &Candidate{Section: b, FilePrio: 2, SecIndex: 0}

	Fold([]*Candidate{ca, cb})

	if a.Leader != b.Leader {
		t.Fatalf("identical sections must share a leader: a.Leader=%v b.Leader=%v", a.Leader, b.Leader)
	}
	// Lower file priority wins the tie-break (spec.md §4.4).
	if a.Leader != a {
		t.Fatalf("leader should be a (lower file priority), got %v", a.Leader)
	}
}

func TestFoldDistinctContentDoesNotMerge(t *testing.T) {
	a := &iobj.InputSection{Name: ".text.f", Contents: []byte{0xc3}}
	b := &iobj.InputSection{Name: ".text.g", Contents: []byte{0x90, 0xc3}}

	ca := &Candidate{Section: a, FilePrio: 1}
	cb := &Candidate{Section: b, FilePrio: 2}
	Fold([]*Candidate{ca, cb})

	if a.Leader == b.Leader {
		t.Fatal("sections with different content must not be folded together")
	}
}

func TestFoldDistinguishesByRelocationTarget(t *testing.T) {
	// Two sections with identical bytes but whose single relocation
	// targets sections that are themselves in different final buckets
	// must end up in different buckets after refinement.
	a := &iobj.InputSection{Name: ".text.a", Contents: []byte{0xe8, 0, 0, 0, 0}}
	b := &iobj.InputSection{Name: ".text.b", Contents: []byte{0xe8, 0, 0, 0, 0}}
	tA := &iobj.InputSection{Name: ".text.targetA", Contents: []byte{0x01}}
	tB := &iobj.InputSection{Name: ".text.targetB", Contents: []byte{0x02}}

	cA := &Candidate{Section: a, FilePrio: 1}
	cB := &Candidate{Section: b, FilePrio: 2}
	ctA := &Candidate{Section: tA, FilePrio: 1}
	ctB := &Candidate{Section: tB, FilePrio: 2}
	cA.Targets = []*Candidate{ctA}
	cB.Targets = []*Candidate{ctB}

	Fold([]*Candidate{cA, cB, ctA, ctB})

	if a.Leader == b.Leader {
		t.Fatal("sections calling distinct, non-identical targets must not fold together")
	}
}

func TestEligibleExcludesCtorsDtors(t *testing.T) {
	const shfAlloc = 0x2
	s := &iobj.InputSection{Name: ".ctors", ShFlags: shfAlloc}
	s.SetAlive(true)
	if Eligible(s, false) {
		t.Fatal(".ctors must never be ICF-eligible")
	}
}
