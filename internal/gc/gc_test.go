package gc

import (
	"testing"

	"github.com/xyproto/ldcore/internal/iobj"
)

func newSec(name string) *iobj.InputSection {
	return &iobj.InputSection{Name: name, ShFlags: shfAlloc}
}

func TestMarkLiveTransitiveClosure(t *testing.T) {
	a := newSec(".text.a")
	b := newSec(".text.b")
	c := newSec(".text.c") // reachable only through b
	graph := map[*iobj.InputSection][]Edge{
		a: {{To: b}},
		b: {{To: c}},
	}

	MarkLive([]*iobj.InputSection{a}, func(s *iobj.InputSection) []Edge { return graph[s] }, nil, 2)

	if !a.IsAlive() || !b.IsAlive() || !c.IsAlive() {
		t.Fatal("a, b, and c must all be alive (root plus transitively reachable)")
	}
}

func TestMarkLiveDoesNotReachDisconnectedSections(t *testing.T) {
	a := newSec(".text.a")
	isolated := newSec(".text.isolated")
	graph := map[*iobj.InputSection][]Edge{}

	MarkLive([]*iobj.InputSection{a}, func(s *iobj.InputSection) []Edge { return graph[s] }, nil, 2)

	if !a.IsAlive() {
		t.Fatal("root must be alive")
	}
	if isolated.IsAlive() {
		t.Fatal("disconnected section must not be marked alive")
	}
}

func TestMarkLiveMarksFragments(t *testing.T) {
	a := newSec(".rodata.a")
	frag := &iobj.SectionFragment{}
	graph := map[*iobj.InputSection][]Edge{
		a: {{ToFrag: frag}},
	}

	MarkLive([]*iobj.InputSection{a}, func(s *iobj.InputSection) []Edge { return graph[s] }, nil, 1)

	if !frag.IsAlive() {
		t.Fatal("fragment reachable from a root section must be marked alive")
	}
}

func TestMarkLiveFollowsExidxCompanion(t *testing.T) {
	a := newSec(".text.a")
	exidx := newSec(".ARM.exidx.a")
	graph := map[*iobj.InputSection][]Edge{}
	exidxOf := func(s *iobj.InputSection) *iobj.InputSection {
		if s == a {
			return exidx
		}
		return nil
	}

	MarkLive([]*iobj.InputSection{a}, func(s *iobj.InputSection) []Edge { return graph[s] }, exidxOf, 1)

	if !exidx.IsAlive() {
		t.Fatal("ARM32 .ARM.exidx companion must be marked alive alongside its section")
	}
}

func TestSweepReportsOnlyDeadAllocSections(t *testing.T) {
	alive := newSec(".text.alive")
	alive.SetAlive(true)
	dead := newSec(".text.dead")
	nonAlloc := &iobj.InputSection{Name: ".comment", ShFlags: 0}

	var reported []string
	Sweep([]*iobj.InputSection{alive, dead, nonAlloc}, func(s *iobj.InputSection) {
		reported = append(reported, s.Name)
	})

	if len(reported) != 1 || reported[0] != ".text.dead" {
		t.Fatalf("reported = %v, want just [.text.dead]", reported)
	}
}

func TestIsRootRecognizesCIdentifierSections(t *testing.T) {
	s := &iobj.InputSection{Name: "my_section", ShType: shtNull}
	if IsRoot(s, false, map[string]bool{"my_section": false}) {
		t.Fatal("C-identifier section not actually referenced by __start_/__stop_ must not be a root")
	}
	if !IsRoot(s, false, map[string]bool{"my_section": true}) {
		t.Fatal("C-identifier section referenced by __start_/__stop_ must be a root")
	}
}

func TestIsRootRecognizesCtorsDtors(t *testing.T) {
	s := &iobj.InputSection{Name: ".ctors.65535"}
	if !IsRoot(s, false, nil) {
		t.Fatal(".ctors sections must always be roots")
	}
}
