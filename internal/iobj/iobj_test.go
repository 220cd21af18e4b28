package iobj

import "testing"

func TestOutranksLatticeOrder(t *testing.T) {
	// regular-defined beats shared-defined regardless of weak/priority.
	if !Outranks(BindSharedDefined, false, 1, BindRegularDefined, true, 99) {
		t.Fatal("regular-defined (even weak, even lower priority) must outrank shared-defined")
	}
	// within the same bucket, strong beats weak.
	if !Outranks(BindRegularDefined, true, 1, BindRegularDefined, false, 1) {
		t.Fatal("strong must outrank weak within the same bucket")
	}
	// equal bucket and strength: lower priority number wins.
	if !Outranks(BindRegularDefined, false, 5, BindRegularDefined, false, 2) {
		t.Fatal("lower priority number must win a tie")
	}
	if Outranks(BindRegularDefined, false, 2, BindRegularDefined, false, 5) {
		t.Fatal("higher priority number must not win a tie")
	}
}

func TestComdatGroupLowerPriorityWins(t *testing.T) {
	g := &ComdatGroup{Signature: "_ZTV1A"}
	f1 := &ObjectFile{Name: "a.o", Priority: 5}
	f2 := &ObjectFile{Name: "b.o", Priority: 1}

	if !g.TryClaim(f1) {
		t.Fatal("first claim must succeed")
	}
	if !g.TryClaim(f2) {
		t.Fatal("lower-priority file must be able to steal the claim")
	}
	if g.Owner() != f2 {
		t.Fatalf("owner = %v, want f2", g.Owner())
	}
	if g.TryClaim(f1) {
		t.Fatal("higher-priority file must not reclaim after losing")
	}
}

func TestInputSectionICFEligibility(t *testing.T) {
	const shfAlloc = 0x2
	s := &InputSection{Name: ".text.foo", ShFlags: shfAlloc}
	s.SetAlive(true)
	if !s.IsEligibleForICF(false) {
		t.Fatal("plain alive alloc section should be ICF-eligible")
	}

	ctor := &InputSection{Name: ".init_array", ShFlags: shfAlloc}
	ctor.SetAlive(true)
	if ctor.IsEligibleForICF(false) {
		t.Fatal(".init_array must never be ICF-eligible")
	}

	s.AddressTaken = true
	if s.IsEligibleForICF(false) {
		t.Fatal("address-taken section must be excluded unless icf=all")
	}
	if !s.IsEligibleForICF(true) {
		t.Fatal("address-taken section must be included under icf=all")
	}
}

func TestOutputSectionRecomputePacksByAlignment(t *testing.T) {
	o := NewOutputSection(".text", 0x6, 1, 16)
	a := &InputSection{ShSize: 3, P2Align: 0}
	b := &InputSection{ShSize: 5, P2Align: 2} // align to 4
	o.Members = []*InputSection{a, b}

	size := o.Recompute()
	if a.OutputOffset != 0 {
		t.Fatalf("a offset = %d, want 0", a.OutputOffset)
	}
	if b.OutputOffset != 4 {
		t.Fatalf("b offset = %d, want 4 (aligned up from 3)", b.OutputOffset)
	}
	if size != 9 {
		t.Fatalf("size = %d, want 9", size)
	}
}

func TestSymbolNeedsBitsAreIndependent(t *testing.T) {
	s := &Symbol{}
	s.SetNeeds(NeedsGOT)
	s.SetNeeds(NeedsPLT)
	if !s.HasNeeds(NeedsGOT) || !s.HasNeeds(NeedsPLT) {
		t.Fatal("both need-bits should be set independently")
	}
	if s.HasNeeds(NeedsTLSGD) {
		t.Fatal("unset bit must read as unset")
	}
}

func TestSymbolAuxAllocatedOnce(t *testing.T) {
	s := &Symbol{}
	a1 := s.Aux()
	a2 := s.Aux()
	if a1 != a2 {
		t.Fatal("Aux must allocate exactly once and be stable across calls")
	}
	if a1.GOTIdx != -1 {
		t.Fatalf("fresh SymbolAux.GOTIdx = %d, want -1 sentinel", a1.GOTIdx)
	}
}
