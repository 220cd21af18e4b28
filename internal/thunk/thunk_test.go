package thunk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/ldcore/internal/iobj"
)

func TestPlaceSkipsInRangeBranches(t *testing.T) {
	sec := iobj.NewOutputSection(".text", 0x6, 1, 16)
	isec := &iobj.InputSection{OutputSec: sec}
	cands := []Candidate{{Section: isec, PC: 0x1000, Dest: 0x1010, Target: &iobj.Symbol{Name: "f"}}}
	plan := Place(cands, 26, 4)
	require.Empty(t, plan.BySection[sec])
}

func TestPlaceAddsThunkForOutOfRangeBranch(t *testing.T) {
	sec := iobj.NewOutputSection(".text", 0x6, 1, 16)
	isec := &iobj.InputSection{OutputSec: sec}
	far := uint64(1) << 28
	cands := []Candidate{{Section: isec, PC: 0x1000, Dest: 0x1000 + far, Target: &iobj.Symbol{Name: "f"}}}
	plan := Place(cands, 26, 4)
	require.Len(t, plan.BySection[sec], 1)
}

func TestPlaceDedupsSameDestination(t *testing.T) {
	sec := iobj.NewOutputSection(".text", 0x6, 1, 16)
	isec := &iobj.InputSection{OutputSec: sec}
	far := uint64(1) << 28
	dest := uint64(0x1000) + far
	cands := []Candidate{
		{Section: isec, PC: 0x1000, Dest: dest, Target: &iobj.Symbol{Name: "f"}},
		{Section: isec, PC: 0x2000, Dest: dest, Target: &iobj.Symbol{Name: "f"}},
	}
	plan := Place(cands, 26, 4)
	require.Len(t, plan.BySection[sec], 1)
}
