package scan

import (
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/xyproto/ldcore/internal/arch" // register targets
	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

func mustTarget(t *testing.T) arch.Target {
	t.Helper()
	tgt, err := arch.Lookup(arch.EM_X86_64)
	require.NoError(t, err)
	return tgt
}

func TestScanSectionPLT32SetsNeedsPLTOnImported(t *testing.T) {
	tgt := mustTarget(t)
	sym := &iobj.Symbol{Name: "printf", File: &iobj.ObjectFile{IsDSO: true}}
	sec := &iobj.InputSection{
		ShFlags: 0x6, // ALLOC|EXECINSTR
		Relocs:  []iobj.Reloc{{Type: arch.R_X86_64_PLT32, SymIdx: 1}},
	}
	res := &Result{}
	ScanSection(tgt, sec, func(uint32) *iobj.Symbol { return sym }, func(*iobj.Symbol) bool { return false }, Options{}, res)
	require.True(t, sym.HasNeeds(iobj.NeedsPLT))
}

func TestScanSectionGOTPCRELSetsNeedsGOT(t *testing.T) {
	tgt := mustTarget(t)
	sym := &iobj.Symbol{Name: "errno", File: &iobj.ObjectFile{IsDSO: true}}
	sec := &iobj.InputSection{
		ShFlags: 0x6,
		Relocs:  []iobj.Reloc{{Type: arch.R_X86_64_GOTPCREL, SymIdx: 1}},
	}
	res := &Result{}
	ScanSection(tgt, sec, func(uint32) *iobj.Symbol { return sym }, func(*iobj.Symbol) bool { return false }, Options{}, res)
	require.True(t, sym.HasNeeds(iobj.NeedsGOT))
}

func TestScanSectionCopyRelocPromotionOnNoPIE(t *testing.T) {
	tgt := mustTarget(t)
	sym := &iobj.Symbol{Name: "environ", File: &iobj.ObjectFile{IsDSO: true}}
	sec := &iobj.InputSection{
		ShFlags: 0x2, // ALLOC, read-only, not executable -> data
		Relocs:  []iobj.Reloc{{Type: arch.R_X86_64_64, SymIdx: 1}},
	}
	res := &Result{}
	opts := Options{NoPIE: true, ZCopyReloc: true}
	ScanSection(tgt, sec, func(uint32) *iobj.Symbol { return sym }, func(*iobj.Symbol) bool { return false }, opts, res)
	require.True(t, sym.HasNeeds(iobj.NeedsCopyrel))
	require.True(t, sym.HasCopyrel)
	require.Len(t, res.AbsRels, 1)
	require.Equal(t, AbsRelNone, res.AbsRels[0].Kind)
}

func TestScanSectionIFuncGetsIRelative(t *testing.T) {
	tgt := mustTarget(t)
	sym := &iobj.Symbol{Name: "resolve_memcpy"}
	sec := &iobj.InputSection{
		ShFlags: 0x3, // ALLOC|WRITE
		Relocs:  []iobj.Reloc{{Type: arch.R_X86_64_64, SymIdx: 1}},
	}
	res := &Result{}
	ScanSection(tgt, sec, func(uint32) *iobj.Symbol { return sym }, func(*iobj.Symbol) bool { return true }, Options{}, res)
	require.Len(t, res.IFuncSyms, 1)
	require.Equal(t, AbsRelIFunc, res.AbsRels[0].Kind)
}

func TestScanSectionPlainDataInWritableSectionBecomesRelrCandidate(t *testing.T) {
	tgt := mustTarget(t)
	sym := &iobj.Symbol{Name: "g", File: &iobj.ObjectFile{IsDSO: false}}
	sec := &iobj.InputSection{
		ShFlags: 0x3, // ALLOC|WRITE
		Relocs:  []iobj.Reloc{{Type: arch.R_X86_64_64, SymIdx: 1}},
	}
	res := &Result{}
	opts := Options{PIE: true}
	ScanSection(tgt, sec, func(uint32) *iobj.Symbol { return sym }, func(*iobj.Symbol) bool { return false }, opts, res)
	require.Equal(t, AbsRelRELR, res.AbsRels[0].Kind)
}
