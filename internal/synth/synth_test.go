package synth

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
	"github.com/xyproto/ldcore/internal/scan"
)

func x64(t *testing.T) arch.Target {
	t.Helper()
	tgt, err := arch.Lookup(arch.EM_X86_64)
	require.NoError(t, err)
	return tgt
}

func TestBuildRELRPacksConsecutiveWords(t *testing.T) {
	// 1000 consecutive pointer-sized slots, spec.md §8 scenario 2.
	offsets := make([]uint64, 1000)
	for i := range offsets {
		offsets[i] = uint64(i) * 8
	}
	packed := BuildRELR(8, offsets)
	require.NotEmpty(t, packed)
	// Expand and check it reproduces exactly the input set (§8 invariant).
	var expanded []uint64
	i := 0
	for i < len(packed) {
		anchor := packed[i]
		expanded = append(expanded, anchor)
		i++
		for i < len(packed) && packed[i]&1 == 1 {
			bitmap := packed[i] >> 1
			for b := uint(0); b < 63; b++ {
				if bitmap&(1<<b) != 0 {
					expanded = append(expanded, anchor+uint64(b+1)*8)
				}
			}
			i++
		}
	}
	require.ElementsMatch(t, offsets, expanded)
}

func TestDynstrDedup(t *testing.T) {
	d := NewDynstr(".dynstr")
	a := d.Add("printf")
	b := d.Add("malloc")
	c := d.Add("printf")
	require.Equal(t, a, c)
	require.NotEqual(t, a, b)
}

func TestCopyRelSectionAliasesShareOffset(t *testing.T) {
	c := NewCopyRelSection(".copyrel", false)
	sym1 := &iobj.Symbol{Name: "environ"}
	sym2 := &iobj.Symbol{Name: "__environ"} // alias, same DSO + value
	dso := &iobj.ObjectFile{Name: "libc.so.6"}
	sym1.File, sym2.File = dso, dso

	c.Add(sym1, 0x1000, 8, 8)
	c.Add(sym2, 0x1000, 8, 8)

	require.Equal(t, c.OffsetOf(sym1), c.OffsetOf(sym2))
	require.EqualValues(t, 8, c.Size())
	require.True(t, sym1.HasCopyrel)
	require.True(t, sym2.HasCopyrel)
}

func TestCopyRelSectionDistinctSymbolsGetDistinctOffsets(t *testing.T) {
	c := NewCopyRelSection(".copyrel", false)
	dso := &iobj.ObjectFile{Name: "libc.so.6"}
	sym1 := &iobj.Symbol{Name: "a", File: dso}
	sym2 := &iobj.Symbol{Name: "b", File: dso}
	c.Add(sym1, 0x1000, 4, 4)
	c.Add(sym2, 0x2000, 4, 4)
	require.NotEqual(t, c.OffsetOf(sym1), c.OffsetOf(sym2))
	require.EqualValues(t, 8, c.Size())
}

func TestGOTPLTReservesThreeHeaderWords(t *testing.T) {
	tgt := x64(t)
	plt := NewPLT(tgt)
	plt.AddSymbol(&iobj.Symbol{Name: "printf"})
	gp := NewGOTPLT(tgt, plt)
	require.EqualValues(t, (3+1)*8, gp.Size())
}

func TestDynsymFinalizeExportedSortsByGnuBucketThenDjb(t *testing.T) {
	strtab := NewDynstr(".dynstr")
	tgt := x64(t)
	ds := NewDynsym(tgt, strtab)
	syms := []*iobj.Symbol{
		{Name: "zzz"}, {Name: "aaa"}, {Name: "mmm"},
	}
	ds.FinalizeExported(syms, func(*iobj.Symbol) uint8 { return 0x10 },
		func(s *iobj.Symbol) (uint64, uint64) { return 0, 0 }, 4)

	// Every exported entry's bucket must be non-decreasing across the
	// sorted half (spec.md §8 Dynsym invariant).
	entries := ds.Entries()[1:]
	lastBucket := uint32(0)
	for _, e := range entries {
		b := GnuHashValue(e.Sym.Name) % 4
		require.GreaterOrEqual(t, b, lastBucket)
		lastBucket = b
	}
}

func TestPLTSizeAccountsForHeaderAndEntries(t *testing.T) {
	tgt := x64(t)
	p := NewPLT(tgt)
	p.AddSymbol(&iobj.Symbol{Name: "f1"})
	p.AddSymbol(&iobj.Symbol{Name: "f2"})
	require.EqualValues(t, 16+16+16, p.Size())
}

func importedSym(t *testing.T, name string, dynSymIdx int32) *iobj.Symbol {
	t.Helper()
	sym := &iobj.Symbol{Name: name, IsImported: true}
	sym.Aux().DynSymIdx = dynSymIdx
	return sym
}

func TestBuildDynRelocsGotRegularImportedGetsGlobDat(t *testing.T) {
	tgt := x64(t)
	got := NewGOT(tgt)
	plt := NewPLT(tgt)
	sym := importedSym(t, "errno_location", 3)
	got.AddGotSymbol(sym)

	dynRel, pltRel, relr := BuildDynRelocs(tgt, got, plt, 0x2000, 0x3000, nil, nil, false)
	require.Empty(t, pltRel.Entries)
	require.Empty(t, relr)
	require.Len(t, dynRel.Entries, 1)
	require.EqualValues(t, arch.R_X86_64_GLOB_DAT, dynRel.Entries[0].Type)
	require.EqualValues(t, 0x2000, dynRel.Entries[0].Offset)
	require.EqualValues(t, 3, dynRel.Entries[0].SymIdx)
}

func TestBuildDynRelocsGotRegularLocalSymbolSkipsDynReloc(t *testing.T) {
	tgt := x64(t)
	got := NewGOT(tgt)
	plt := NewPLT(tgt)
	sym := &iobj.Symbol{Name: "local_var", IsImported: false}
	got.AddGotSymbol(sym)

	dynRel, _, _ := BuildDynRelocs(tgt, got, plt, 0x2000, 0x3000, nil, nil, false)
	require.Empty(t, dynRel.Entries)
}

func TestBuildDynRelocsPLTJumpSlotVsIRelative(t *testing.T) {
	tgt := x64(t)
	got := NewGOT(tgt)
	plt := NewPLT(tgt)
	fn := importedSym(t, "printf", 5)
	ifn := importedSym(t, "resolve_memcpy", 6)
	plt.AddSymbol(fn)
	plt.AddSymbol(ifn)

	_, pltRel, _ := BuildDynRelocs(tgt, got, plt, 0, 0x3000, nil, map[*iobj.Symbol]bool{ifn: true}, true)
	require.Len(t, pltRel.Entries, 2)
	require.EqualValues(t, arch.R_X86_64_JUMP_SLOT, pltRel.Entries[0].Type)
	require.EqualValues(t, arch.R_X86_64_IRELATIVE, pltRel.Entries[1].Type)
	// gotpltBase + (3+i)*wordsize, per spec.md §4.7's reserved header words.
	require.EqualValues(t, 0x3000+3*8, pltRel.Entries[0].Offset)
	require.EqualValues(t, 0x3000+4*8, pltRel.Entries[1].Offset)
}

func TestBuildDynRelocsAbsRelKindsRouteCorrectly(t *testing.T) {
	tgt := x64(t)
	got := NewGOT(tgt)
	plt := NewPLT(tgt)
	outSec := iobj.NewOutputSection(".data", 0x3, 1, 8)
	outSec.VAddr = 0x4000

	baseRelSec := &iobj.InputSection{OutputSec: outSec, OutputOffset: 0x10}
	relrSec := &iobj.InputSection{OutputSec: outSec, OutputOffset: 0x20}
	ifuncSec := &iobj.InputSection{OutputSec: outSec, OutputOffset: 0x30}
	dynRelSec := &iobj.InputSection{OutputSec: outSec, OutputOffset: 0x40}
	dynSym := importedSym(t, "extern_var", 7)

	absRels := []*scan.AbsRel{
		{Section: baseRelSec, Reloc: &iobj.Reloc{Offset: 0, Addend: 1}, Kind: scan.AbsRelBaseRel},
		{Section: relrSec, Reloc: &iobj.Reloc{Offset: 0}, Kind: scan.AbsRelRELR},
		{Section: ifuncSec, Reloc: &iobj.Reloc{Offset: 0}, Kind: scan.AbsRelIFunc},
		{Section: dynRelSec, Reloc: &iobj.Reloc{Offset: 0, Type: arch.R_X86_64_64, Addend: 4}, Sym: dynSym, Kind: scan.AbsRelDynRel},
	}

	dynRel, _, relr := BuildDynRelocs(tgt, got, plt, 0, 0, absRels, nil, false)
	require.Len(t, relr, 1)
	require.EqualValues(t, 0x4000+0x20, relr[0])

	require.Len(t, dynRel.Entries, 3)
	require.EqualValues(t, arch.R_X86_64_RELATIVE, dynRel.Entries[0].Type)
	require.EqualValues(t, 0x4000+0x10, dynRel.Entries[0].Offset)
	require.EqualValues(t, arch.R_X86_64_IRELATIVE, dynRel.Entries[1].Type)
	require.EqualValues(t, arch.R_X86_64_64, dynRel.Entries[2].Type)
	require.EqualValues(t, 7, dynRel.Entries[2].SymIdx)
	require.EqualValues(t, 4, dynRel.Entries[2].Addend)
}

func TestBuildCopyRelocsOneEntryPerAliasGroup(t *testing.T) {
	tgt := x64(t)
	c := NewCopyRelSection(".copyrel", false)
	c.VAddr = 0x5000
	dso := &iobj.ObjectFile{Name: "libc.so.6"}
	sym1 := importedSym(t, "environ", 9)
	sym2 := importedSym(t, "__environ", 9)
	sym1.File, sym2.File = dso, dso
	c.Add(sym1, 0x1000, 8, 8)
	c.Add(sym2, 0x1000, 8, 8)

	rs := BuildCopyRelocs(tgt, c)
	require.Len(t, rs.Entries, 1)
	require.EqualValues(t, arch.R_X86_64_COPY, rs.Entries[0].Type)
	require.EqualValues(t, 0x5000, rs.Entries[0].Offset)
	require.EqualValues(t, 9, rs.Entries[0].SymIdx)
}
