package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/ldcore/internal/archive"
	"github.com/xyproto/ldcore/internal/diag"
	"github.com/xyproto/ldcore/internal/iobj"
	"github.com/xyproto/ldcore/internal/scan"
)

func TestIsArchiveDetectsPlainAndThinMagic(t *testing.T) {
	require.True(t, isArchive([]byte("!<arch>\n...")))
	require.True(t, isArchive([]byte("!<thin>\n...")))
	require.False(t, isArchive([]byte("\x7fELF...")))
	require.False(t, isArchive([]byte("short")))
}

func TestLoadArchiveAssignsIncreasingPriorityAcrossMembers(t *testing.T) {
	var buf []byte
	buf = append(buf, "!<arch>\n"...)
	appendMember := func(name string, data []byte) {
		hdr := make([]byte, 60)
		copy(hdr, name+"/")
		for i := len(name) + 1; i < 16; i++ {
			hdr[i] = ' '
		}
		for i := 16; i < 58; i++ {
			hdr[i] = ' '
		}
		sizeStr := []byte("0")
		n := len(data)
		if n > 0 {
			sizeStr = []byte{}
			for n > 0 {
				sizeStr = append([]byte{byte('0' + n%10)}, sizeStr...)
				n /= 10
			}
		}
		copy(hdr[48:], sizeStr)
		hdr[58], hdr[59] = '`', '\n'
		buf = append(buf, hdr...)
		buf = append(buf, data...)
		if len(data)%2 == 1 {
			buf = append(buf, '\n')
		}
	}
	appendMember("a.o", []byte("AAAA"))
	appendMember("b.o", []byte("BBBB"))

	ar, err := archive.Parse(buf)
	require.NoError(t, err)
	require.Len(t, ar.Members, 2)

	p := &Pipeline{Diag: &diag.Bag{}}
	next := p.loadArchive("lib.a", buf, 5)
	require.Equal(t, 7, next)
	require.Len(t, p.Files, 0) // both members are non-ELF bytes; loadOne records a diagnostic instead
	require.True(t, p.Diag.HasFatal())
}

func TestMergeSectionsDeduplicatesFragmentsAndRedirectsBoundarySymbols(t *testing.T) {
	of := &iobj.ObjectFile{Name: "t.o", Priority: 0}
	sec := &iobj.InputSection{
		File:    of,
		Name:    ".rodata.str1.1",
		ShType:  1,
		ShFlags: iobj.SHF_MERGE | iobj.SHF_STRINGS,
	}
	sec.Contents = append([]byte("hello\x00"), []byte("world\x00")...)
	sec.Contents = append(sec.Contents, "hello\x00"...)
	sec.SetAlive(true)
	of.Sections = []*iobj.InputSection{sec}

	sym := &iobj.Symbol{Name: "s", Origin: iobj.OriginInputSection, InputSec: sec, InputOffset: 6}
	of.Symbols = []*iobj.Symbol{nil, sym}

	p := &Pipeline{Files: []*iobj.ObjectFile{of}, Diag: &diag.Bag{}}
	require.NoError(t, p.MergeSections())

	require.Len(t, p.MergedSections, 1)
	ms := p.MergedSections[0]
	require.Equal(t, ".rodata.str1.1", ms.Name)
	// "hello\x00" appears twice but dedups to one fragment; "world\x00" is distinct.
	var total int
	for _, shard := range ms.Shards {
		shard.Range(func(*iobj.SectionFragment) { total++ })
	}
	require.Equal(t, 2, total)
	require.False(t, sec.IsAlive())

	require.Equal(t, iobj.OriginFragment, sym.Origin)
	require.NotNil(t, sym.Fragment)
	require.Equal(t, "world\x00", sym.Fragment.Bytes)
}

func TestCollectThunkCandidatesResolvesPostLayoutAddresses(t *testing.T) {
	outSec := &iobj.OutputSection{}
	outSec.ChunkHeader.VAddr = 0x1000
	sec := &iobj.InputSection{OutputSec: outSec, OutputOffset: 0x10}
	target := &iobj.Symbol{Name: "far"}

	res := &scan.Result{Branches: []*scan.BranchRef{
		{Section: sec, Reloc: &iobj.Reloc{Offset: 4}, Sym: target},
	}}

	p := &Pipeline{}
	valueOf := func(s *iobj.Symbol) uint64 {
		if s == target {
			return 0x50000000
		}
		return 0
	}
	cands := p.CollectThunkCandidates(res, valueOf)
	require.Len(t, cands, 1)
	require.Equal(t, uint64(0x1000+0x10+4), cands[0].PC)
	require.Equal(t, uint64(0x50000000), cands[0].Dest)
	require.Same(t, target, cands[0].Target)
}
