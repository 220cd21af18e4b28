package applier

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

func x64(t *testing.T) arch.Target {
	t.Helper()
	tgt, err := arch.Lookup(arch.EM_X86_64)
	require.NoError(t, err)
	return tgt
}

func TestCheckRangeAcceptsBoundaryAndRejectsOverflow(t *testing.T) {
	require.NoError(t, CheckRange((1<<31)-1, 32, "", 0, ""))
	err := CheckRange(1<<31, 32, ".text", 8, "f")
	require.Error(t, err)
	var rerr *RangeError
	require.ErrorAs(t, err, &rerr)
}

func TestApplyAllocWritesAbsoluteWord(t *testing.T) {
	tgt := x64(t)
	outSec := iobj.NewOutputSection(".data", 0x3, 1, 8)
	sec := &iobj.InputSection{
		Name: ".data", OutputSec: outSec, OutputOffset: 0,
		Relocs: []iobj.Reloc{{Type: arch.R_X86_64_64, SymIdx: 1, Addend: 4}},
	}
	sym := &iobj.Symbol{Name: "g", Origin: iobj.OriginAbsolute, AbsValue: 0x1000}
	outSec.VAddr = 0x400000

	buf := make([]byte, 8)
	ctx := &Context{Target: tgt, ValueOf: func(s *iobj.Symbol) uint64 { return s.AbsValue }}
	err := ApplyAlloc(ctx, sec, buf, func(uint32) *iobj.Symbol { return sym })
	require.NoError(t, err)
	require.Equal(t, uint64(0x1004), binary.LittleEndian.Uint64(buf))
}

func TestApplyNonAllocWritesTombstoneForDeadSection(t *testing.T) {
	tgt := x64(t)
	dead := &iobj.InputSection{Name: ".text.dead"}
	dead.SetAlive(false)
	sym := &iobj.Symbol{Name: "f", Origin: iobj.OriginInputSection, InputSec: dead}
	sec := &iobj.InputSection{Name: ".debug_ranges", Relocs: []iobj.Reloc{{Offset: 0, SymIdx: 1}}}
	buf := make([]byte, 8)
	ApplyNonAlloc(sec, buf, func(uint32) *iobj.Symbol { return sym }, tgt)
	require.EqualValues(t, 1, binary.LittleEndian.Uint64(buf))
}

func TestApplyNonAllocWritesZeroTombstoneElsewhere(t *testing.T) {
	tgt := x64(t)
	dead := &iobj.InputSection{Name: ".text.dead"}
	dead.SetAlive(false)
	sym := &iobj.Symbol{Name: "f", Origin: iobj.OriginInputSection, InputSec: dead}
	sec := &iobj.InputSection{Name: ".debug_info", Relocs: []iobj.Reloc{{Offset: 0, SymIdx: 1}}}
	buf := make([]byte, 8)
	ApplyNonAlloc(sec, buf, func(uint32) *iobj.Symbol { return sym }, tgt)
	require.EqualValues(t, 0, binary.LittleEndian.Uint64(buf))
}

func TestDecideRelaxationGDToLEWhenLinkTimeKnown(t *testing.T) {
	d := DecideRelaxation(TLSGlobalDynamic, true, false, false, false)
	require.Equal(t, TLSLocalExec, d.To)
}

func TestDecideRelaxationGDToIEWhenLoadTimeKnownOnly(t *testing.T) {
	d := DecideRelaxation(TLSGlobalDynamic, false, true, false, false)
	require.Equal(t, TLSInitialExec, d.To)
}

func TestRelaxX64GDToLERewritesInPlace(t *testing.T) {
	buf := append([]byte{}, x64GDTemplate...)
	err := RelaxX64GDToLE(buf, 0, 42)
	require.NoError(t, err)
	require.Equal(t, byte(0x64), buf[0])
}

func TestRelaxX64GDToLERejectsMismatchedTemplate(t *testing.T) {
	buf := make([]byte, 16)
	err := RelaxX64GDToLE(buf, 0, 42)
	require.Error(t, err)
}
