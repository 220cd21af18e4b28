package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

func mustX64(t *testing.T) arch.Target {
	t.Helper()
	tgt, err := arch.Lookup(arch.EM_X86_64)
	require.NoError(t, err)
	return tgt
}

// fakeChunk is a minimal iobj.Chunk for exercising layout placement without
// pulling in internal/synth's full chunk set.
type fakeChunk struct {
	iobj.ChunkHeader
	size uint64
}

func (f *fakeChunk) Size() uint64       { return f.size }
func (f *fakeChunk) WriteTo(buf []byte) {}

func TestBuildAlignsVAddrAndOffsetCongruently(t *testing.T) {
	tgt := mustX64(t)
	text := &fakeChunk{ChunkHeader: iobj.ChunkHeader{Name: ".text", Flags: 0x6, Type: 1, Align: 16}, size: 100}
	data := &fakeChunk{ChunkHeader: iobj.ChunkHeader{Name: ".data", Flags: 0x3, Type: 1, Align: 8}, size: 50}

	plan := Build(tgt, []iobj.Chunk{text, data}, Options{IsStatic: true})

	for _, h := range plan.Headers {
		if h.Type == PT_LOAD && h.Align != 0 {
			require.EqualValues(t, h.VAddr%h.Align, h.Offset%h.Align)
		}
	}
}

func TestBuildTLSSegmentSpansContiguousTLSChunks(t *testing.T) {
	tgt := mustX64(t)
	tdata := &fakeChunk{ChunkHeader: iobj.ChunkHeader{Name: ".tdata", Flags: 0x403, Type: 1, Align: 8}, size: 16}
	tbss := &fakeChunk{ChunkHeader: iobj.ChunkHeader{Name: ".tbss", Flags: 0x403, Type: 8, Align: 8}, size: 8}

	plan := Build(tgt, []iobj.Chunk{tdata, tbss}, Options{IsStatic: true})

	var tls *ProgramHeader
	for i := range plan.Headers {
		if plan.Headers[i].Type == PT_TLS {
			tls = &plan.Headers[i]
		}
	}
	require.NotNil(t, tls)
	require.EqualValues(t, 24, tls.MemSz)

	// go-cmp structural diff against the shape spec.md §3 demands of a
	// PT_TLS segment: PF_R, spanning the full .tdata+.tbss template.
	// VAddr/Offset/PAddr/Align vary with the image base and are masked out.
	want := &ProgramHeader{Type: PT_TLS, Flags: PF_R, FileSz: 24, MemSz: 24}
	if diff := cmp.Diff(want, tls, cmpopts.IgnoreFields(ProgramHeader{}, "VAddr", "PAddr", "Offset", "Align")); diff != "" {
		t.Errorf("PT_TLS program header mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRelroSegmentEndsPageAligned(t *testing.T) {
	tgt := mustX64(t)
	relro := &fakeChunk{ChunkHeader: iobj.ChunkHeader{Name: ".data.rel.ro", Flags: 0x3, Type: 1, Align: 8, IsRelro: true}, size: 40}
	normal := &fakeChunk{ChunkHeader: iobj.ChunkHeader{Name: ".data", Flags: 0x3, Type: 1, Align: 8}, size: 40}
	pad := iobj.NewRelroPadding(tgt.PageSize() - 40%tgt.PageSize())

	plan := Build(tgt, []iobj.Chunk{relro, pad, normal}, Options{IsStatic: true, RelroEnabled: true})

	var relroHdr *ProgramHeader
	for i := range plan.Headers {
		if plan.Headers[i].Type == PT_GNU_RELRO {
			relroHdr = &plan.Headers[i]
		}
	}
	require.NotNil(t, relroHdr)
	require.Zero(t, (relroHdr.VAddr+relroHdr.MemSz)%tgt.PageSize())
}
