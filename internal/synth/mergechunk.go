package synth

import "github.com/xyproto/ldcore/internal/iobj"

// MergedSectionChunk adapts a stage-5 iobj.MergedSection — a fragment map
// plus per-fragment offsets assigned by internal/merge.AssignOffsets — to
// the iobj.Chunk interface, so internal/layout can place it exactly like
// any other output chunk (spec.md §3 lists MergedSection among the Chunk
// subtypes).
type MergedSectionChunk struct {
	iobj.ChunkHeader
	ms *iobj.MergedSection
}

func NewMergedSectionChunk(ms *iobj.MergedSection) *MergedSectionChunk {
	align := ms.ShEntSize
	if align == 0 {
		align = 1
	}
	return &MergedSectionChunk{
		ChunkHeader: iobj.ChunkHeader{Name: ms.Name, Flags: ms.ShFlags, Type: ms.ShType, Align: align},
		ms:          ms,
	}
}

func (m *MergedSectionChunk) Size() uint64 { return m.ms.Size }

func (m *MergedSectionChunk) WriteTo(buf []byte) {
	for _, shard := range m.ms.Shards {
		shard.Range(func(f *iobj.SectionFragment) {
			if !f.IsAlive() {
				return
			}
			copy(buf[f.Offset:], f.Bytes)
		})
	}
}
