package synth

import (
	"encoding/binary"

	"github.com/xyproto/ldcore/internal/iobj"
)

// ComdatGroupSection re-emits a surviving SHT_GROUP section for -r output,
// spec.md §3's "ComdatGroupSection (for -r mode)", the supplemented
// feature SPEC_FULL.md names from mold's relocatable-output path.
type ComdatGroupSection struct {
	iobj.ChunkHeader
	SignatureSymIdx uint32
	MemberShndxs    []uint32
}

func NewComdatGroupSection(group *iobj.ComdatGroup, signatureSymIdx uint32, memberShndxs []uint32) *ComdatGroupSection {
	return &ComdatGroupSection{
		ChunkHeader:     iobj.ChunkHeader{Name: ".group", Flags: 0, Type: 17 /* SHT_GROUP */, Align: 4},
		SignatureSymIdx: signatureSymIdx,
		MemberShndxs:    memberShndxs,
	}
}

func (c *ComdatGroupSection) Size() uint64 { return uint64(4 * (1 + len(c.MemberShndxs))) }

func (c *ComdatGroupSection) WriteTo(buf []byte) {
	const GRP_COMDAT = 1
	binary.LittleEndian.PutUint32(buf[0:], GRP_COMDAT)
	for i, s := range c.MemberShndxs {
		binary.LittleEndian.PutUint32(buf[4+i*4:], s)
	}
}
