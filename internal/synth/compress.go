// Compressed-section wrapping (--compress-debug-sections). spec.md §1
// scopes debug-section compression as "treated as byte-to-byte transforms"
// owned by an external collaborator in the original mold design, but
// SPEC_FULL.md's ambient-stack rule ("a spec that excludes an outer
// surface still gets its ambient concerns carried") keeps a minimal, real
// chunk wrapper in the core so --compress-debug-sections has somewhere to
// attach. No third-party pack dependency implements zlib/zstd framing
// (the retrieved pack's go.mod set never imports one — SPEC_FULL.md's
// DOMAIN STACK table records this), so this is the documented stdlib
// exception for this single component.
package synth

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"

	"github.com/xyproto/ldcore/internal/iobj"
)

// CompressedSection wraps another Chunk's bytes in the ELF
// SHF_COMPRESSED container (Elf64_Chdr + zlib stream), spec.md §3.
type CompressedSection struct {
	iobj.ChunkHeader
	inner      iobj.Chunk
	wordSize   int
	compressed []byte
}

func NewCompressedSection(inner iobj.Chunk, wordSize int) *CompressedSection {
	return &CompressedSection{
		ChunkHeader: iobj.ChunkHeader{
			Name:  inner.ChunkName(),
			Flags: inner.ShFlags() | 0x800, // SHF_COMPRESSED
			Type:  inner.ShType(),
			Align: uint64(wordSize),
		},
		inner: inner, wordSize: wordSize,
	}
}

// Compress must be called once, after inner's bytes are finalized, before
// Size/WriteTo are used.
func (c *CompressedSection) Compress() {
	raw := make([]byte, c.inner.Size())
	c.inner.WriteTo(raw)

	var out bytes.Buffer
	w := zlib.NewWriter(&out)
	w.Write(raw)
	w.Close()
	c.compressed = out.Bytes()
	_ = binary.LittleEndian
}

func (c *CompressedSection) Size() uint64 {
	hdrSize := uint64(24)
	if c.wordSize == 4 {
		hdrSize = 12
	}
	return hdrSize + uint64(len(c.compressed))
}

func (c *CompressedSection) WriteTo(buf []byte) {
	const ELFCOMPRESS_ZLIB = 1
	if c.wordSize == 8 {
		binary.LittleEndian.PutUint32(buf[0:], ELFCOMPRESS_ZLIB)
		binary.LittleEndian.PutUint32(buf[4:], 0) // padding
		binary.LittleEndian.PutUint64(buf[8:], c.inner.Size())
		binary.LittleEndian.PutUint64(buf[16:], c.inner.ShAddrAlign())
		copy(buf[24:], c.compressed)
	} else {
		binary.LittleEndian.PutUint32(buf[0:], ELFCOMPRESS_ZLIB)
		binary.LittleEndian.PutUint32(buf[4:], uint32(c.inner.Size()))
		binary.LittleEndian.PutUint32(buf[8:], uint32(c.inner.ShAddrAlign()))
		copy(buf[12:], c.compressed)
	}
}
