package synth

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/binary"

	"github.com/xyproto/ldcore/internal/arch"
	"github.com/xyproto/ldcore/internal/iobj"
)

// Interp is the .interp synthetic chunk: the dynamic linker path,
// null-terminated, spec.md §6 PT_INTERP.
type Interp struct {
	iobj.ChunkHeader
	Path string
}

func NewInterp(path string) *Interp {
	return &Interp{ChunkHeader: iobj.ChunkHeader{Name: ".interp", Flags: 0x2, Type: 1, Align: 1}, Path: path}
}

func (i *Interp) Size() uint64    { return uint64(len(i.Path) + 1) }
func (i *Interp) WriteTo(buf []byte) { copy(buf, i.Path) }

// BuildIDNote is the .note.gnu.build-id synthetic chunk, spec.md §6
// --build-id. Style selects md5/sha1/a fixed-width hex string/uuid; the
// hash input is supplied by the caller once every other byte-producing
// chunk has been finalized (a real build-id must hash the rest of the
// output).
type BuildIDNote struct {
	iobj.ChunkHeader
	Style string // "md5", "sha1", "uuid", "none", or "0x<hex>"
	id    []byte
}

func NewBuildIDNote(style string) *BuildIDNote {
	return &BuildIDNote{ChunkHeader: iobj.ChunkHeader{Name: ".note.gnu.build-id", Flags: 0x2, Type: 7 /* SHT_NOTE */, Align: 4}, Style: style}
}

// ComputeFromHashInput derives the note's id bytes from content (the
// concatenation of every other chunk's final bytes, per convention).
func (b *BuildIDNote) ComputeFromHashInput(content []byte) {
	switch b.Style {
	case "md5":
		sum := md5.Sum(content)
		b.id = sum[:]
	case "sha1", "":
		sum := sha1.Sum(content)
		b.id = sum[:]
	case "uuid":
		sum := md5.Sum(content)
		u := sum[:16]
		u[6] = (u[6] & 0x0f) | 0x40
		u[8] = (u[8] & 0x3f) | 0x80
		b.id = u
	default:
		// "0x<hex>" fixed id: caller pre-decodes and sets id via SetFixed.
	}
}

func (b *BuildIDNote) SetFixed(hexBytes []byte) { b.id = hexBytes }

func (b *BuildIDNote) Size() uint64 {
	nameLen := uint64(4) // "GNU\0"
	return 12 + align4(nameLen) + align4(uint64(len(b.id)))
}

func align4(n uint64) uint64 { return (n + 3) &^ 3 }

func (b *BuildIDNote) WriteTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], 4) // namesz
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(b.id)))
	binary.LittleEndian.PutUint32(buf[8:], 3) // NT_GNU_BUILD_ID
	copy(buf[12:], "GNU\x00")
	copy(buf[12+4:], b.id)
}

// PropertyNote is .note.gnu.property, carrying the GNU-property bits
// (spec.md §3 ObjectFile.GnuPropertyBits, §6 PT_GNU_PROPERTY) merged
// (AND'd, per the psABI's intersection-of-all-inputs rule) across every
// input object.
type PropertyNote struct {
	iobj.ChunkHeader
	target arch.Target
	Bits   uint32
}

func NewPropertyNote(t arch.Target) *PropertyNote {
	return &PropertyNote{ChunkHeader: iobj.ChunkHeader{Name: ".note.gnu.property", Flags: 0x2, Type: 7, Align: uint64(t.WordSize())}, target: t}
}

func (p *PropertyNote) Size() uint64 {
	return 12 + align4(4) + 16 // "GNU\0" + one pr_type/pr_datasz/4-byte value, padded to 16
}

func (p *PropertyNote) WriteTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], 4)
	binary.LittleEndian.PutUint32(buf[4:], 16)
	binary.LittleEndian.PutUint32(buf[8:], 5) // NT_GNU_PROPERTY_TYPE_0
	copy(buf[12:], "GNU\x00")
	binary.LittleEndian.PutUint32(buf[16:], 0xc0000002) // GNU_PROPERTY_X86_FEATURE_1_AND (representative)
	binary.LittleEndian.PutUint32(buf[20:], 4)
	binary.LittleEndian.PutUint32(buf[24:], p.Bits)
	binary.LittleEndian.PutUint32(buf[28:], 0)
}

// PackageNote is .note.package, a supplemental free-form note some
// distributions attach (build metadata); kept minimal here as an opaque
// byte blob the driver fills in.
type PackageNote struct {
	iobj.ChunkHeader
	JSON string
}

func NewPackageNote(json string) *PackageNote {
	return &PackageNote{ChunkHeader: iobj.ChunkHeader{Name: ".note.package", Flags: 0x2, Type: 7, Align: 4}, JSON: json}
}

func (p *PackageNote) Size() uint64 {
	return 12 + align4(4) + align4(uint64(len(p.JSON)+1))
}

func (p *PackageNote) WriteTo(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], 4)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(p.JSON)+1))
	binary.LittleEndian.PutUint32(buf[8:], 0x4e6e6781) // FDO_PACKAGING_METADATA
	copy(buf[12:], "GNU\x00")
	copy(buf[16:], p.JSON)
}

// GnuDebugLink is .gnu_debuglink, referencing a split-debug file by name
// plus a CRC32 checksum (standard GNU debuglink format).
type GnuDebugLink struct {
	iobj.ChunkHeader
	Filename string
	CRC32    uint32
}

func NewGnuDebugLink(filename string, crc uint32) *GnuDebugLink {
	return &GnuDebugLink{ChunkHeader: iobj.ChunkHeader{Name: ".gnu_debuglink", Flags: 0, Type: 1, Align: 4}, Filename: filename, CRC32: crc}
}

func (g *GnuDebugLink) Size() uint64 {
	return align4(uint64(len(g.Filename)+1)) + 4
}

func (g *GnuDebugLink) WriteTo(buf []byte) {
	copy(buf, g.Filename)
	binary.LittleEndian.PutUint32(buf[align4(uint64(len(g.Filename)+1)):], g.CRC32)
}
